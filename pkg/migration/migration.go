// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package migration applies the embedded database schema migrations.
//
// Migration files are numbered SQL scripts under migrations/. Applied
// versions are recorded in schema_migrations, each script runs in its own
// transaction, and the whole set is idempotent under concurrent startup
// because the version row insert conflicts for the loser.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/grantly-io/grantly/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Apply brings the database schema up to date.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`create table if not exists schema_migrations (
			version    text primary key,
			applied_at timestamptz not null default now()
		)`,
	); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	for _, name := range names {
		applied, err := isApplied(ctx, db, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := applyOne(ctx, db, name); err != nil {
			return err
		}
		logger.Infof("Applied migration %s", name)
	}
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	row := db.QueryRowContext(ctx,
		`select exists(select 1 from schema_migrations where version=$1)`, version)
	var applied bool
	if err := row.Scan(&applied); err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", version, err)
	}
	return applied, nil
}

func applyOne(ctx context.Context, db *sql.DB, version string) error {
	script, err := migrationFiles.ReadFile("migrations/" + version)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`insert into schema_migrations (version) values ($1)`, version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	return tx.Commit()
}
