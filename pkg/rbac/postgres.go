// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"database/sql"
	"errors"

	// Registers the pgx stdlib driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping checks database connectivity (health check).
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PGStore) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select exists(select 1 from organization_memberships where user_id=$1 and organization_id=$2)`,
		userID, orgID,
	)
	var member bool
	if err := row.Scan(&member); err != nil {
		return false, err
	}
	return member, nil
}

func (s *PGStore) GroupsForUser(ctx context.Context, userID, orgID string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`select g.id, g.organization_id, g.name from groups g
		 join group_memberships gm on gm.group_id=g.id
		 where gm.user_id=$1 and g.organization_id=$2 order by g.name`,
		userID, orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.OrgID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PGStore) PermissionsForGroup(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.resource || ':' || p.action from permissions p
		 join group_permissions gp on gp.permission_id=p.id
		 where gp.group_id=$1 order by 1`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}

func (s *PGStore) GroupByID(ctx context.Context, groupID string) (*Group, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, name from groups where id=$1`, groupID)
	var g Group
	if err := row.Scan(&g.ID, &g.OrgID, &g.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *PGStore) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id from group_memberships where group_id=$1`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *PGStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, verified, created_at from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, verified, created_at from users where id=$1`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) OrganizationsForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select o.id, o.name from organizations o
		 join organization_memberships om on om.organization_id=o.id
		 where om.user_id=$1 order by o.name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}
