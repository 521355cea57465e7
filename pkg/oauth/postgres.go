// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	// Registers the pgx stdlib driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ ClientStore = (*PGClientStore)(nil)

// PGClientStore implements ClientStore using PostgreSQL. URI, scope and
// grant-type lists are stored as jsonb columns.
type PGClientStore struct {
	db *sql.DB
}

// NewPGClientStore wraps an open database handle.
func NewPGClientStore(db *sql.DB) *PGClientStore {
	return &PGClientStore{db: db}
}

// GetClient implements ClientStore.
func (s *PGClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, coalesce(secret_hash, ''), client_type, redirect_uris,
		        allowed_scopes, grant_types, requires_consent
		 from oauth_clients where id=$1`,
		clientID,
	)

	var (
		c          Client
		redirects  []byte
		scopes     []byte
		grantTypes []byte
	)
	if err := row.Scan(&c.ID, &c.SecretHash, &c.Type, &redirects, &scopes, &grantTypes, &c.RequiresConsent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(redirects, &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect_uris for client %s: %w", clientID, err)
	}
	if err := json.Unmarshal(scopes, &c.AllowedScopes); err != nil {
		return nil, fmt.Errorf("decoding allowed_scopes for client %s: %w", clientID, err)
	}
	if err := json.Unmarshal(grantTypes, &c.GrantTypes); err != nil {
		return nil, fmt.Errorf("decoding grant_types for client %s: %w", clientID, err)
	}
	return &c, nil
}
