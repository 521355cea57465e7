// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClientStore(t *testing.T) (*PGClientStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGClientStore(db), mock
}

func TestPGClientStoreGetClient(t *testing.T) {
	t.Parallel()

	store, mock := newMockClientStore(t)
	mock.ExpectQuery("select id, coalesce").
		WithArgs("web-app").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "secret_hash", "client_type", "redirect_uris",
			"allowed_scopes", "grant_types", "requires_consent",
		}).AddRow(
			"web-app", "$2a$10$hash", "confidential",
			[]byte(`["https://app.example/cb"]`),
			[]byte(`["openid","profile"]`),
			[]byte(`["authorization_code","refresh_token"]`),
			true,
		))

	client, err := store.GetClient(context.Background(), "web-app")
	require.NoError(t, err)
	assert.Equal(t, "web-app", client.ID)
	assert.Equal(t, ClientConfidential, client.Type)
	assert.Equal(t, []string{"https://app.example/cb"}, client.RedirectURIs)
	assert.Equal(t, []string{"openid", "profile"}, client.AllowedScopes)
	assert.Equal(t, []GrantType{GrantAuthorizationCode, GrantRefreshToken}, client.GrantTypes)
	assert.True(t, client.RequiresConsent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGClientStoreNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockClientStore(t)
	mock.ExpectQuery("select id, coalesce").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "secret_hash", "client_type", "redirect_uris",
			"allowed_scopes", "grant_types", "requires_consent",
		}))

	_, err := store.GetClient(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrClientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
