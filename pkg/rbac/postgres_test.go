// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func TestPGStoreIsMember(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select exists").
		WithArgs("user-a", "org-o").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	member, err := store.IsMember(context.Background(), "user-a", "org-o")
	require.NoError(t, err)
	assert.True(t, member)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGroupsForUser(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select g.id, g.organization_id, g.name from groups").
		WithArgs("user-a", "org-o").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name"}).
			AddRow("grp-g", "org-o", "G").
			AddRow("grp-h", "org-o", "H"))

	groups, err := store.GroupsForUser(context.Background(), "user-a", "org-o")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, Group{ID: "grp-g", OrgID: "org-o", Name: "G"}, groups[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStorePermissionsForGroup(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select p.resource").
		WithArgs("grp-g").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("activity:create").
			AddRow("activity:delete"))

	perms, err := store.PermissionsForGroup(context.Background(), "grp-g")
	require.NoError(t, err)
	assert.Equal(t, []string{"activity:create", "activity:delete"}, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGroupByIDNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, organization_id, name from groups").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name"}))

	_, err := store.GroupByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreUserByEmail(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	created := time.Now()
	mock.ExpectQuery("select id, email, password_hash, verified, created_at from users where email").
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "verified", "created_at"}).
			AddRow("user-a", "a@example.com", "$2a$10$hash", true, created))

	u, err := store.UserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-a", u.ID)
	assert.True(t, u.Verified)

	mock.ExpectQuery("select id, email, password_hash, verified, created_at from users where email").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "verified", "created_at"}))

	_, err = store.UserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStoreOrganizationsForUser(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select o.id, o.name from organizations").
		WithArgs("user-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("org-o", "O").
			AddRow("org-p", "P"))

	orgs, err := store.OrganizationsForUser(context.Background(), "user-a")
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "org-o", orgs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGroupMembers(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("select user_id from group_memberships").
		WithArgs("grp-g").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow("user-a").
			AddRow("user-c"))

	members, err := store.GroupMembers(context.Background(), "grp-g")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-a", "user-c"}, members)
}
