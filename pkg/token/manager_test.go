// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantly-io/grantly/pkg/cache"
	grerrors "github.com/grantly-io/grantly/pkg/errors"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()

	index := NewMemoryIndex(WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = index.Close() })

	mgr, err := NewManager([]byte("test-signing-key"), "https://auth.test", index, opts...)
	require.NoError(t, err)
	return mgr
}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	index := NewMemoryIndex(WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = index.Close() })

	_, err := NewManager(nil, "iss", index)
	assert.Error(t, err)

	_, err = NewManager([]byte("key"), "iss", nil)
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	signed, issued, err := mgr.IssueAccessToken(IssueParams{
		Subject: "user-1",
		OrgID:   "org-1",
		Scopes:  []string{"openid", "profile"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := mgr.Validate(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "org-1", claims.OrgID)
	assert.Equal(t, "https://auth.test", claims.Issuer)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Equal(t, []string{"openid", "profile"}, claims.Scopes())
}

func TestIssueRequiresSubject(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)

	_, _, err := mgr.IssueAccessToken(IssueParams{})
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrValidation))
}

func TestValidateMalformed(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	for _, tokenString := range []string{"", "garbage", "a.b.c"} {
		_, err := mgr.Validate(ctx, tokenString)
		require.Error(t, err)
		assert.True(t, grerrors.IsType(err, grerrors.ErrValidation), "token %q", tokenString)
	}
}

func TestValidateWrongKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr := newTestManager(t)

	index := NewMemoryIndex(WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = index.Close() })
	other, err := NewManager([]byte("a-different-key"), "https://auth.test", index)
	require.NoError(t, err)

	signed, _, err := other.IssueAccessToken(IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, signed)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrValidation))
}

func TestValidateExpired(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t, WithAccessTTL(-time.Minute))
	ctx := context.Background()

	signed, _, err := mgr.IssueAccessToken(IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	_, err = mgr.Validate(ctx, signed)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrTokenExpired))
	assert.False(t, grerrors.IsType(err, grerrors.ErrValidation))
}

func TestValidateType(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	signed, _, err := mgr.IssueRefreshToken(IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	_, err = mgr.ValidateType(ctx, signed, TypeRefresh)
	assert.NoError(t, err)

	_, err = mgr.ValidateType(ctx, signed, TypeAccess)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrValidation))
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	signed, _, err := mgr.IssueAccessToken(IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	require.NoError(t, mgr.Revoke(ctx, signed))

	_, err = mgr.Validate(ctx, signed)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrTokenRevoked))

	// Revoking again, or revoking garbage, still succeeds.
	assert.NoError(t, mgr.Revoke(ctx, signed))
	assert.NoError(t, mgr.Revoke(ctx, "not-a-token"))
}

func TestRotate(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	refresh, _, err := mgr.IssueRefreshToken(IssueParams{
		Subject: "user-1",
		OrgID:   "org-1",
		Scopes:  []string{"openid"},
	})
	require.NoError(t, err)

	pair, err := mgr.Rotate(ctx, refresh, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, pair.AccessClaims.Type)
	assert.Equal(t, TypeRefresh, pair.RefreshClaims.Type)
	assert.Equal(t, "user-1", pair.RefreshClaims.Subject)
	assert.Equal(t, "org-1", pair.RefreshClaims.OrgID)
	assert.Equal(t, []string{"openid"}, pair.RefreshClaims.Scopes())

	// Replaying the rotated-out refresh token fails as revoked, not as a
	// generic validation failure.
	_, err = mgr.Rotate(ctx, refresh, nil)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrTokenRevoked))

	// The new pair remains usable.
	_, err = mgr.Validate(ctx, pair.AccessToken)
	assert.NoError(t, err)
	_, err = mgr.Rotate(ctx, pair.RefreshToken, nil)
	assert.NoError(t, err)
}

func TestRotateScopeOverride(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	refresh, _, err := mgr.IssueRefreshToken(IssueParams{
		Subject: "user-1",
		Scopes:  []string{"openid", "profile"},
	})
	require.NoError(t, err)

	pair, err := mgr.Rotate(ctx, refresh, []string{"openid"})
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, pair.AccessClaims.Scopes())
	assert.Equal(t, []string{"openid"}, pair.RefreshClaims.Scopes())
}

func TestRotateRejectsNonRefresh(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	access, _, err := mgr.IssueAccessToken(IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	_, err = mgr.Rotate(ctx, access, nil)
	require.Error(t, err)
	assert.True(t, grerrors.IsType(err, grerrors.ErrValidation))
}

func TestPreAuthStage(t *testing.T) {
	t.Parallel()
	mgr := newTestManager(t)
	ctx := context.Background()

	signed, _, err := mgr.IssuePreAuthToken(IssueParams{
		Subject: "user-1",
		Stage:   "password_verified",
	})
	require.NoError(t, err)

	claims, err := mgr.ValidateType(ctx, signed, TypePreAuth)
	require.NoError(t, err)
	assert.Equal(t, "password_verified", claims.Stage)
}

func TestRedisIndex(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	index := NewRedisIndex(cache.NewRedisCacheWithClient(client, "grantly"))
	ctx := context.Background()

	revoked, err := index.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, index.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err = index.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Entries expire when the token would have.
	mr.FastForward(2 * time.Hour)
	revoked, err = index.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	// Revoking an already-expired token is a no-op.
	require.NoError(t, index.Revoke(ctx, "jti-2", time.Now().Add(-time.Hour)))
	revoked, err = index.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisIndexUnavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	index := NewRedisIndex(cache.NewRedisCacheWithClient(client, "grantly"))
	mr.Close()

	_, err := index.IsRevoked(context.Background(), "jti-1")
	assert.Error(t, err)
}

func TestMemoryIndexSweep(t *testing.T) {
	t.Parallel()
	index := NewMemoryIndex(WithSweepInterval(10 * time.Millisecond))
	t.Cleanup(func() { _ = index.Close() })
	ctx := context.Background()

	require.NoError(t, index.Revoke(ctx, "short", time.Now().Add(30*time.Millisecond)))
	require.NoError(t, index.Revoke(ctx, "long", time.Now().Add(time.Hour)))
	assert.Equal(t, 2, index.Len())

	assert.Eventually(t, func() bool {
		return index.Len() == 1
	}, time.Second, 10*time.Millisecond)

	revoked, err := index.IsRevoked(ctx, "long")
	require.NoError(t, err)
	assert.True(t, revoked)
}
