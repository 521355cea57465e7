// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantly-io/grantly/pkg/cache"
	grerrors "github.com/grantly-io/grantly/pkg/errors"
)

// countingStore wraps a Store and counts every query issued to it.
type countingStore struct {
	Store
	calls atomic.Int64
}

func (s *countingStore) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	s.calls.Add(1)
	return s.Store.IsMember(ctx, userID, orgID)
}

func (s *countingStore) GroupsForUser(ctx context.Context, userID, orgID string) ([]Group, error) {
	s.calls.Add(1)
	return s.Store.GroupsForUser(ctx, userID, orgID)
}

func (s *countingStore) PermissionsForGroup(ctx context.Context, groupID string) ([]string, error) {
	s.calls.Add(1)
	return s.Store.PermissionsForGroup(ctx, groupID)
}

// seedStore builds the fixture used across resolver tests: user A is in org
// O via group G, which grants activity:create; user B is in no org.
func seedStore() *MemoryStore {
	store := NewMemoryStore()
	store.AddOrganization(Organization{ID: "org-o", Name: "O"})
	store.AddUser(User{ID: "user-a", Email: "a@example.com", Verified: true})
	store.AddUser(User{ID: "user-b", Email: "b@example.com", Verified: true})
	store.AddMembership(Membership{UserID: "user-a", OrgID: "org-o", Role: RoleMember})
	store.AddGroup(Group{ID: "grp-g", OrgID: "org-o", Name: "G"})
	store.AddGroupMember("grp-g", "user-a")
	store.GrantPermission("grp-g", "activity:create")
	return store
}

func newTestResolver(t *testing.T, store Store) *Resolver {
	t.Helper()
	c := cache.NewMemoryCache(cache.WithCleanupInterval(time.Minute))
	t.Cleanup(func() { _ = c.Close() })
	return NewResolver(store, c)
}

func TestAuthorizeGranted(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, seedStore())
	d, err := r.Authorize(context.Background(), "user-a", "org-o", "activity:create")
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.Equal(t, []string{"G"}, d.MatchedGroups)
}

func TestAuthorizeNonMemberAlwaysDenied(t *testing.T) {
	t.Parallel()

	store := seedStore()
	// Even direct group grants cannot override the membership gate.
	store.AddGroupMember("grp-g", "user-b")

	r := newTestResolver(t, store)
	d, err := r.Authorize(context.Background(), "user-b", "org-o", "activity:create")
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotMember, d.Reason)
	assert.Empty(t, d.MatchedGroups)
}

func TestAuthorizeMemberWithoutGrant(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, seedStore())
	d, err := r.Authorize(context.Background(), "user-a", "org-o", "activity:delete")
	require.NoError(t, err)

	assert.False(t, d.Allowed)
	assert.Equal(t, "permission not granted", d.Reason)
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, seedStore())
	ctx := context.Background()

	tests := []struct {
		name                    string
		userID, orgID, permission string
	}{
		{"empty user", "", "org-o", "activity:create"},
		{"empty org", "user-a", "", "activity:create"},
		{"no separator", "user-a", "org-o", "activitycreate"},
		{"empty action", "user-a", "org-o", "activity:"},
		{"empty resource", "user-a", "org-o", ":create"},
		{"whitespace", "user-a", "org-o", "activity :create"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Authorize(ctx, tt.userID, tt.orgID, tt.permission)
			require.Error(t, err)
			assert.True(t, grerrors.IsType(err, grerrors.ErrValidation))
		})
	}
}

func TestRepeatedChecksDoNotTouchStore(t *testing.T) {
	t.Parallel()

	counting := &countingStore{Store: seedStore()}
	r := newTestResolver(t, counting)
	ctx := context.Background()

	d, err := r.Authorize(ctx, "user-a", "org-o", "activity:create")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	callsAfterFirst := counting.calls.Load()
	require.Greater(t, callsAfterFirst, int64(0))

	for i := 0; i < 10; i++ {
		repeat, err := r.Authorize(ctx, "user-a", "org-o", "activity:create")
		require.NoError(t, err)
		assert.Equal(t, d, repeat)
	}
	assert.Equal(t, callsAfterFirst, counting.calls.Load(),
		"cached checks must not query the principal store")

	stats := r.Stats()
	assert.Equal(t, int64(10), stats.Tier1Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestTier2DerivesDecisionForNewPermission(t *testing.T) {
	t.Parallel()

	counting := &countingStore{Store: seedStore()}
	r := newTestResolver(t, counting)
	ctx := context.Background()

	_, err := r.Authorize(ctx, "user-a", "org-o", "activity:create")
	require.NoError(t, err)
	callsAfterFirst := counting.calls.Load()

	// A different permission for the same user/org hits tier 2, not the store.
	d, err := r.Authorize(ctx, "user-a", "org-o", "activity:delete")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, callsAfterFirst, counting.calls.Load())
	assert.Equal(t, int64(1), r.Stats().Tier2Hits)

	// And the derived decision now sits in tier 1.
	_, err = r.Authorize(ctx, "user-a", "org-o", "activity:delete")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Stats().Tier1Hits)
}

func TestCachedNonMembershipShortCircuits(t *testing.T) {
	t.Parallel()

	counting := &countingStore{Store: seedStore()}
	r := newTestResolver(t, counting)
	ctx := context.Background()

	_, err := r.Authorize(ctx, "user-b", "org-o", "activity:create")
	require.NoError(t, err)

	// A different permission misses tier 1/2 but hits the cached membership
	// flag, which denies without a store query.
	callsBefore := counting.calls.Load()
	d, err := r.Authorize(ctx, "user-b", "org-o", "activity:delete")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotMember, d.Reason)
	assert.Equal(t, callsBefore, counting.calls.Load())
}

func TestGroupRevocationInvalidatesAllMembers(t *testing.T) {
	t.Parallel()

	store := seedStore()
	store.AddUser(User{ID: "user-c", Email: "c@example.com", Verified: true})
	store.AddMembership(Membership{UserID: "user-c", OrgID: "org-o", Role: RoleMember})
	store.AddGroupMember("grp-g", "user-c")

	r := newTestResolver(t, store)
	ctx := context.Background()

	for _, user := range []string{"user-a", "user-c"} {
		d, err := r.Authorize(ctx, user, "org-o", "activity:create")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// Revoke the grant and fire the event. TTLs have not expired, so a stale
	// cache would still answer true.
	store.RevokePermission("grp-g", "activity:create")
	require.NoError(t, r.InvalidateGroup(ctx, "grp-g"))

	for _, user := range []string{"user-a", "user-c"} {
		d, err := r.Authorize(ctx, user, "org-o", "activity:create")
		require.NoError(t, err)
		assert.False(t, d.Allowed, "user %s must be denied on the very next check", user)
	}
}

func TestMembershipRemovalInvalidatesAllTiers(t *testing.T) {
	t.Parallel()

	store := seedStore()
	r := newTestResolver(t, store)
	ctx := context.Background()

	d, err := r.Authorize(ctx, "user-a", "org-o", "activity:create")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	store.RemoveMembership("user-a", "org-o")
	require.NoError(t, r.InvalidateUserOrg(ctx, "user-a", "org-o"))

	d, err = r.Authorize(ctx, "user-a", "org-o", "activity:create")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotMember, d.Reason)
}

// brokenCache fails every operation, simulating an outage.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, error) {
	return "", grerrors.NewCacheUnavailableError("down", nil)
}
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return grerrors.NewCacheUnavailableError("down", nil)
}
func (brokenCache) GetDelete(context.Context, string) (string, error) {
	return "", grerrors.NewCacheUnavailableError("down", nil)
}
func (brokenCache) Delete(context.Context, ...string) error {
	return grerrors.NewCacheUnavailableError("down", nil)
}
func (brokenCache) AddToSet(context.Context, string, time.Duration, ...string) error {
	return grerrors.NewCacheUnavailableError("down", nil)
}
func (brokenCache) SetMembers(context.Context, string) ([]string, error) {
	return nil, grerrors.NewCacheUnavailableError("down", nil)
}

func TestCacheOutageDegradesToStore(t *testing.T) {
	t.Parallel()

	counting := &countingStore{Store: seedStore()}
	r := NewResolver(counting, brokenCache{})
	ctx := context.Background()

	// Every check falls back to the store; answers stay correct.
	for i := 0; i < 3; i++ {
		d, err := r.Authorize(ctx, "user-a", "org-o", "activity:create")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, int64(9), counting.calls.Load())
	assert.Greater(t, r.Stats().CacheErrors, int64(0))
}

func TestMultipleGroupsAllListed(t *testing.T) {
	t.Parallel()

	store := seedStore()
	store.AddGroup(Group{ID: "grp-h", OrgID: "org-o", Name: "H"})
	store.AddGroupMember("grp-h", "user-a")
	store.GrantPermission("grp-h", "activity:create")

	r := newTestResolver(t, store)
	d, err := r.Authorize(context.Background(), "user-a", "org-o", "activity:create")
	require.NoError(t, err)

	assert.True(t, d.Allowed)
	assert.ElementsMatch(t, []string{"G", "H"}, d.MatchedGroups)
}

func TestAuthorizeCorruptedMembershipEntryIsMiss(t *testing.T) {
	t.Parallel()

	c := cache.NewMemoryCache(cache.WithCleanupInterval(time.Minute))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	counting := &countingStore{Store: seedStore()}
	r := NewResolver(counting, c)

	// A corrupted tier-3 value must not stand in for confirmed membership:
	// the store is consulted and the non-member is still denied.
	require.NoError(t, c.Set(ctx, cache.MemberKey("user-b", "org-o"), "yes", time.Minute))

	d, err := r.Authorize(ctx, "user-b", "org-o", "activity:create")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotMember, d.Reason)
	assert.Positive(t, counting.calls.Load())
}
