// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMemoryCache(t *testing.T, fn func(t *testing.T, c *MemoryCache)) {
	t.Helper()
	c := NewMemoryCache(WithCleanupInterval(10 * time.Millisecond))
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	fn(t, c)
}

func TestMemoryCacheGetSet(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		_, err := c.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrMiss)

		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		val, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
		time.Sleep(40 * time.Millisecond)

		_, err := c.Get(ctx, "short")
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestMemoryCacheCleanupRemovesExpired(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "short", "v", 10*time.Millisecond))
		require.NoError(t, c.AddToSet(ctx, "idx", 10*time.Millisecond, "m1"))

		assert.Eventually(t, func() bool {
			s := c.Stats()
			return s.Entries == 0 && s.Sets == 0
		}, time.Second, 10*time.Millisecond)
	})
}

func TestMemoryCacheDelete(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
		require.NoError(t, c.Set(ctx, "b", "2", time.Minute))
		require.NoError(t, c.Delete(ctx, "a", "b", "missing"))

		_, err := c.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrMiss)
		_, err = c.Get(ctx, "b")
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestMemoryCacheGetDelete(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		require.NoError(t, c.Set(ctx, "code", "payload", time.Minute))

		val, err := c.GetDelete(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, "payload", val)

		// Only the first caller observes the value.
		_, err = c.GetDelete(ctx, "code")
		assert.ErrorIs(t, err, ErrMiss)
	})
}

func TestMemoryCacheSets(t *testing.T) {
	t.Parallel()

	withMemoryCache(t, func(t *testing.T, c *MemoryCache) {
		ctx := context.Background()

		members, err := c.SetMembers(ctx, "idx")
		require.NoError(t, err)
		assert.Empty(t, members)

		require.NoError(t, c.AddToSet(ctx, "idx", time.Minute, "k1", "k2"))
		require.NoError(t, c.AddToSet(ctx, "idx", time.Minute, "k2", "k3"))

		members, err = c.SetMembers(ctx, "idx")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"k1", "k2", "k3"}, members)
	})
}

func TestJitterTTLStaysWithinBounds(t *testing.T) {
	t.Parallel()

	base := 300 * time.Second
	for i := 0; i < 1000; i++ {
		got := JitterTTL(base)
		assert.GreaterOrEqual(t, got, time.Duration(float64(base)*0.9))
		assert.Less(t, got, time.Duration(float64(base)*1.1))
	}
}

func TestKeyFormats(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "decision:u1:o1:activity:create", DecisionKey("u1", "o1", "activity:create"))
	assert.Equal(t, "permset:u1:o1", PermSetKey("u1", "o1"))
	assert.Equal(t, "member:u1:o1", MemberKey("u1", "o1"))
	assert.Equal(t, "revoked:abc", RevokedKey("abc"))
}
