// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the memory cache sweeps expired entries.
const DefaultCleanupInterval = time.Minute

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache implements Cache with in-memory maps. It is safe for concurrent
// use and suitable for development and testing; production deployments use
// the redis backend so entries are shared across instances.
type MemoryCache struct {
	mu sync.RWMutex

	entries map[string]*timedEntry[string]
	sets    map[string]*timedEntry[map[string]struct{}]

	cleanupInterval time.Duration

	// stopCleanup signals the cleanup goroutine to stop; cleanupDone is
	// closed when it has fully stopped.
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// MemoryCacheOption configures a MemoryCache instance.
type MemoryCacheOption func(*MemoryCache)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.cleanupInterval = interval
	}
}

// NewMemoryCache creates a MemoryCache and starts its background cleanup
// goroutine. Call Close to stop it.
func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries:         make(map[string]*timedEntry[string]),
		sets:            make(map[string]*timedEntry[map[string]struct{}]),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupLoop()

	return c
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (c *MemoryCache) Close() error {
	close(c.stopCleanup)
	<-c.cleanupDone
	return nil
}

// cleanupLoop runs periodic cleanup of expired entries.
func (c *MemoryCache) cleanupLoop() {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired entries. Uses collect-then-delete: expired
// keys are collected under read lock, then deleted under write lock to keep
// write lock hold time short.
func (c *MemoryCache) cleanupExpired() {
	now := time.Now()

	c.mu.RLock()
	var expiredEntries []string
	for k, v := range c.entries {
		if v.expired(now) {
			expiredEntries = append(expiredEntries, k)
		}
	}
	var expiredSets []string
	for k, v := range c.sets {
		if v.expired(now) {
			expiredSets = append(expiredSets, k)
		}
	}
	c.mu.RUnlock()

	if len(expiredEntries) == 0 && len(expiredSets) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range expiredEntries {
		delete(c.entries, k)
	}
	for _, k := range expiredSets {
		delete(c.sets, k)
	}
}

// Get returns the value stored at key, or ErrMiss.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(time.Now()) {
		return "", ErrMiss
	}
	return entry.value, nil
}

// Set stores value at key with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = &timedEntry[string]{value: value, expiresAt: expiresAt}
	return nil
}

// GetDelete atomically returns and removes the value stored at key.
func (c *MemoryCache) GetDelete(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(time.Now()) {
		return "", ErrMiss
	}
	delete(c.entries, key)
	return entry.value, nil
}

// Delete removes the given keys.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		delete(c.entries, k)
		delete(c.sets, k)
	}
	return nil
}

// AddToSet adds members to the set stored at key and refreshes its TTL.
func (c *MemoryCache) AddToSet(_ context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.sets[key]
	if !ok || entry.expired(now) {
		entry = &timedEntry[map[string]struct{}]{value: make(map[string]struct{})}
		c.sets[key] = entry
	}
	for _, m := range members {
		entry.value[m] = struct{}{}
	}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	return nil
}

// SetMembers returns the members of the set stored at key.
func (c *MemoryCache) SetMembers(_ context.Context, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.sets[key]
	if !ok || entry.expired(time.Now()) {
		return nil, nil
	}
	members := make([]string, 0, len(entry.value))
	for m := range entry.value {
		members = append(members, m)
	}
	return members, nil
}

// Stats contains statistics about the cache contents.
type Stats struct {
	Entries int
	Sets    int
}

// Stats returns current statistics about cache contents.
// This is useful for testing and monitoring.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Entries: len(c.entries),
		Sets:    len(c.sets),
	}
}

var _ Cache = (*MemoryCache)(nil)
