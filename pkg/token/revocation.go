// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/grantly-io/grantly/pkg/cache"
	grerrors "github.com/grantly-io/grantly/pkg/errors"
)

// RevocationIndex records revoked token IDs until the tokens they belong to
// would have expired anyway. Marking an already-revoked ID again is a no-op.
type RevocationIndex interface {
	// Revoke marks jti revoked. expiresAt bounds how long the entry must be
	// retained; entries for already-expired tokens may be dropped immediately.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisIndex stores revocation marks in the shared cache keyspace with a
// native TTL, so entries expire exactly when the token would have.
type RedisIndex struct {
	cache cache.Cache
}

var _ RevocationIndex = (*RedisIndex)(nil)

// NewRedisIndex creates a revocation index backed by c.
func NewRedisIndex(c cache.Cache) *RedisIndex {
	return &RedisIndex{cache: c}
}

// Revoke implements RevocationIndex.
func (r *RedisIndex) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// The token is already expired; nothing can replay it.
		return nil
	}
	return r.cache.Set(ctx, cache.RevokedKey(jti), "1", ttl)
}

// IsRevoked implements RevocationIndex. Unlike the decision cache, an
// unavailable backend is surfaced as an error: revocation checks must not
// silently pass.
func (r *RedisIndex) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.cache.Get(ctx, cache.RevokedKey(jti))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	return false, err
}

// MemoryIndex is an in-process revocation index for tests and single-node
// deployments. A background sweeper drops entries whose tokens have expired.
type MemoryIndex struct {
	mutex   sync.RWMutex
	revoked map[string]time.Time

	stopSweep chan struct{}
	sweepDone chan struct{}
}

var _ RevocationIndex = (*MemoryIndex)(nil)

// MemoryIndexOption configures a MemoryIndex.
type MemoryIndexOption func(*memoryIndexConfig)

type memoryIndexConfig struct {
	sweepInterval time.Duration
}

// WithSweepInterval overrides how often expired entries are collected.
func WithSweepInterval(interval time.Duration) MemoryIndexOption {
	return func(c *memoryIndexConfig) {
		c.sweepInterval = interval
	}
}

// NewMemoryIndex creates a memory-backed revocation index and starts its
// sweeper. Call Close to stop the sweeper.
func NewMemoryIndex(opts ...MemoryIndexOption) *MemoryIndex {
	cfg := memoryIndexConfig{sweepInterval: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &MemoryIndex{
		revoked:   make(map[string]time.Time),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweepLoop(cfg.sweepInterval)
	return m
}

// Revoke implements RevocationIndex.
func (m *MemoryIndex) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if time.Until(expiresAt) <= 0 {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.revoked[jti] = expiresAt
	return nil
}

// IsRevoked implements RevocationIndex.
func (m *MemoryIndex) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	expiresAt, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	// An expired entry the sweeper has not collected yet counts as gone.
	return time.Now().Before(expiresAt), nil
}

// Len returns the number of retained entries.
func (m *MemoryIndex) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.revoked)
}

// Close stops the sweeper goroutine.
func (m *MemoryIndex) Close() error {
	close(m.stopSweep)
	<-m.sweepDone
	return nil
}

func (m *MemoryIndex) sweepLoop(interval time.Duration) {
	defer close(m.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *MemoryIndex) sweep() {
	now := time.Now()

	m.mutex.RLock()
	var expired []string
	for jti, expiresAt := range m.revoked {
		if now.After(expiresAt) {
			expired = append(expired, jti)
		}
	}
	m.mutex.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.mutex.Lock()
	for _, jti := range expired {
		if expiresAt, ok := m.revoked[jti]; ok && now.After(expiresAt) {
			delete(m.revoked, jti)
		}
	}
	m.mutex.Unlock()
}

// wrapIndexErr converts backend failures into the typed internal error the
// API layer maps to a 5xx.
func wrapIndexErr(err error) error {
	if err == nil {
		return nil
	}
	return grerrors.NewInternalError("revocation index unavailable", err)
}
