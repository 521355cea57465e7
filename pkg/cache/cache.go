// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the distributed key-value store backing the
// decision cache and the token revocation index.
package cache

import (
	"context"
	"errors"
	mathrand "math/rand"
	"time"
)

// Default timeouts for cache operations. Reads and writes are bounded so a
// slow backend degrades to a fallback read instead of hanging the request.
const (
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
)

// ErrMiss is returned by Get when the key is absent. Backend failures are
// reported as distinct errors so callers can log them before degrading.
var ErrMiss = errors.New("cache: miss")

// Cache is a TTL-bound key-value store with set-valued index keys.
//
// Every operation takes a context and is bounded by the backend's
// per-operation timeout. Implementations must be safe for concurrent use.
// Writes are idempotent: re-deriving and overwriting an entry is harmless,
// so no cross-process locking is required.
type Cache interface {
	// Get returns the value stored at key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key with the given TTL.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// GetDelete atomically returns the value stored at key and removes it,
	// or ErrMiss. At most one concurrent caller observes the value, which
	// makes it the primitive behind single-use records.
	GetDelete(ctx context.Context, key string) (string, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// AddToSet adds members to the set stored at key and refreshes its TTL.
	// Set keys act as secondary indexes for bulk invalidation.
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error

	// SetMembers returns the members of the set stored at key.
	// An absent set yields an empty slice, not an error.
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// JitterTTL applies random jitter (±10%) to a TTL so entries written together
// do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	// Uniform in [0.9*ttl, 1.1*ttl).
	spread := float64(ttl) * 0.2
	return time.Duration(float64(ttl)*0.9 + mathrand.Float64()*spread) //nolint:gosec // jitter, not secrets
}
