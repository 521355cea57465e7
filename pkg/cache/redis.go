// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the redis host:port.
	Addr string

	// Username and Password authenticate against a Redis ACL user.
	Username string
	Password string

	// DB selects the redis logical database.
	DB int

	// KeyPrefix namespaces all keys, e.g. "grantly:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read/Write per DefaultReadTimeout/DefaultWriteTimeout).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisCache implements Cache on a redis backend. All failures are wrapped as
// cache_unavailable errors; callers treat them as misses and fall back to the
// authoritative store.
type RedisCache struct {
	client       redis.UniversalClient
	keyPrefix    string
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client:       client,
		keyPrefix:    cfg.KeyPrefix,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

// NewRedisCacheWithClient creates a RedisCache with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisCacheWithClient(client redis.UniversalClient, keyPrefix string) *RedisCache {
	return &RedisCache{
		client:       client,
		keyPrefix:    keyPrefix,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
}

// Close closes the redis client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks redis connectivity (health check).
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the value stored at key, or ErrMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", grerrors.NewCacheUnavailableError("redis get failed", err)
	}
	return val, nil
}

// Set stores value at key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return grerrors.NewCacheUnavailableError("redis set failed", err)
	}
	return nil
}

// GetDelete atomically returns and removes the value stored at key.
func (c *RedisCache) GetDelete(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	val, err := c.client.GetDel(ctx, c.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", grerrors.NewCacheUnavailableError("redis getdel failed", err)
	}
	return val, nil
}

// Delete removes the given keys. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.keyPrefix + k
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		return grerrors.NewCacheUnavailableError("redis del failed", err)
	}
	return nil
}

// AddToSet adds members to the set stored at key and refreshes its TTL.
func (c *RedisCache) AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	prefixed := c.keyPrefix + key
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.client.SAdd(ctx, prefixed, args...).Err(); err != nil {
		return grerrors.NewCacheUnavailableError("redis sadd failed", err)
	}
	if err := c.client.Expire(ctx, prefixed, ttl).Err(); err != nil {
		return grerrors.NewCacheUnavailableError("redis expire failed", err)
	}
	return nil
}

// SetMembers returns the members of the set stored at key.
func (c *RedisCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	members, err := c.client.SMembers(ctx, c.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, grerrors.NewCacheUnavailableError("redis smembers failed", err)
	}
	return members, nil
}

var _ Cache = (*RedisCache)(nil)
