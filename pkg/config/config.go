// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the grantly server configuration.
//
// All settings resolve through viper: command-line flags take precedence,
// then GRANTLY_* environment variables, then defaults. The signing key is
// only accepted from the environment or a flag, never from a file, so it
// does not end up in version control by accident.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither a flag nor an environment variable sets the key.
const (
	DefaultAddress    = ":8080"
	DefaultKeyPrefix  = "grantly:"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultCodeTTL    = 10 * time.Minute
)

// Config holds the resolved server configuration.
type Config struct {
	// Address is the host:port the HTTP server listens on.
	Address string

	// Issuer is the external base URL of this server, used as the JWT
	// issuer claim and in the discovery document.
	Issuer string

	// SigningKey is the HMAC key for token signing.
	SigningKey string

	// Debug enables debug-level logging.
	Debug bool

	// RedisAddr enables the redis cache and revocation index when set.
	// Empty means in-process memory backends.
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// DatabaseDSN enables the postgres stores when set. Empty means
	// in-memory stores seeded from ClientsFile.
	DatabaseDSN string

	// ClientsFile is a JSON file of OAuth clients to register at startup.
	ClientsFile string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CodeTTL    time.Duration
}

// SetDefaults registers default values and the GRANTLY_* environment
// binding on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("address", DefaultAddress)
	v.SetDefault("redis-prefix", DefaultKeyPrefix)
	v.SetDefault("access-ttl", DefaultAccessTTL)
	v.SetDefault("refresh-ttl", DefaultRefreshTTL)
	v.SetDefault("code-ttl", DefaultCodeTTL)

	v.SetEnvPrefix("grantly")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// Load resolves the configuration from the given viper instance.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Address:       v.GetString("address"),
		Issuer:        v.GetString("issuer"),
		SigningKey:    v.GetString("signing-key"),
		Debug:         v.GetBool("debug"),
		RedisAddr:     v.GetString("redis-addr"),
		RedisUsername: v.GetString("redis-username"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		RedisPrefix:   v.GetString("redis-prefix"),
		DatabaseDSN:   v.GetString("database-dsn"),
		ClientsFile:   v.GetString("clients-file"),
		AccessTTL:     v.GetDuration("access-ttl"),
		RefreshTTL:    v.GetDuration("refresh-ttl"),
		CodeTTL:       v.GetDuration("code-ttl"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return errors.New("signing key is required (set GRANTLY_SIGNING_KEY or --signing-key)")
	}
	if c.Issuer == "" {
		return errors.New("issuer is required (set GRANTLY_ISSUER or --issuer)")
	}
	if !strings.HasPrefix(c.Issuer, "http://") && !strings.HasPrefix(c.Issuer, "https://") {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.CodeTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}
