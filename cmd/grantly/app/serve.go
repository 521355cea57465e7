// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grantly-io/grantly/pkg/api"
	v1 "github.com/grantly-io/grantly/pkg/api/v1"
	"github.com/grantly-io/grantly/pkg/audit"
	"github.com/grantly-io/grantly/pkg/cache"
	"github.com/grantly-io/grantly/pkg/config"
	"github.com/grantly-io/grantly/pkg/logger"
	"github.com/grantly-io/grantly/pkg/login"
	"github.com/grantly-io/grantly/pkg/migration"
	"github.com/grantly-io/grantly/pkg/oauth"
	"github.com/grantly-io/grantly/pkg/rbac"
	"github.com/grantly-io/grantly/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authorization server",
	Long: `Start the grantly HTTP server. With --redis-addr and --database-dsn the
server uses redis for caching/revocation and postgres for principals and
OAuth clients; without them it falls back to in-process stores, which is
only suitable for development.`,
	RunE: runServe,
}

const (
	readinessMaxTries  = 8
	readinessMaxElapse = 2 * time.Minute
)

func init() {
	flags := serveCmd.Flags()
	flags.String("address", config.DefaultAddress, "Address to listen on")
	flags.String("issuer", "", "External base URL of this server")
	flags.String("signing-key", "", "HMAC token signing key")
	flags.String("redis-addr", "", "Redis host:port (empty: in-memory cache)")
	flags.String("database-dsn", "", "Postgres DSN (empty: in-memory stores)")
	flags.String("clients-file", "", "JSON file of OAuth clients to register at startup")
	flags.Duration("access-ttl", config.DefaultAccessTTL, "Access token lifetime")
	flags.Duration("refresh-ttl", config.DefaultRefreshTTL, "Refresh token lifetime")
	flags.Duration("code-ttl", config.DefaultCodeTTL, "Authorization code lifetime")

	config.SetDefaults(viper.GetViper())
	for _, name := range []string{
		"address", "issuer", "signing-key", "redis-addr",
		"database-dsn", "clients-file", "access-ttl", "refresh-ttl", "code-ttl",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// Re-initialize so the debug flag takes effect.
	logger.Initialize()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingers := make(map[string]v1.Pinger)

	store, clients, db, err := openStores(ctx, cfg, pingers)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	decisionCache, codeCache, index, closeCaches, err := openCaches(ctx, cfg, pingers)
	if err != nil {
		return err
	}
	defer closeCaches()

	tokens, err := token.NewManager([]byte(cfg.SigningKey), cfg.Issuer, index,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Resolver:  rbac.NewResolver(store, decisionCache),
		Login:     login.NewFlow(store, tokens, login.NewCacheVerifier(codeCache), login.WithCodeSender(logSender())),
		OAuth:     oauth.NewController(clients, oauth.NewCodeStore(codeCache), tokens, oauth.WithCodeTTL(cfg.CodeTTL)),
		Tokens:    tokens,
		Discovery: oauth.NewMetadata(cfg.Issuer, defaultScopes()),
		Health:    pingers,
		Auditor:   audit.NewAuditor("grantly", os.Stdout),
	}

	return api.Serve(ctx, cfg.Address, deps)
}

func defaultScopes() []string {
	return []string{"openid", "profile", "email", "offline_access"}
}

// logSender writes issued login codes to the server log instead of
// delivering them. Deployments with a mail or SMS integration swap in their
// own sender here.
func logSender() login.CodeSender {
	return login.SenderFunc(func(_ context.Context, user *rbac.User, code string) error {
		logger.Infow("login code issued", "user_id", user.ID, "email", user.Email, "code", code)
		return nil
	})
}

// openStores connects the principal and client stores. A configured
// postgres DSN is authoritative; otherwise in-memory stores are used and
// OAuth clients are seeded from the clients file.
func openStores(ctx context.Context, cfg *config.Config, pingers map[string]v1.Pinger) (rbac.Store, oauth.ClientStore, *sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		logger.Info("No database configured, using in-memory stores")
		clients := oauth.NewMemoryClientStore()
		if err := seedClients(clients, cfg.ClientsFile); err != nil {
			return nil, nil, nil, err
		}
		return rbac.NewMemoryStore(), clients, nil, nil
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if _, err := waitForDependency(ctx, "postgres", func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	if err := migration.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	pingers["postgres"] = v1.PingerFunc(db.PingContext)
	return rbac.NewPGStore(db), oauth.NewPGClientStore(db), db, nil
}

// openCaches connects the decision cache, the short-lived-code cache, and
// the revocation index. With redis all three share one connection; without
// it the in-process memory backends carry their own cleanup workers, which
// the returned close function stops.
func openCaches(ctx context.Context, cfg *config.Config, pingers map[string]v1.Pinger) (
	cache.Cache, cache.Cache, token.RevocationIndex, func(), error,
) {
	if cfg.RedisAddr == "" {
		logger.Info("No redis configured, using in-memory cache and revocation index")
		mem := cache.NewMemoryCache()
		index := token.NewMemoryIndex()
		closeAll := func() {
			_ = index.Close()
			_ = mem.Close()
		}
		return mem, mem, index, closeAll, nil
	}

	redisCache, err := waitForDependency(ctx, "redis", func() (*cache.RedisCache, error) {
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Username:  cfg.RedisUsername,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	pingers["redis"] = redisCache
	return redisCache, redisCache, token.NewRedisIndex(redisCache), func() { _ = redisCache.Close() }, nil
}

// waitForDependency retries a dependency connection with exponential
// backoff until it succeeds or the retry budget runs out.
func waitForDependency[T any](ctx context.Context, name string, connect func() (T, error)) (T, error) {
	result, err := backoff.Retry(ctx, connect,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(readinessMaxTries),
		backoff.WithMaxElapsedTime(readinessMaxElapse),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Warnf("Waiting for %s: %v (retrying in %s)", name, err, duration)
		}),
	)
	if err != nil {
		return result, fmt.Errorf("%s not ready: %w", name, err)
	}
	logger.Infof("Connected to %s", name)
	return result, nil
}

// clientSeed is the on-disk shape of a registered OAuth client. Secrets are
// stored as bcrypt hashes; `grantly client new` produces entries.
type clientSeed struct {
	ID              string   `json:"id"`
	SecretHash      string   `json:"secret_hash,omitempty"`
	Type            string   `json:"type"`
	RedirectURIs    []string `json:"redirect_uris"`
	AllowedScopes   []string `json:"allowed_scopes"`
	GrantTypes      []string `json:"grant_types"`
	RequiresConsent bool     `json:"requires_consent"`
}

func seedClients(store *oauth.MemoryClientStore, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read clients file: %w", err)
	}

	var seeds []clientSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("failed to parse clients file: %w", err)
	}

	for _, seed := range seeds {
		grants := make([]oauth.GrantType, 0, len(seed.GrantTypes))
		for _, g := range seed.GrantTypes {
			grants = append(grants, oauth.GrantType(g))
		}
		store.Register(&oauth.Client{
			ID:              seed.ID,
			SecretHash:      seed.SecretHash,
			Type:            oauth.ClientType(seed.Type),
			RedirectURIs:    seed.RedirectURIs,
			AllowedScopes:   seed.AllowedScopes,
			GrantTypes:      grants,
			RequiresConsent: seed.RequiresConsent,
		})
	}

	logger.Infof("Registered %d OAuth clients from %s", len(seeds), path)
	return nil
}
