// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package api assembles the HTTP server for the authorization service.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/grantly-io/grantly/pkg/api/v1"
	"github.com/grantly-io/grantly/pkg/audit"
	"github.com/grantly-io/grantly/pkg/login"
	"github.com/grantly-io/grantly/pkg/logger"
	"github.com/grantly-io/grantly/pkg/oauth"
	"github.com/grantly-io/grantly/pkg/rbac"
	"github.com/grantly-io/grantly/pkg/token"
)

const (
	middlewareTimeout = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Deps carries the wired subsystems the server exposes.
type Deps struct {
	Resolver  *rbac.Resolver
	Login     *login.Flow
	OAuth     *oauth.Controller
	Tokens    *token.Manager
	Discovery *oauth.Metadata

	// Health maps dependency names to their connectivity checks.
	Health map[string]v1.Pinger

	// Auditor, when set, records an audit event per request.
	Auditor *audit.Auditor
}

// Router builds the chi router for the service.
func Router(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)
	if deps.Auditor != nil {
		r.Use(deps.Auditor.Middleware)
	}

	routers := map[string]http.Handler{
		"/health":      v1.HealthcheckRouter(deps.Health),
		"/v1/authz":    v1.AuthzRouter(deps.Resolver),
		"/v1/auth":     v1.LoginRouter(deps.Login),
		"/oauth":       v1.OAuthRouter(deps.OAuth, deps.Tokens),
		"/.well-known": v1.DiscoveryRouter(deps.Discovery),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve runs the HTTP server on address until ctx is cancelled, then shuts
// down gracefully. The caller sets up signal handling.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           Router(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("starting HTTP server on %s", address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
