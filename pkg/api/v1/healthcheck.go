// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantly-io/grantly/pkg/logger"
)

// Pinger checks connectivity to a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthcheckRoutes defines the health endpoints.
type HealthcheckRoutes struct {
	deps map[string]Pinger
}

// HealthcheckRouter creates the health router. Liveness always succeeds;
// readiness pings the named dependencies.
func HealthcheckRouter(deps map[string]Pinger) http.Handler {
	routes := HealthcheckRoutes{deps: deps}

	r := chi.NewRouter()
	r.Get("/", routes.live)
	r.Get("/ready", routes.ready)
	return r
}

func (*HealthcheckRoutes) live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *HealthcheckRoutes) ready(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, dep := range s.deps {
		if err := dep.Ping(r.Context()); err != nil {
			logger.Warnw("readiness check failed", "dependency", name, "error", err)
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
