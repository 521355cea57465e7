// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantly-io/grantly/pkg/oauth"
)

// DiscoveryRouter serves the authorization-server metadata document. The
// document is static per process, so clients may cache it.
func DiscoveryRouter(metadata *oauth.Metadata) http.Handler {
	r := chi.NewRouter()
	r.Get("/oauth-authorization-server", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, metadata)
	})
	return r
}
