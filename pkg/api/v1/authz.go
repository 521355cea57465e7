// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/rbac"
)

// AuthzRoutes defines the routes for authorization checks.
type AuthzRoutes struct {
	resolver *rbac.Resolver
}

// AuthzRouter creates the authorization-check router.
func AuthzRouter(resolver *rbac.Resolver) http.Handler {
	routes := AuthzRoutes{resolver: resolver}

	r := chi.NewRouter()
	r.Post("/check", routes.check)
	return r
}

type checkRequest struct {
	UserID     string `json:"user_id"`
	OrgID      string `json:"org_id"`
	Permission string `json:"permission"`
}

// check runs an authorization decision. Denial is a normal 200 response with
// allowed=false; only malformed input or a store failure is an error.
func (s *AuthzRoutes) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, grerrors.NewValidationError("invalid request body", err))
		return
	}

	decision, err := s.resolver.Authorize(r.Context(), req.UserID, req.OrgID, req.Permission)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}
