// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"
	"strings"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/token"
)

type claimsContextKey struct{}

// RequireAccessToken validates the bearer token on incoming requests and
// stores its claims in the request context. Refresh and pre-auth tokens are
// rejected: only access tokens open resource endpoints.
func RequireAccessToken(tokens *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, grerrors.NewValidationError("missing bearer token", nil))
				return
			}

			claims, err := tokens.ValidateType(r.Context(), raw, token.TypeAccess)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the access-token claims stored by
// RequireAccessToken.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
