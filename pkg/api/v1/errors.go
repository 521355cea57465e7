// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the HTTP handlers for the authorization, login and
// OAuth2 endpoints.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/logger"
	"github.com/grantly-io/grantly/pkg/oauth"
)

// errorResponse is the JSON error envelope for non-OAuth endpoints.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to encode response: %v", err)
	}
}

// writeError maps a typed error to the JSON error envelope. Cache errors
// never reach here; they are absorbed by the resolver.
func writeError(w http.ResponseWriter, err error) {
	var typed *grerrors.Error
	if !errors.As(err, &typed) {
		logger.Errorf("unexpected error reached handler: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: grerrors.ErrInternal})
		return
	}

	status := http.StatusInternalServerError
	switch typed.Type {
	case grerrors.ErrValidation:
		status = http.StatusBadRequest
	case grerrors.ErrInvalidCredentials, grerrors.ErrTokenExpired, grerrors.ErrTokenRevoked:
		status = http.StatusUnauthorized
	case grerrors.ErrNotMember, grerrors.ErrPermissionDenied:
		status = http.StatusForbidden
	case grerrors.ErrInternal, grerrors.ErrCacheUnavailable:
		logger.Errorw("internal error", "error", err)
		status = http.StatusInternalServerError
	}

	resp := errorResponse{Error: typed.Type, Message: typed.Message}
	if status == http.StatusInternalServerError {
		// Do not leak internals to the caller.
		resp.Message = ""
	}
	writeJSON(w, status, resp)
}

// writeOAuthError maps a protocol error to the OAuth2 error object. Unknown
// errors become server_error.
func writeOAuthError(w http.ResponseWriter, err error) {
	var oe *oauth.Error
	if !errors.As(err, &oe) {
		logger.Errorf("unexpected error at oauth endpoint: %v", err)
		oe = &oauth.Error{Code: oauth.CodeServerError}
	}

	status := http.StatusBadRequest
	switch oe.Code {
	case oauth.CodeInvalidClient:
		status = http.StatusUnauthorized
	case oauth.CodeServerError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, oe)
}
