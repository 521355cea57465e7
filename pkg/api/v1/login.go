// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/login"
)

// LoginRoutes defines the routes for the staged login flow.
type LoginRoutes struct {
	flow *login.Flow
}

// LoginRouter creates the login-flow router.
func LoginRouter(flow *login.Flow) http.Handler {
	routes := LoginRoutes{flow: flow}

	r := chi.NewRouter()
	r.Post("/login", routes.start)
	r.Post("/login/code", routes.verifyCode)
	r.Post("/login/org", routes.selectOrg)
	r.Post("/logout", routes.logout)
	return r
}

type startLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *LoginRoutes) start(w http.ResponseWriter, r *http.Request) {
	var req startLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, grerrors.NewValidationError("invalid request body", err))
		return
	}

	res, err := s.flow.Start(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type verifyCodeRequest struct {
	PreAuthToken string `json:"pre_auth_token"`
	Code         string `json:"code"`
}

func (s *LoginRoutes) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, grerrors.NewValidationError("invalid request body", err))
		return
	}

	res, err := s.flow.VerifyCode(r.Context(), req.PreAuthToken, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type selectOrgRequest struct {
	PreAuthToken string `json:"pre_auth_token"`
	OrgID        string `json:"org_id"`
}

func (s *LoginRoutes) selectOrg(w http.ResponseWriter, r *http.Request) {
	var req selectOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, grerrors.NewValidationError("invalid request body", err))
		return
	}

	res, err := s.flow.SelectOrg(r.Context(), req.PreAuthToken, req.OrgID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type logoutRequest struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (s *LoginRoutes) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, grerrors.NewValidationError("invalid request body", err))
		return
	}

	if err := s.flow.Logout(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
