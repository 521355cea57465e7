// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantly-io/grantly/pkg/oauth"
	"github.com/grantly-io/grantly/pkg/token"
)

// OAuthRoutes defines the OAuth2 protocol endpoints.
type OAuthRoutes struct {
	controller *oauth.Controller
	tokens     *token.Manager
}

// OAuthRouter creates the OAuth2 router. The consent decision on the
// authorize endpoint requires a valid access token; the token and revocation
// endpoints authenticate the client instead.
func OAuthRouter(controller *oauth.Controller, tokens *token.Manager) http.Handler {
	routes := OAuthRoutes{controller: controller, tokens: tokens}

	r := chi.NewRouter()
	r.Get("/authorize", routes.beginAuthorize)
	r.With(RequireAccessToken(tokens)).Post("/authorize", routes.finishAuthorize)
	r.Post("/token", routes.token)
	r.Post("/revoke", routes.revoke)
	return r
}

func authorizeRequestFromValues(get func(string) string) oauth.AuthorizeRequest {
	return oauth.AuthorizeRequest{
		ResponseType:        get("response_type"),
		ClientID:            get("client_id"),
		RedirectURI:         get("redirect_uri"),
		Scope:               get("scope"),
		State:               get("state"),
		CodeChallenge:       get("code_challenge"),
		CodeChallengeMethod: get("code_challenge_method"),
		Nonce:               get("nonce"),
	}
}

// beginAuthorize validates the authorization request and returns the consent
// representation. Redirectable protocol errors are delivered to the client's
// redirect URI.
func (s *OAuthRoutes) beginAuthorize(w http.ResponseWriter, r *http.Request) {
	req := authorizeRequestFromValues(r.URL.Query().Get)

	consent, err := s.controller.BeginAuthorization(r.Context(), req)
	if err != nil {
		s.authorizeError(w, r, req, err)
		return
	}
	writeJSON(w, http.StatusOK, consent)
}

// finishAuthorize resolves the consent decision for the authenticated user
// and redirects back to the client.
func (s *OAuthRoutes) finishAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauth.NewInvalidRequestError("malformed form body"))
		return
	}
	req := authorizeRequestFromValues(r.PostForm.Get)
	approved := r.PostForm.Get("consent") == "approve"

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeOAuthError(w, oauth.NewInvalidRequestError("missing authenticated user"))
		return
	}

	redirectTo, err := s.controller.FinishAuthorization(r.Context(), req, claims.Subject, claims.OrgID, approved)
	if err != nil {
		s.authorizeError(w, r, req, err)
		return
	}
	http.Redirect(w, r, redirectTo, http.StatusFound)
}

// authorizeError delivers redirectable errors to the redirect URI and
// renders the rest directly.
func (s *OAuthRoutes) authorizeError(w http.ResponseWriter, r *http.Request, req oauth.AuthorizeRequest, err error) {
	if target, ok := oauth.ErrorRedirect(req, err); ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	writeOAuthError(w, err)
}

func (s *OAuthRoutes) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauth.NewInvalidRequestError("malformed form body"))
		return
	}

	resp, err := s.controller.Exchange(r.Context(), oauth.TokenRequest{
		GrantType:    oauth.GrantType(r.PostForm.Get("grant_type")),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Scope:        r.PostForm.Get("scope"),
	})
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// revoke implements the revocation endpoint. Once the client authenticates,
// the response is always 200 with an empty body.
func (s *OAuthRoutes) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oauth.NewInvalidRequestError("malformed form body"))
		return
	}

	err := s.controller.Revoke(r.Context(),
		r.PostForm.Get("client_id"),
		r.PostForm.Get("client_secret"),
		r.PostForm.Get("token"),
	)
	if err != nil {
		writeOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
