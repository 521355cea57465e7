// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	v1 "github.com/grantly-io/grantly/pkg/api/v1"
	"github.com/grantly-io/grantly/pkg/cache"
	"github.com/grantly-io/grantly/pkg/login"
	"github.com/grantly-io/grantly/pkg/oauth"
	"github.com/grantly-io/grantly/pkg/rbac"
	"github.com/grantly-io/grantly/pkg/token"
)

const (
	testPassword    = "correct horse battery staple"
	testRedirectURI = "https://app.example/cb"
)

type serverFixture struct {
	handler http.Handler
	store   *rbac.MemoryStore
	tokens  *token.Manager
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	index := token.NewMemoryIndex(token.WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = index.Close() })

	tokens, err := token.NewManager([]byte("api-test-key"), "https://auth.test", index)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	store := rbac.NewMemoryStore()
	store.AddUser(rbac.User{ID: "user-a", Email: "a@example.com", PasswordHash: string(hash), Verified: true})
	store.AddOrganization(rbac.Organization{ID: "org-o", Name: "Acme"})
	store.AddMembership(rbac.Membership{UserID: "user-a", OrgID: "org-o", Role: rbac.RoleMember})
	store.AddGroup(rbac.Group{ID: "grp-g", OrgID: "org-o", Name: "G"})
	store.AddGroupMember("grp-g", "user-a")
	store.GrantPermission("grp-g", "activity:create")

	clients := oauth.NewMemoryClientStore()
	clients.Register(&oauth.Client{
		ID:            "native-app",
		Type:          oauth.ClientPublic,
		RedirectURIs:  []string{testRedirectURI},
		AllowedScopes: []string{"openid", "profile"},
		GrantTypes:    []oauth.GrantType{oauth.GrantAuthorizationCode, oauth.GrantRefreshToken},
	})

	deps := Deps{
		Resolver: rbac.NewResolver(store, mem),
		Login: login.NewFlow(store, tokens, login.VerifierFunc(
			func(_ context.Context, _, code string) error {
				if code != "123456" {
					return assert.AnError
				}
				return nil
			})),
		OAuth:     oauth.NewController(clients, oauth.NewCodeStore(mem), tokens),
		Tokens:    tokens,
		Discovery: oauth.NewMetadata("https://auth.test", []string{"openid", "profile"}),
		Health:    map[string]v1.Pinger{},
	}

	return &serverFixture{handler: Router(deps), store: store, tokens: tokens}
}

func (f *serverFixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *serverFixture) postForm(t *testing.T, path string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestAuthzCheckEndpoint(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.postJSON(t, "/v1/authz/check", map[string]string{
		"user_id": "user-a", "org_id": "org-o", "permission": "activity:create",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decodeBody[rbac.Decision](t, rec)
	assert.True(t, decision.Allowed)
	assert.Equal(t, []string{"G"}, decision.MatchedGroups)
}

func TestAuthzCheckDenialIsSuccessResponse(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.postJSON(t, "/v1/authz/check", map[string]string{
		"user_id": "user-b", "org_id": "org-o", "permission": "activity:create",
	})
	// Denial is a normal success body, never a transport error.
	require.Equal(t, http.StatusOK, rec.Code)
	decision := decodeBody[rbac.Decision](t, rec)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "not a member", decision.Reason)
}

func TestAuthzCheckValidation(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.postJSON(t, "/v1/authz/check", map[string]string{
		"user_id": "user-a", "org_id": "org-o", "permission": "no-colon",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "validation", body["error"])
}

// loginForTokens drives the full login flow and returns the issued tokens.
func loginForTokens(t *testing.T, f *serverFixture) *login.Result {
	t.Helper()

	rec := f.postJSON(t, "/v1/auth/login", map[string]string{
		"email": "a@example.com", "password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	started := decodeBody[login.Result](t, rec)
	require.Equal(t, login.StagePasswordVerified, started.Stage)

	rec = f.postJSON(t, "/v1/auth/login/code", map[string]string{
		"pre_auth_token": started.PreAuthToken, "code": "123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	finished := decodeBody[login.Result](t, rec)
	require.Equal(t, login.StageTokensIssued, finished.Stage)
	require.NotEmpty(t, finished.AccessToken)
	return &finished
}

func TestLoginFlowOverHTTP(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	res := loginForTokens(t, f)
	assert.Equal(t, "org-o", res.OrgID)

	rec := f.postJSON(t, "/v1/auth/logout", map[string]string{
		"access_token": res.AccessToken, "refresh_token": res.RefreshToken,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.tokens.Validate(context.Background(), res.AccessToken)
	assert.Error(t, err)
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.postJSON(t, "/v1/auth/login", map[string]string{
		"email": "a@example.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "invalid_credentials", body["error"])
}

func TestOAuthAuthorizeAndExchangeOverHTTP(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	verifier := "0123456789-0123456789-0123456789-0123456789"
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {"native-app"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"openid"},
		"state":                 {"xyz"},
		"code_challenge":        {oauth.S256Challenge(verifier)},
		"code_challenge_method": {"S256"},
	}

	// Consent representation.
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	consent := decodeBody[oauth.ConsentRequest](t, rec)
	assert.Equal(t, "native-app", consent.ClientID)

	// Consent decision requires an authenticated user.
	rec = f.postForm(t, "/oauth/authorize", withConsent(params, "approve"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	session := loginForTokens(t, f)
	rec = f.postForm(t, "/oauth/authorize", withConsent(params, "approve"), map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	})
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "xyz", redirect.Query().Get("state"))

	// Exchange.
	rec = f.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"native-app"},
		"code_verifier": {verifier},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	tokens := decodeBody[oauth.TokenResponse](t, rec)
	assert.NotEmpty(t, tokens.AccessToken)

	// Replay fails with the protocol error object.
	rec = f.postForm(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"native-app"},
		"code_verifier": {verifier},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "invalid_grant", body["error"])

	// Revocation always reports success.
	rec = f.postForm(t, "/oauth/revoke", url.Values{
		"client_id": {"native-app"},
		"token":     {tokens.AccessToken},
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOAuthAuthorizeDeniedConsent(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)
	session := loginForTokens(t, f)

	verifier := "0123456789-0123456789-0123456789-0123456789"
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {"native-app"},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"openid"},
		"state":                 {"xyz"},
		"code_challenge":        {oauth.S256Challenge(verifier)},
		"code_challenge_method": {"S256"},
	}

	rec := f.postForm(t, "/oauth/authorize", withConsent(params, "deny"), map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
	})
	require.Equal(t, http.StatusFound, rec.Code)

	redirect, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", redirect.Query().Get("error"))
	assert.Empty(t, redirect.Query().Get("code"))
}

func TestDiscoveryEndpoint(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age")
	md := decodeBody[oauth.Metadata](t, rec)
	assert.Equal(t, "https://auth.test", md.Issuer)
	assert.Equal(t, "https://auth.test/oauth/token", md.TokenEndpoint)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func withConsent(params url.Values, decision string) url.Values {
	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("consent", decision)
	return form
}
