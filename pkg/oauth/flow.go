// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/logger"
	"github.com/grantly-io/grantly/pkg/token"
)

// ResponseTypeCode is the only supported authorization response type.
const ResponseTypeCode = "code"

// AuthorizeRequest carries the query parameters of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// Scopes splits the space-delimited scope parameter.
func (r *AuthorizeRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

// ConsentRequest is a validated authorization request awaiting the user's
// consent decision.
type ConsentRequest struct {
	ClientID        string   `json:"client_id"`
	Scopes          []string `json:"scopes"`
	RedirectURI     string   `json:"redirect_uri"`
	State           string   `json:"state,omitempty"`
	RequiresConsent bool     `json:"requires_consent"`
}

// TokenRequest carries the form parameters of a token-endpoint request.
type TokenRequest struct {
	GrantType    GrantType
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the token-endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Controller orchestrates the authorization-code flow from consent to token
// exchange, plus the refresh_token and client_credentials grants.
type Controller struct {
	clients ClientStore
	codes   *CodeStore
	tokens  *token.Manager
	codeTTL time.Duration
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithCodeTTL overrides the authorization-code lifetime.
func WithCodeTTL(ttl time.Duration) ControllerOption {
	return func(c *Controller) { c.codeTTL = ttl }
}

// NewController creates a flow controller.
func NewController(clients ClientStore, codes *CodeStore, tokens *token.Manager, opts ...ControllerOption) *Controller {
	c := &Controller{
		clients: clients,
		codes:   codes,
		tokens:  tokens,
		codeTTL: DefaultCodeTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginAuthorization validates an authorization request and returns the
// consent representation. Errors raised before the redirect URI is verified
// are not redirectable.
func (c *Controller) BeginAuthorization(ctx context.Context, req AuthorizeRequest) (*ConsentRequest, error) {
	client, err := c.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	// The redirect URI must be trusted before any error may be delivered
	// through it.
	if !client.MatchRedirectURI(req.RedirectURI) {
		return nil, newError(CodeInvalidRequest, "redirect_uri does not match a registered URI")
	}

	if req.ResponseType != ResponseTypeCode {
		return nil, newRedirectError(CodeUnsupportedResponseType,
			fmt.Sprintf("response_type %q is not supported", req.ResponseType))
	}
	if !client.ScopesAllowed(req.Scopes()) {
		return nil, newRedirectError(CodeInvalidScope, "requested scope exceeds the client's allowed scopes")
	}
	if !ValidChallengeMethod(req.CodeChallengeMethod) {
		return nil, newRedirectError(CodeInvalidRequest,
			fmt.Sprintf("code_challenge_method %q is not supported", req.CodeChallengeMethod))
	}
	if req.CodeChallenge == "" && req.CodeChallengeMethod != "" {
		return nil, newRedirectError(CodeInvalidRequest, "code_challenge_method without code_challenge")
	}
	// Public clients cannot authenticate the exchange with a secret, so the
	// code must be PKCE-bound up front.
	if client.Type == ClientPublic && req.CodeChallenge == "" {
		return nil, newRedirectError(CodeInvalidRequest, "public clients must use PKCE")
	}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, newRedirectError(CodeUnauthorizedClient, "client is not registered for the authorization_code grant")
	}

	return &ConsentRequest{
		ClientID:        client.ID,
		Scopes:          req.Scopes(),
		RedirectURI:     req.RedirectURI,
		State:           req.State,
		RequiresConsent: client.RequiresConsent,
	}, nil
}

// FinishAuthorization resolves a consent decision. It returns the URL the
// user agent must be redirected to: with a code and state on approval, with
// an access_denied error on denial. The request is re-validated so a forged
// consent POST cannot bypass BeginAuthorization.
func (c *Controller) FinishAuthorization(ctx context.Context, req AuthorizeRequest, userID, orgID string, approved bool) (string, error) {
	if _, err := c.BeginAuthorization(ctx, req); err != nil {
		return "", err
	}

	if !approved {
		return redirectWith(req.RedirectURI, url.Values{
			"error": {CodeAccessDenied},
			"state": {req.State},
		})
	}

	value, err := NewCodeValue()
	if err != nil {
		return "", newError(CodeServerError, "could not generate authorization code")
	}
	code := &AuthorizationCode{
		Code:                value,
		UserID:              userID,
		OrgID:               orgID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes(),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		ExpiresAt:           time.Now().Add(c.codeTTL),
	}
	if err := c.codes.Save(ctx, code); err != nil {
		logger.Errorw("failed to store authorization code", "client_id", req.ClientID, "error", err)
		return "", newError(CodeServerError, "could not store authorization code")
	}

	logger.Debugw("authorization code issued", "client_id", req.ClientID, "user_id", userID)
	return redirectWith(req.RedirectURI, url.Values{
		"code":  {value},
		"state": {req.State},
	})
}

// Exchange handles a token-endpoint request, dispatching on the grant type.
func (c *Controller) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case GrantAuthorizationCode:
		return c.exchangeCode(ctx, req)
	case GrantRefreshToken:
		return c.exchangeRefresh(ctx, req)
	case GrantClientCredentials:
		return c.exchangeClientCredentials(ctx, req)
	default:
		return nil, newError(CodeUnsupportedGrantType,
			fmt.Sprintf("grant_type %q is not supported", req.GrantType))
	}
}

func (c *Controller) exchangeCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := c.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(GrantAuthorizationCode) {
		return nil, newError(CodeUnauthorizedClient, "client is not registered for the authorization_code grant")
	}

	// Validate against a peeked record first: the code is only consumed on
	// full success, and exactly once.
	code, err := c.codes.Peek(ctx, req.Code)
	if err != nil {
		return nil, codeLookupError(err)
	}
	if code.Expired() {
		return nil, newError(CodeInvalidGrant, "authorization code has expired")
	}
	if code.ClientID != client.ID {
		return nil, newError(CodeInvalidGrant, "authorization code was issued to another client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, newError(CodeInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if code.CodeChallenge != "" {
		if !VerifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, newError(CodeInvalidGrant, "PKCE verification failed")
		}
	} else if client.Type == ClientPublic {
		return nil, newError(CodeInvalidGrant, "public client exchange requires PKCE")
	}

	if _, err := c.codes.Consume(ctx, req.Code); err != nil {
		// Lost the race against a concurrent exchange of the same code.
		return nil, codeLookupError(err)
	}

	pair, err := c.tokens.IssuePair(token.IssueParams{
		Subject:  code.UserID,
		OrgID:    code.OrgID,
		ClientID: client.ID,
		Scopes:   code.Scopes,
	})
	if err != nil {
		logger.Errorw("failed to mint tokens for code exchange", "client_id", client.ID, "error", err)
		return nil, newError(CodeServerError, "could not issue tokens")
	}

	logger.Debugw("authorization code exchanged", "client_id", client.ID, "user_id", code.UserID)
	return pairResponse(pair), nil
}

func (c *Controller) exchangeRefresh(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := c.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(GrantRefreshToken) {
		return nil, newError(CodeUnauthorizedClient, "client is not registered for the refresh_token grant")
	}

	claims, err := c.tokens.ValidateType(ctx, req.RefreshToken, token.TypeRefresh)
	if err != nil {
		return nil, refreshTokenError(err)
	}
	if claims.ClientID != client.ID {
		return nil, newError(CodeInvalidGrant, "refresh token was issued to another client")
	}

	// Downscoping only: the new scope list must be a subset of the
	// originally granted scopes. A nil list tells Rotate to keep them.
	var scopes []string
	if req.Scope != "" {
		granted := make(map[string]struct{})
		for _, s := range claims.Scopes() {
			granted[s] = struct{}{}
		}
		for _, s := range strings.Fields(req.Scope) {
			if _, ok := granted[s]; !ok {
				return nil, newError(CodeInvalidScope,
					fmt.Sprintf("scope %q exceeds the originally granted scope", s))
			}
			scopes = append(scopes, s)
		}
	}

	// Rotate revokes the old refresh token before minting its replacement,
	// so a crash mid-rotation forces re-authentication rather than leaving
	// both tokens live.
	pair, err := c.tokens.Rotate(ctx, req.RefreshToken, scopes)
	if err != nil {
		return nil, refreshTokenError(err)
	}
	return pairResponse(pair), nil
}

func (c *Controller) exchangeClientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := c.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	// There is no user session behind this grant, so only clients that can
	// keep a secret may use it.
	if client.Type != ClientConfidential {
		return nil, newError(CodeUnauthorizedClient, "client_credentials is restricted to confidential clients")
	}
	if err := client.Authenticate(req.ClientSecret); err != nil {
		return nil, newError(CodeInvalidClient, "client authentication failed")
	}
	if !client.AllowsGrant(GrantClientCredentials) {
		return nil, newError(CodeUnauthorizedClient, "client is not registered for the client_credentials grant")
	}

	scopes := strings.Fields(req.Scope)
	if !client.ScopesAllowed(scopes) {
		return nil, newError(CodeInvalidScope, "requested scope exceeds the client's allowed scopes")
	}

	access, claims, err := c.tokens.IssueAccessToken(token.IssueParams{
		Subject:  client.ID,
		ClientID: client.ID,
		Scopes:   scopes,
	})
	if err != nil {
		logger.Errorw("failed to mint client_credentials token", "client_id", client.ID, "error", err)
		return nil, newError(CodeServerError, "could not issue tokens")
	}

	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(claims.ExpiresAt.Time).Seconds()),
		Scope:       claims.Scope,
	}, nil
}

// Revoke handles a revocation-endpoint request. Client authentication may
// fail, but once the client is authenticated the response is always success
// regardless of the token's state, so callers cannot probe token validity.
func (c *Controller) Revoke(ctx context.Context, clientID, clientSecret, tokenString string) error {
	client, err := c.loadClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Type == ClientConfidential {
		if err := client.Authenticate(clientSecret); err != nil {
			return newError(CodeInvalidClient, "client authentication failed")
		}
	}

	if err := c.tokens.Revoke(ctx, tokenString); err != nil {
		logger.Errorw("revocation failed", "client_id", clientID, "error", err)
		return newError(CodeServerError, "could not process revocation")
	}
	return nil
}

func (c *Controller) loadClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, newError(CodeInvalidRequest, "client_id is required")
	}
	client, err := c.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, newError(CodeInvalidClient, "unknown client")
		}
		logger.Errorw("client lookup failed", "client_id", clientID, "error", err)
		return nil, newError(CodeServerError, "could not load client")
	}
	return client, nil
}

// authenticateClient authenticates a token-endpoint request. Confidential
// clients present a secret; public clients authenticate the exchange through
// PKCE instead, which is verified against the code.
func (c *Controller) authenticateClient(ctx context.Context, req TokenRequest) (*Client, error) {
	client, err := c.loadClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client.Type == ClientConfidential {
		if err := client.Authenticate(req.ClientSecret); err != nil {
			return nil, newError(CodeInvalidClient, "client authentication failed")
		}
	}
	return client, nil
}

func pairResponse(pair *token.Pair) *TokenResponse {
	return &TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessClaims.ExpiresAt.Time).Seconds()),
		Scope:        pair.AccessClaims.Scope,
	}
}

func codeLookupError(err error) error {
	if errors.Is(err, ErrCodeNotFound) {
		return newError(CodeInvalidGrant, "authorization code is invalid, expired, or already used")
	}
	logger.Errorw("authorization code lookup failed", "error", err)
	return newError(CodeServerError, "could not load authorization code")
}

func refreshTokenError(err error) error {
	switch {
	case grerrors.IsType(err, grerrors.ErrTokenRevoked):
		return newError(CodeInvalidGrant, "refresh token has been revoked")
	case grerrors.IsType(err, grerrors.ErrTokenExpired):
		return newError(CodeInvalidGrant, "refresh token has expired")
	case grerrors.IsType(err, grerrors.ErrValidation):
		return newError(CodeInvalidGrant, "refresh token is invalid")
	default:
		logger.Errorw("refresh token validation failed", "error", err)
		return newError(CodeServerError, "could not validate refresh token")
	}
}

// ErrorRedirect renders a redirectable protocol error as a redirect URL on
// the request's redirect URI. It reports false for errors that must not be
// delivered through the redirect URI.
func ErrorRedirect(req AuthorizeRequest, err error) (string, bool) {
	var oe *Error
	if !errors.As(err, &oe) || !oe.Redirectable {
		return "", false
	}
	target, rerr := redirectWith(req.RedirectURI, url.Values{
		"error":             {oe.Code},
		"error_description": {oe.Description},
		"state":             {req.State},
	})
	if rerr != nil {
		return "", false
	}
	return target, true
}

func redirectWith(redirectURI string, params url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", newError(CodeInvalidRequest, "redirect_uri is not a valid URL")
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
