// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/logger"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultPreAuthTTL = 10 * time.Minute
)

// IssueParams carries the subject-scoped claims for a new token.
type IssueParams struct {
	Subject  string
	OrgID    string
	ClientID string
	Scopes   []string

	// Stage is only meaningful for pre-auth tokens.
	Stage string
}

// Pair is an access/refresh token pair issued together.
type Pair struct {
	AccessToken   string
	AccessClaims  *Claims
	RefreshToken  string
	RefreshClaims *Claims
}

// Manager signs, validates, rotates and revokes tokens. Signing is HMAC
// SHA-256 with a shared key; every token gets a unique jti so individual
// tokens can be revoked before expiry.
type Manager struct {
	signingKey []byte
	issuer     string
	index      RevocationIndex

	accessTTL  time.Duration
	refreshTTL time.Duration
	preAuthTTL time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAccessTTL overrides the access-token lifetime.
func WithAccessTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.accessTTL = ttl }
}

// WithRefreshTTL overrides the refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.refreshTTL = ttl }
}

// WithPreAuthTTL overrides the pre-auth-token lifetime.
func WithPreAuthTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.preAuthTTL = ttl }
}

// NewManager creates a token manager. signingKey must be non-empty; index
// records revocations and is consulted on every validation.
func NewManager(signingKey []byte, issuer string, index RevocationIndex, opts ...ManagerOption) (*Manager, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("signing key must not be empty")
	}
	if index == nil {
		return nil, fmt.Errorf("revocation index must not be nil")
	}

	m := &Manager{
		signingKey: signingKey,
		issuer:     issuer,
		index:      index,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		preAuthTTL: DefaultPreAuthTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueAccessToken mints a short-lived access token.
func (m *Manager) IssueAccessToken(params IssueParams) (string, *Claims, error) {
	return m.issue(TypeAccess, params, m.accessTTL)
}

// IssueRefreshToken mints a long-lived refresh token.
func (m *Manager) IssueRefreshToken(params IssueParams) (string, *Claims, error) {
	return m.issue(TypeRefresh, params, m.refreshTTL)
}

// IssuePreAuthToken mints a short-lived token carrying partial login state.
func (m *Manager) IssuePreAuthToken(params IssueParams) (string, *Claims, error) {
	return m.issue(TypePreAuth, params, m.preAuthTTL)
}

// IssuePair mints an access and refresh token for the same subject and scope.
func (m *Manager) IssuePair(params IssueParams) (*Pair, error) {
	access, accessClaims, err := m.IssueAccessToken(params)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := m.IssueRefreshToken(params)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:   access,
		AccessClaims:  accessClaims,
		RefreshToken:  refresh,
		RefreshClaims: refreshClaims,
	}, nil
}

func (m *Manager) issue(typ Type, params IssueParams, ttl time.Duration) (string, *Claims, error) {
	if params.Subject == "" {
		return "", nil, grerrors.NewValidationError("token subject must not be empty", nil)
	}

	now := time.Now()
	claims := &Claims{
		Type:     typ,
		OrgID:    params.OrgID,
		ClientID: params.ClientID,
		Scope:    JoinScopes(params.Scopes),
		Stage:    params.Stage,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   params.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", nil, grerrors.NewInternalError("signing token", err)
	}
	return signed, claims, nil
}

// Validate parses and verifies a token, returning its claims. Malformed,
// expired and revoked tokens fail with distinct error types so callers can
// report them differently.
func (m *Manager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	revoked, err := m.index.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, wrapIndexErr(err)
	}
	if revoked {
		return nil, grerrors.NewTokenRevokedError("token has been revoked", nil)
	}
	return claims, nil
}

// ValidateType validates a token and additionally requires it to be of the
// given type, so a refresh or pre-auth token cannot stand in for an access
// token.
func (m *Manager) ValidateType(ctx context.Context, tokenString string, typ Type) (*Claims, error) {
	claims, err := m.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, grerrors.NewValidationError(
			fmt.Sprintf("expected %s token, got %s", typ, claims.Type), nil)
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a fresh access/refresh pair. The old
// refresh token is revoked before the new pair is minted, so a crash between
// the two steps can never leave both refresh tokens live. A nil scopes
// argument keeps the original scopes; a non-nil one replaces them, which
// callers use for downscoped refresh grants.
func (m *Manager) Rotate(ctx context.Context, refreshToken string, scopes []string) (*Pair, error) {
	claims, err := m.ValidateType(ctx, refreshToken, TypeRefresh)
	if err != nil {
		return nil, err
	}
	if scopes == nil {
		scopes = claims.Scopes()
	}

	if err := m.index.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, wrapIndexErr(err)
	}

	return m.IssuePair(IssueParams{
		Subject:  claims.Subject,
		OrgID:    claims.OrgID,
		ClientID: claims.ClientID,
		Scopes:   scopes,
	})
}

// Revoke marks a token revoked. It is idempotent, and tokens that are
// already expired, already revoked or unparsable are treated as success:
// there is nothing left to invalidate.
func (m *Manager) Revoke(ctx context.Context, tokenString string) error {
	claims, err := m.parse(tokenString)
	if err != nil {
		if grerrors.IsType(err, grerrors.ErrTokenExpired) {
			return nil
		}
		logger.Debugw("revoke called with unparsable token", "error", err)
		return nil
	}
	return wrapIndexErr(m.index.Revoke(ctx, claims.ID, claims.ExpiresAt.Time))
}

func (m *Manager) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, grerrors.NewTokenExpiredError("token has expired", err)
		}
		return nil, grerrors.NewValidationError("malformed token", err)
	}

	if !claims.Type.Valid() {
		return nil, grerrors.NewValidationError("unknown token type", nil)
	}
	if claims.ID == "" {
		return nil, grerrors.NewValidationError("token has no id", nil)
	}
	return claims, nil
}
