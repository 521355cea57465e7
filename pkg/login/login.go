// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package login implements the staged login flow: password verification,
// secondary-code verification, organization selection, token issuance. Each
// stage is carried in a pre-auth token so the server stays stateless between
// steps.
package login

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	grerrors "github.com/grantly-io/grantly/pkg/errors"
	"github.com/grantly-io/grantly/pkg/logger"
	"github.com/grantly-io/grantly/pkg/rbac"
	"github.com/grantly-io/grantly/pkg/token"
)

// Stage identifies how far a login attempt has progressed. The stage lives
// in the pre-auth token's stage claim; each step requires the stage its
// predecessor produced.
type Stage string

// Login stages.
const (
	StagePasswordVerified Stage = "password_verified"
	StageCodeVerified     Stage = "code_verified"
	StageOrgSelected      Stage = "org_selected"
	StageTokensIssued     Stage = "tokens_issued"
)

// genericCredentialFailure is the single message used for every credential
// failure, so responses cannot be used to enumerate accounts.
const genericCredentialFailure = "invalid credentials"

// CodeVerifier checks the secondary login code (2FA). Enrollment and
// delivery are external; this flow only consumes the verification result.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, userID, code string) error
}

// CodeIssuer is implemented by verifiers that mint their own codes, such as
// CacheVerifier. When the flow's verifier implements it, Start issues a code
// after the password check and hands it to the configured CodeSender.
type CodeIssuer interface {
	IssueCode(ctx context.Context, userID string) (string, error)
}

// VerifierFunc adapts a function to the CodeVerifier interface.
type VerifierFunc func(ctx context.Context, userID, code string) error

// VerifyCode implements CodeVerifier.
func (f VerifierFunc) VerifyCode(ctx context.Context, userID, code string) error {
	return f(ctx, userID, code)
}

// CodeSender delivers an issued login code to the user over an out-of-band
// channel (mail, SMS).
type CodeSender interface {
	SendCode(ctx context.Context, user *rbac.User, code string) error
}

// SenderFunc adapts a function to the CodeSender interface.
type SenderFunc func(ctx context.Context, user *rbac.User, code string) error

// SendCode implements CodeSender.
func (f SenderFunc) SendCode(ctx context.Context, user *rbac.User, code string) error {
	return f(ctx, user, code)
}

// Result is the outcome of a login step. Exactly one of the two shapes is
// populated: either tokens were issued, or the flow halted at a stage that
// needs further input and carries a pre-auth token for the next step.
type Result struct {
	Stage Stage `json:"stage"`

	// PreAuthToken carries the flow state into the next step. Empty once
	// tokens are issued.
	PreAuthToken string `json:"pre_auth_token,omitempty"`

	// Organizations lists the candidate organizations when the flow halts
	// for organization selection.
	Organizations []rbac.Organization `json:"organizations,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
}

// Flow drives the staged login state machine.
type Flow struct {
	store    rbac.Store
	tokens   *token.Manager
	verifier CodeVerifier
	sender   CodeSender
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithCodeSender sets the delivery channel for codes minted by a verifier
// that implements CodeIssuer.
func WithCodeSender(sender CodeSender) FlowOption {
	return func(f *Flow) {
		f.sender = sender
	}
}

// NewFlow creates a login flow.
func NewFlow(store rbac.Store, tokens *token.Manager, verifier CodeVerifier, opts ...FlowOption) *Flow {
	f := &Flow{store: store, tokens: tokens, verifier: verifier}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start verifies the user's password and begins a login attempt. Unknown
// emails, wrong passwords, and unverified accounts all fail with the same
// generic error.
func (f *Flow) Start(ctx context.Context, email, password string) (*Result, error) {
	if email == "" || password == "" {
		return nil, grerrors.NewValidationError("email and password are required", nil)
	}

	user, err := f.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			// Burn a comparison anyway so timing does not reveal whether
			// the account exists.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000u"), []byte(password))
			return nil, grerrors.NewInvalidCredentialsError(genericCredentialFailure, nil)
		}
		return nil, grerrors.NewInternalError("loading user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, grerrors.NewInvalidCredentialsError(genericCredentialFailure, nil)
	}
	if !user.Verified {
		return nil, grerrors.NewInvalidCredentialsError(genericCredentialFailure, nil)
	}

	// A verifier that mints its own codes gets one issued and delivered now,
	// so the next step has a code to check against.
	if issuer, ok := f.verifier.(CodeIssuer); ok {
		code, err := issuer.IssueCode(ctx, user.ID)
		if err != nil {
			return nil, grerrors.NewInternalError("issuing login code", err)
		}
		if f.sender != nil {
			if err := f.sender.SendCode(ctx, user, code); err != nil {
				return nil, grerrors.NewInternalError("delivering login code", err)
			}
		}
	}

	preAuth, _, err := f.tokens.IssuePreAuthToken(token.IssueParams{
		Subject: user.ID,
		Stage:   string(StagePasswordVerified),
	})
	if err != nil {
		return nil, err
	}

	logger.Debugw("login password verified", "user_id", user.ID)
	return &Result{Stage: StagePasswordVerified, PreAuthToken: preAuth}, nil
}

// VerifyCode checks the secondary code against the pre-auth token from
// Start. If the user belongs to exactly one organization it is selected
// automatically and tokens are issued; with several organizations the flow
// halts and returns the candidates.
func (f *Flow) VerifyCode(ctx context.Context, preAuthToken, code string) (*Result, error) {
	claims, err := f.requireStage(ctx, preAuthToken, StagePasswordVerified)
	if err != nil {
		return nil, err
	}

	if err := f.verifier.VerifyCode(ctx, claims.Subject, code); err != nil {
		return nil, grerrors.NewInvalidCredentialsError(genericCredentialFailure, nil)
	}

	// The pre-auth token is single-step: consume it so a replay cannot
	// re-enter the flow at this stage.
	if err := f.tokens.Revoke(ctx, preAuthToken); err != nil {
		return nil, err
	}

	orgs, err := f.store.OrganizationsForUser(ctx, claims.Subject)
	if err != nil {
		return nil, grerrors.NewInternalError("loading organizations", err)
	}

	switch len(orgs) {
	case 0:
		// No organizations: issue an unscoped session.
		return f.issueTokens(claims.Subject, "")
	case 1:
		return f.issueTokens(claims.Subject, orgs[0].ID)
	default:
		next, _, err := f.tokens.IssuePreAuthToken(token.IssueParams{
			Subject: claims.Subject,
			Stage:   string(StageCodeVerified),
		})
		if err != nil {
			return nil, err
		}
		return &Result{
			Stage:         StageCodeVerified,
			PreAuthToken:  next,
			Organizations: orgs,
		}, nil
	}
}

// SelectOrg completes a multi-organization login. The chosen organization is
// re-validated against the membership store; the pre-auth token alone is not
// trusted to prove membership.
func (f *Flow) SelectOrg(ctx context.Context, preAuthToken, orgID string) (*Result, error) {
	if err := rbac.ValidateID("org_id", orgID); err != nil {
		return nil, err
	}

	claims, err := f.requireStage(ctx, preAuthToken, StageCodeVerified)
	if err != nil {
		return nil, err
	}

	member, err := f.store.IsMember(ctx, claims.Subject, orgID)
	if err != nil {
		return nil, grerrors.NewInternalError("checking membership", err)
	}
	if !member {
		return nil, grerrors.NewNotMemberError("not a member of the selected organization", nil)
	}

	if err := f.tokens.Revoke(ctx, preAuthToken); err != nil {
		return nil, err
	}
	return f.issueTokens(claims.Subject, orgID)
}

// Logout revokes the presented tokens. It is idempotent and succeeds for
// unknown or expired tokens.
func (f *Flow) Logout(ctx context.Context, tokens ...string) error {
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if err := f.tokens.Revoke(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) issueTokens(userID, orgID string) (*Result, error) {
	pair, err := f.tokens.IssuePair(token.IssueParams{
		Subject: userID,
		OrgID:   orgID,
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("login completed", "user_id", userID, "org_id", orgID)
	return &Result{
		Stage:        StageTokensIssued,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.AccessClaims.ExpiresAt.Time).Seconds()),
		OrgID:        orgID,
	}, nil
}

func (f *Flow) requireStage(ctx context.Context, preAuthToken string, want Stage) (*token.Claims, error) {
	claims, err := f.tokens.ValidateType(ctx, preAuthToken, token.TypePreAuth)
	if err != nil {
		return nil, err
	}
	if Stage(claims.Stage) != want {
		return nil, grerrors.NewValidationError("login flow is not at the expected stage", nil)
	}
	return claims, nil
}
