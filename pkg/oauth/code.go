// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grantly-io/grantly/pkg/cache"
)

// DefaultCodeTTL bounds how long an authorization code stays exchangeable.
const DefaultCodeTTL = 10 * time.Minute

// ErrCodeNotFound is returned when a code is unknown, expired, or already
// consumed. Callers surface all three identically so a stolen code reveals
// nothing about its history.
var ErrCodeNotFound = errors.New("authorization code not found")

// AuthorizationCode is a single-use credential binding a user's consent to
// one client, redirect URI and scope set.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	UserID              string    `json:"user_id"`
	OrgID               string    `json:"org_id,omitempty"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its expiry.
func (c *AuthorizationCode) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}

// NewCodeValue generates a fresh opaque code value.
func NewCodeValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeStore persists authorization codes in the shared cache keyspace with a
// TTL matching their expiry. Single use is enforced by consuming the record
// with an atomic get-and-delete: at most one exchange ever sees the code.
type CodeStore struct {
	cache cache.Cache
}

// NewCodeStore creates a code store backed by c.
func NewCodeStore(c cache.Cache) *CodeStore {
	return &CodeStore{cache: c}
}

// Save stores a new authorization code until its expiry.
func (s *CodeStore) Save(ctx context.Context, code *AuthorizationCode) error {
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return errors.New("authorization code already expired")
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encoding authorization code: %w", err)
	}
	return s.cache.Set(ctx, cache.AuthCodeKey(code.Code), string(payload), ttl)
}

// Peek returns the code record without consuming it, or ErrCodeNotFound.
// Exchange validation runs against the peeked record so a failed attempt
// does not burn the code.
func (s *CodeStore) Peek(ctx context.Context, code string) (*AuthorizationCode, error) {
	payload, err := s.cache.Get(ctx, cache.AuthCodeKey(code))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return decodeCode(payload)
}

// Consume atomically retrieves and invalidates the code. A second Consume
// for the same code always fails, even if the first exchange is still in
// flight.
func (s *CodeStore) Consume(ctx context.Context, code string) (*AuthorizationCode, error) {
	payload, err := s.cache.GetDelete(ctx, cache.AuthCodeKey(code))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return decodeCode(payload)
}

func decodeCode(payload string) (*AuthorizationCode, error) {
	var code AuthorizationCode
	if err := json.Unmarshal([]byte(payload), &code); err != nil {
		return nil, fmt.Errorf("decoding authorization code: %w", err)
	}
	return &code, nil
}
