// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package login

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/grantly-io/grantly/pkg/cache"
)

// DefaultCodeTTL bounds how long an issued second-factor code stays valid.
const DefaultCodeTTL = 5 * time.Minute

var errCodeMismatch = errors.New("login code mismatch")

// CacheVerifier implements CodeVerifier on the shared cache. IssueCode
// deposits a short-lived numeric code under the user's key; delivery to the
// user (mail, SMS) is the caller's responsibility. A successful verification
// consumes the code.
type CacheVerifier struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewCacheVerifier creates a cache-backed code verifier.
func NewCacheVerifier(c cache.Cache) *CacheVerifier {
	return &CacheVerifier{cache: c, ttl: DefaultCodeTTL}
}

// IssueCode generates and stores a six-digit code for the user, replacing
// any previously issued one. The code is returned for delivery.
func (v *CacheVerifier) IssueCode(ctx context.Context, userID string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate login code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	if err := v.cache.Set(ctx, cache.LoginCodeKey(userID), code, v.ttl); err != nil {
		return "", fmt.Errorf("failed to store login code: %w", err)
	}
	return code, nil
}

// VerifyCode checks the submitted code against the stored one and consumes
// it on success. A wrong guess leaves the stored code intact so a mistyped
// digit does not force reissuing.
func (v *CacheVerifier) VerifyCode(ctx context.Context, userID, code string) error {
	stored, err := v.cache.Get(ctx, cache.LoginCodeKey(userID))
	if err != nil {
		return errCodeMismatch
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return errCodeMismatch
	}
	_ = v.cache.Delete(ctx, cache.LoginCodeKey(userID))
	return nil
}
