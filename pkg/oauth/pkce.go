// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods (RFC 7636).
const (
	ChallengeMethodS256  = "S256"
	ChallengeMethodPlain = "plain"
)

// ValidChallengeMethod reports whether method is a supported PKCE method.
// The empty string means no PKCE.
func ValidChallengeMethod(method string) bool {
	switch method {
	case "", ChallengeMethodS256, ChallengeMethodPlain:
		return true
	}
	return false
}

// S256Challenge derives the S256 code challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge reports whether verifier reduces to challenge under
// the given method. S256 hashes the verifier; plain compares directly.
// Comparisons are constant-time.
func VerifyCodeChallenge(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}

	switch method {
	case ChallengeMethodS256:
		return subtle.ConstantTimeCompare([]byte(S256Challenge(verifier)), []byte(challenge)) == 1
	case ChallengeMethodPlain, "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}
