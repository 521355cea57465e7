// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package token mints, validates, rotates and revokes the bearer tokens that
// carry identity and scope across requests.
package token

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes the three token lifetimes.
type Type string

// Token types. Pre-auth tokens carry partial login/consent state and are
// never accepted as resource-access credentials.
const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypePreAuth Type = "pre_auth"
)

// Valid reports whether t is a known token type.
func (t Type) Valid() bool {
	switch t {
	case TypeAccess, TypeRefresh, TypePreAuth:
		return true
	}
	return false
}

// Claims is the token payload. The registered claims carry sub, iat, exp and
// the unique jti used as the revocation-index key.
type Claims struct {
	Type     Type   `json:"type"`
	OrgID    string `json:"org_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"`

	// Stage is the login-flow stage a pre-auth token represents.
	Stage string `json:"stage,omitempty"`

	jwt.RegisteredClaims
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// JoinScopes renders a scope list as the space-delimited claim value.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
