// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import "strings"

// Metadata is the authorization-server discovery document (RFC 8414).
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// NewMetadata builds the discovery document for an issuer. Endpoint URLs are
// derived from the issuer base URL.
func NewMetadata(issuer string, scopes []string) *Metadata {
	base := strings.TrimSuffix(issuer, "/")
	return &Metadata{
		Issuer:                issuer,
		AuthorizationEndpoint: base + "/oauth/authorize",
		TokenEndpoint:         base + "/oauth/token",
		RevocationEndpoint:    base + "/oauth/revoke",
		ScopesSupported:       scopes,
		ResponseTypesSupported: []string{
			ResponseTypeCode,
		},
		GrantTypesSupported: []string{
			string(GrantAuthorizationCode),
			string(GrantRefreshToken),
			string(GrantClientCredentials),
		},
		CodeChallengeMethodsSupported: []string{
			ChallengeMethodS256,
			ChallengeMethodPlain,
		},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_post",
			"none",
		},
	}
}
