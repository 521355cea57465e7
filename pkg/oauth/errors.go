// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the authorization-code/PKCE flow, the token and
// revocation endpoints, and the client registry behind them.
package oauth

import "fmt"

// OAuth 2.0 protocol error codes (RFC 6749 §4.1.2.1 and §5.2).
const (
	CodeInvalidRequest          = "invalid_request"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeInvalidScope            = "invalid_scope"
	CodeAccessDenied            = "access_denied"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidClient           = "invalid_client"
	CodeServerError             = "server_error"
)

// Error is a protocol-level OAuth error, serialized at the endpoint as
// {error, error_description}.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`

	// Redirectable marks errors that are delivered to the client's
	// redirect URI. Errors raised before the redirect URI is trusted
	// (unknown client, mismatched URI) must never be redirected.
	Redirectable bool `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewInvalidRequestError creates a non-redirectable invalid_request error.
func NewInvalidRequestError(description string) *Error {
	return newError(CodeInvalidRequest, description)
}

func newError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func newRedirectError(code, description string) *Error {
	return &Error{Code: code, Description: description, Redirectable: true}
}
