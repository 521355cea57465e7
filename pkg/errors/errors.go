// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy shared across the authorization
// and token subsystems.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrValidation is returned when input is malformed and was rejected
	// before any store access
	ErrValidation = "validation"

	// ErrNotMember is returned when the organization-membership gate failed
	ErrNotMember = "not_member"

	// ErrPermissionDenied is returned when membership holds but no group
	// grants the permission
	ErrPermissionDenied = "permission_denied"

	// ErrTokenExpired is returned when a token is past its expiry
	ErrTokenExpired = "token_expired"

	// ErrTokenRevoked is returned when a token's jti is in the revocation index
	ErrTokenRevoked = "token_revoked"

	// ErrInvalidCredentials is returned for any login-credential failure.
	// The message is deliberately generic so callers cannot enumerate
	// accounts or distinguish a wrong password from an unverified email
	ErrInvalidCredentials = "invalid_credentials"

	// ErrInvalidGrant is returned for a bad, expired or used authorization
	// code, a PKCE mismatch, or a redirect/client mismatch
	ErrInvalidGrant = "invalid_grant"

	// ErrInvalidClient is returned for bad client credentials or an unknown client_id
	ErrInvalidClient = "invalid_client"

	// ErrCacheUnavailable is returned by cache backends on timeouts or
	// connection failures; it is always recovered internally and never
	// surfaced to callers
	ErrCacheUnavailable = "cache_unavailable"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewNotMemberError creates a new organization-membership error
func NewNotMemberError(message string, cause error) *Error {
	return NewError(ErrNotMember, message, cause)
}

// NewPermissionDeniedError creates a new permission-denied error
func NewPermissionDeniedError(message string, cause error) *Error {
	return NewError(ErrPermissionDenied, message, cause)
}

// NewTokenExpiredError creates a new token-expired error
func NewTokenExpiredError(message string, cause error) *Error {
	return NewError(ErrTokenExpired, message, cause)
}

// NewTokenRevokedError creates a new token-revoked error
func NewTokenRevokedError(message string, cause error) *Error {
	return NewError(ErrTokenRevoked, message, cause)
}

// NewInvalidCredentialsError creates a new invalid-credentials error
func NewInvalidCredentialsError(message string, cause error) *Error {
	return NewError(ErrInvalidCredentials, message, cause)
}

// NewInvalidGrantError creates a new invalid-grant error
func NewInvalidGrantError(message string, cause error) *Error {
	return NewError(ErrInvalidGrant, message, cause)
}

// NewInvalidClientError creates a new invalid-client error
func NewInvalidClientError(message string, cause error) *Error {
	return NewError(ErrInvalidClient, message, cause)
}

// NewCacheUnavailableError creates a new cache-unavailable error
func NewCacheUnavailableError(message string, cause error) *Error {
	return NewError(ErrCacheUnavailable, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// IsType checks if an error is of a specific type anywhere in its chain.
func IsType(err error, errorType string) bool {
	for err != nil {
		var e *Error
		if errors.As(err, &e) {
			if e.Type == errorType {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}
