// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit provides audit logging for authentication, authorization,
// and OAuth protocol operations.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event types for the operations grantly audits.
const (
	// EventTypeLogin represents a password login attempt.
	EventTypeLogin = "auth_login"
	// EventTypeLoginCode represents a second-factor code verification.
	EventTypeLoginCode = "auth_login_code"
	// EventTypeOrgSelect represents an organization selection step.
	EventTypeOrgSelect = "auth_org_select"
	// EventTypeLogout represents a logout.
	EventTypeLogout = "auth_logout"
	// EventTypeAuthzCheck represents an authorization decision.
	EventTypeAuthzCheck = "authz_check"
	// EventTypeAuthorize represents an OAuth authorization request.
	EventTypeAuthorize = "oauth_authorize"
	// EventTypeTokenExchange represents a token-endpoint exchange.
	EventTypeTokenExchange = "oauth_token"
	// EventTypeTokenRevoke represents a token revocation.
	EventTypeTokenRevoke = "oauth_revoke"
	// EventTypeHTTPRequest represents any other HTTP request.
	EventTypeHTTPRequest = "http_request"
)

// Outcomes for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Event is a single audit record. The shape follows the auditevent
// convention: type, time, source, outcome, subjects, component, target.
type Event struct {
	ID       string    `json:"audit_id"`
	Type     string    `json:"type"`
	LoggedAt time.Time `json:"logged_at"`

	// Source identifies where the request came from, normally the
	// client IP. Careful what goes here: no personally identifiable
	// information beyond the address.
	Source EventSource `json:"source"`

	Outcome string `json:"outcome"`

	// Subjects names the identities involved, e.g. user_id, client_id.
	Subjects map[string]string `json:"subjects,omitempty"`

	Component string `json:"component"`

	// Target locates the affected resource, e.g. the request path.
	Target map[string]string `json:"target,omitempty"`
}

// EventSource represents the source of an audit event.
type EventSource struct {
	Type  string `json:"type"`
	Value string `json:"value"`

	// Extra carries additional tracking information such as the
	// request ID or user agent.
	Extra map[string]any `json:"extra,omitempty"`
}

// NewEvent returns an Event with a fresh audit ID and logging time.
func NewEvent(eventType string, source EventSource, outcome string, subjects map[string]string, component string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		LoggedAt:  time.Now().UTC(),
		Source:    source,
		Outcome:   outcome,
		Subjects:  subjects,
		Component: component,
	}
}

// WithTarget sets the target of the event.
func (e *Event) WithTarget(target map[string]string) *Event {
	e.Target = target
	return e
}
