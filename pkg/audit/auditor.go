// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// LevelAudit is a custom audit log level, between Info and Warn, so audit
// records survive an info-level filter.
const LevelAudit = slog.Level(2)

// NewAuditLogger creates a structured audit logger writing to w.
func NewAuditLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: LevelAudit})
	return slog.New(handler)
}

// Auditor emits audit events for HTTP requests.
type Auditor struct {
	component string
	logger    *slog.Logger
}

// NewAuditor creates an Auditor writing JSON audit records to w.
func NewAuditor(component string, w io.Writer) *Auditor {
	return &Auditor{component: component, logger: NewAuditLogger(w)}
}

// responseWriter wraps http.ResponseWriter to capture the response status.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Middleware logs an audit event for every request except health and
// metrics probes.
func (a *Auditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		a.logEvent(r, rw.statusCode, time.Since(start))
	})
}

func (a *Auditor) logEvent(r *http.Request, status int, duration time.Duration) {
	event := NewEvent(
		eventTypeForPath(r.URL.Path),
		sourceFromRequest(r),
		outcomeFromStatus(status),
		nil,
		a.component,
	).WithTarget(map[string]string{
		"endpoint": r.URL.Path,
		"method":   r.Method,
	})

	a.logger.Log(r.Context(), LevelAudit, "audit_event",
		"audit_id", event.ID,
		"type", event.Type,
		"logged_at", event.LoggedAt,
		"source", event.Source,
		"outcome", event.Outcome,
		"component", event.Component,
		"target", event.Target,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
}

// eventTypeForPath maps request paths to audit event types.
func eventTypeForPath(path string) string {
	switch {
	case strings.HasSuffix(path, "/login/code"):
		return EventTypeLoginCode
	case strings.HasSuffix(path, "/login/org"):
		return EventTypeOrgSelect
	case strings.HasSuffix(path, "/login"):
		return EventTypeLogin
	case strings.HasSuffix(path, "/logout"):
		return EventTypeLogout
	case strings.HasSuffix(path, "/authz/check"):
		return EventTypeAuthzCheck
	case strings.HasSuffix(path, "/authorize"):
		return EventTypeAuthorize
	case strings.HasSuffix(path, "/token"):
		return EventTypeTokenExchange
	case strings.HasSuffix(path, "/revoke"):
		return EventTypeTokenRevoke
	}
	return EventTypeHTTPRequest
}

// outcomeFromStatus maps the HTTP status to an audit outcome. Authentication
// and authorization failures are "denied"; other client errors "failure";
// server errors "error".
func outcomeFromStatus(status int) string {
	switch {
	case status < 400:
		return OutcomeSuccess
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return OutcomeDenied
	case status < 500:
		return OutcomeFailure
	}
	return OutcomeError
}

func sourceFromRequest(r *http.Request) EventSource {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	extra := map[string]any{}
	if ua := r.UserAgent(); ua != "" {
		extra["user_agent"] = ua
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		extra["request_id"] = reqID
	}

	return EventSource{Type: "network", Value: host, Extra: extra}
}
