// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package rbac implements group-based access control: permissions are granted
// to groups, users gain permissions through group membership, and membership
// in the organization is a hard gate in front of everything else.
package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/grantly-io/grantly/pkg/errors"
)

// Role is the role a user holds inside an organization.
type Role string

// Organization roles. The owner role cannot be reassigned through this core.
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is an account referenced by the authorization core. Users are created
// at registration, which lives outside this core; nothing here mutates them.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

// Organization is a tenant. Users relate to it through memberships.
type Organization struct {
	ID   string
	Name string
}

// Membership links a user to an organization with a role.
type Membership struct {
	UserID string
	OrgID  string
	Role   Role
}

// Group is an org-scoped collection of users that permissions are granted to.
type Group struct {
	ID    string
	OrgID string
	Name  string
}

// Permission identifies an action on a resource. Its canonical string form
// is "resource:action".
type Permission struct {
	ID       string
	Resource string
	Action   string
}

// Key returns the canonical permission string.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Decision is the outcome of an authorization check. It is ephemeral and is
// cached only as a derived serialization. A deny is a normal decision, never
// an error.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason"`
	MatchedGroups []string `json:"matched_groups"`
}

// ReasonNotMember is the deny reason when the organization-membership gate
// fails. It is independent of any group or permission data.
const ReasonNotMember = "not a member"

// ValidatePermission checks the canonical "resource:action" format. Malformed
// input fails fast with a validation error and is never silently coerced.
func ValidatePermission(permission string) error {
	resource, action, ok := strings.Cut(permission, ":")
	if !ok || resource == "" || action == "" {
		return errors.NewValidationError(
			fmt.Sprintf("permission %q is not of the form resource:action", permission), nil)
	}
	if strings.ContainsAny(resource, " \t\n") || strings.ContainsAny(action, " \t\n") {
		return errors.NewValidationError(
			fmt.Sprintf("permission %q contains whitespace", permission), nil)
	}
	return nil
}

// ValidateID rejects empty or whitespace-bearing identifiers before any store
// access.
func ValidateID(field, id string) error {
	if id == "" {
		return errors.NewValidationError(field+" is required", nil)
	}
	if strings.TrimSpace(id) != id {
		return errors.NewValidationError(field+" has surrounding whitespace", nil)
	}
	return nil
}
