// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrNotFound = errors.New("rbac: not found")
)

// Store reads principal data from the source of truth. The resolver only
// needs read operations; writes happen in the surrounding service layer,
// which is responsible for firing invalidation events afterwards.
type Store interface {
	// IsMember reports whether the user belongs to the organization.
	IsMember(ctx context.Context, userID, orgID string) (bool, error)

	// GroupsForUser returns the org-scoped groups the user is a member of.
	GroupsForUser(ctx context.Context, userID, orgID string) ([]Group, error)

	// PermissionsForGroup returns the canonical permission strings granted
	// to the group.
	PermissionsForGroup(ctx context.Context, groupID string) ([]string, error)

	// GroupByID returns the group, or ErrNotFound.
	GroupByID(ctx context.Context, groupID string) (*Group, error)

	// GroupMembers returns the user IDs of the group's current members.
	// Invalidation fans out over this list.
	GroupMembers(ctx context.Context, groupID string) ([]string, error)

	// UserByEmail returns the user with the given email, or ErrNotFound.
	UserByEmail(ctx context.Context, email string) (*User, error)

	// UserByID returns the user, or ErrNotFound.
	UserByID(ctx context.Context, id string) (*User, error)

	// OrganizationsForUser returns the organizations the user belongs to.
	OrganizationsForUser(ctx context.Context, userID string) ([]Organization, error)
}
