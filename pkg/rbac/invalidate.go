// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"fmt"

	"github.com/grantly-io/grantly/pkg/cache"
	"github.com/grantly-io/grantly/pkg/logger"
)

// InvalidateUserOrg deletes every cache tier for the user/org pair: the
// indexed tier-1 decisions, the tier-2 permission set and the tier-3
// membership flag. It must be called on any mutation of the user's group
// membership, group grants, or organization membership. TTL remains the
// safety net if an invalidation event is lost, so cache failures here are
// logged but not fatal.
func (r *Resolver) InvalidateUserOrg(ctx context.Context, userID, orgID string) error {
	if err := ValidateID("user_id", userID); err != nil {
		return err
	}
	if err := ValidateID("org_id", orgID); err != nil {
		return err
	}

	indexKey := cache.DecisionIndexKey(userID, orgID)
	decisionKeys, err := r.cache.SetMembers(ctx, indexKey)
	if err != nil {
		r.noteCacheError(err)
	}

	keys := append(decisionKeys,
		indexKey,
		cache.PermSetKey(userID, orgID),
		cache.MemberKey(userID, orgID),
	)
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.noteCacheError(err)
		return err
	}

	logger.Debugw("invalidated decision cache",
		"user_id", userID, "org_id", orgID, "decisions", len(decisionKeys))
	return nil
}

// InvalidateGroup fans invalidation out over the group's current members.
// Tier-1 keys include the permission string, so revoking a grant from a
// group can only be flushed by iterating every member and clearing their
// tiers for the group's org.
func (r *Resolver) InvalidateGroup(ctx context.Context, groupID string) error {
	if err := ValidateID("group_id", groupID); err != nil {
		return err
	}

	group, err := r.store.GroupByID(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load group %s: %w", groupID, err)
	}
	members, err := r.store.GroupMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list members of group %s: %w", groupID, err)
	}

	var firstErr error
	for _, userID := range members {
		if err := r.InvalidateUserOrg(ctx, userID, group.OrgID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
