// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import "fmt"

// Key formats shared by the decision cache tiers and the revocation index.
// Tier-1 keys include the permission string, so bulk invalidation of a
// user/org pair goes through the DecisionIndexKey set.

// DecisionKey is the tier-1 key holding a serialized decision for one
// (user, org, permission) tuple.
func DecisionKey(userID, orgID, permission string) string {
	return fmt.Sprintf("decision:%s:%s:%s", userID, orgID, permission)
}

// PermSetKey is the tier-2 key holding the full permission set a user holds
// in an org.
func PermSetKey(userID, orgID string) string {
	return fmt.Sprintf("permset:%s:%s", userID, orgID)
}

// MemberKey is the tier-3 key holding the org-membership flag.
func MemberKey(userID, orgID string) string {
	return fmt.Sprintf("member:%s:%s", userID, orgID)
}

// DecisionIndexKey is the set of tier-1 keys written for a user/org pair,
// kept so invalidation can delete them without knowing which permissions
// were checked.
func DecisionIndexKey(userID, orgID string) string {
	return fmt.Sprintf("decisionidx:%s:%s", userID, orgID)
}

// RevokedKey is the revocation-index key for a token identifier.
func RevokedKey(jti string) string {
	return fmt.Sprintf("revoked:%s", jti)
}

// AuthCodeKey is the key holding a pending authorization code record.
func AuthCodeKey(code string) string {
	return fmt.Sprintf("authcode:%s", code)
}

// LoginCodeKey is the key holding a user's pending second-factor login code.
func LoginCodeKey(userID string) string {
	return fmt.Sprintf("logincode:%s", userID)
}
