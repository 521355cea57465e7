// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/grantly-io/grantly/pkg/cache"
	"github.com/grantly-io/grantly/pkg/logger"
)

// Default TTLs for the three cache tiers. Membership changes rarely, so its
// tier lives longer. All TTLs carry jitter when written so entries populated
// together do not expire together.
const (
	DefaultDecisionTTL = 300 * time.Second
	DefaultPermSetTTL  = 300 * time.Second
	DefaultMemberTTL   = 600 * time.Second
)

// permSet is the tier-2 cache value: every permission string the user holds
// in the org, mapped to the groups granting it so tier-1 decisions can be
// re-derived with their matched groups.
type permSet map[string][]string

// Resolver computes authorization decisions from the principal store and
// keeps the three-tier decision cache populated.
//
// The read path is tier 1 (exact decision), tier 2 (permission set), tier 3
// (membership flag), then the store. Every tier below the one that answered
// is repopulated on the way back up. Cache failures are logged and treated
// as misses; an unavailable cache degrades latency, never correctness.
type Resolver struct {
	store Store
	cache cache.Cache

	decisionTTL time.Duration
	permSetTTL  time.Duration
	memberTTL   time.Duration

	stats resolverStats
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDecisionTTL overrides the tier-1 TTL.
func WithDecisionTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.decisionTTL = ttl }
}

// WithPermSetTTL overrides the tier-2 TTL.
func WithPermSetTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.permSetTTL = ttl }
}

// WithMemberTTL overrides the tier-3 TTL.
func WithMemberTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.memberTTL = ttl }
}

// NewResolver creates a Resolver over the given store and cache.
func NewResolver(store Store, c cache.Cache, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		cache:       c,
		decisionTTL: DefaultDecisionTTL,
		permSetTTL:  DefaultPermSetTTL,
		memberTTL:   DefaultMemberTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authorize decides whether the user may perform the permission inside the
// organization. Denial is a normal decision; only malformed input or a store
// failure produces an error.
func (r *Resolver) Authorize(ctx context.Context, userID, orgID, permission string) (*Decision, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	if err := ValidateID("org_id", orgID); err != nil {
		return nil, err
	}
	if err := ValidatePermission(permission); err != nil {
		return nil, err
	}

	// Tier 1: exact decision.
	if raw, err := r.cacheGet(ctx, cache.DecisionKey(userID, orgID, permission)); err == nil {
		var d Decision
		if jsonErr := json.Unmarshal([]byte(raw), &d); jsonErr == nil {
			r.stats.tier1Hits.Add(1)
			metricCacheHits.WithLabelValues("decision").Inc()
			return &d, nil
		}
		logger.Warnw("discarding undecodable decision cache entry",
			"user_id", userID, "org_id", orgID)
	}

	// Tier 2: permission set, decision derived locally.
	if raw, err := r.cacheGet(ctx, cache.PermSetKey(userID, orgID)); err == nil {
		var set permSet
		if jsonErr := json.Unmarshal([]byte(raw), &set); jsonErr == nil {
			r.stats.tier2Hits.Add(1)
			metricCacheHits.WithLabelValues("permset").Inc()
			d := decisionFromPermSet(set, permission)
			r.populateDecision(ctx, userID, orgID, permission, d)
			return d, nil
		}
		logger.Warnw("discarding undecodable permset cache entry",
			"user_id", userID, "org_id", orgID)
	}

	// Tier 3: membership flag. A cached false short-circuits to a deny; a
	// cached true only skips the membership query, group and permission
	// data still come from the store.
	memberKnown := false
	if raw, err := r.cacheGet(ctx, cache.MemberKey(userID, orgID)); err == nil {
		// Only the two values this resolver writes count as hits; anything
		// else is a corrupted entry and must not skip the membership gate.
		switch raw {
		case "0":
			r.stats.tier3Hits.Add(1)
			metricCacheHits.WithLabelValues("member").Inc()
			d := &Decision{Allowed: false, Reason: ReasonNotMember}
			r.populateDecision(ctx, userID, orgID, permission, d)
			return d, nil
		case "1":
			r.stats.tier3Hits.Add(1)
			metricCacheHits.WithLabelValues("member").Inc()
			memberKnown = true
		default:
			logger.Warnw("discarding unrecognized membership cache entry",
				"user_id", userID, "org_id", orgID)
		}
	}

	// Authoritative path.
	r.stats.misses.Add(1)
	metricCacheMisses.Inc()
	return r.resolveFromStore(ctx, userID, orgID, permission, memberKnown)
}

// resolveFromStore answers from the principal store and writes every cache
// tier back on the way up.
func (r *Resolver) resolveFromStore(
	ctx context.Context, userID, orgID, permission string, memberKnown bool,
) (*Decision, error) {
	if !memberKnown {
		r.stats.storeReads.Add(1)
		metricStoreReads.Inc()
		member, err := r.store.IsMember(ctx, userID, orgID)
		if err != nil {
			return nil, err
		}
		if !member {
			r.cacheSet(ctx, cache.MemberKey(userID, orgID), "0", r.memberTTL)
			d := &Decision{Allowed: false, Reason: ReasonNotMember}
			r.populateDecision(ctx, userID, orgID, permission, d)
			return d, nil
		}
	}

	r.stats.storeReads.Add(1)
	metricStoreReads.Inc()
	groups, err := r.store.GroupsForUser(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	// Union of grants across groups; authorization is purely additive.
	set := make(permSet)
	for _, g := range groups {
		perms, err := r.store.PermissionsForGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		for _, key := range perms {
			set[key] = append(set[key], g.Name)
		}
	}

	d := decisionFromPermSet(set, permission)

	r.cacheSet(ctx, cache.MemberKey(userID, orgID), "1", r.memberTTL)
	if data, err := json.Marshal(set); err == nil {
		r.cacheSet(ctx, cache.PermSetKey(userID, orgID), string(data), r.permSetTTL)
	}
	r.populateDecision(ctx, userID, orgID, permission, d)

	return d, nil
}

// decisionFromPermSet derives a tier-1 decision from a tier-2 permission set.
// MatchedGroups lists every group granting the permission, not just the first.
func decisionFromPermSet(set permSet, permission string) *Decision {
	if groups, ok := set[permission]; ok {
		return &Decision{Allowed: true, MatchedGroups: groups}
	}
	return &Decision{Allowed: false, Reason: "permission not granted"}
}

// populateDecision writes a tier-1 entry and records it in the per-user/org
// index set used for bulk invalidation.
func (r *Resolver) populateDecision(ctx context.Context, userID, orgID, permission string, d *Decision) {
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	key := cache.DecisionKey(userID, orgID, permission)
	r.cacheSet(ctx, key, string(data), r.decisionTTL)

	// Index TTL tracks the member tier so it outlives the decisions it lists.
	if err := r.cache.AddToSet(ctx, cache.DecisionIndexKey(userID, orgID), cache.JitterTTL(r.memberTTL), key); err != nil {
		r.noteCacheError(err)
	}
}

// cacheGet reads a key, converting backend failures into misses.
func (r *Resolver) cacheGet(ctx context.Context, key string) (string, error) {
	val, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.noteCacheError(err)
		}
		return "", err
	}
	return val, nil
}

// cacheSet writes a key with jittered TTL. Failures are absorbed; a partial
// write is harmless because every write is idempotent and re-derivable.
func (r *Resolver) cacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if err := r.cache.Set(ctx, key, value, cache.JitterTTL(ttl)); err != nil {
		r.noteCacheError(err)
	}
}

func (r *Resolver) noteCacheError(err error) {
	r.stats.cacheErrors.Add(1)
	metricCacheErrors.Inc()
	logger.Warnw("decision cache unavailable, falling back", "error", err.Error())
}
