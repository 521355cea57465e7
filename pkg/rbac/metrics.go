// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the resolver. Hit/miss counts are part of the
// component's contract: repeated checks within the TTL must be shown not to
// touch the principal store.
var (
	metricCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grantly_decision_cache_hits_total",
		Help: "Decision cache hits by tier.",
	}, []string{"tier"})

	metricCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grantly_decision_cache_misses_total",
		Help: "Authorization checks answered by the principal store.",
	})

	metricStoreReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grantly_principal_store_reads_total",
		Help: "Queries issued to the principal store.",
	})

	metricCacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grantly_decision_cache_errors_total",
		Help: "Cache backend failures absorbed by fallback.",
	})
)

// resolverStats mirrors the prometheus counters with in-process atomics so
// tests and the stats endpoint can read exact values.
type resolverStats struct {
	tier1Hits   atomic.Int64
	tier2Hits   atomic.Int64
	tier3Hits   atomic.Int64
	misses      atomic.Int64
	storeReads  atomic.Int64
	cacheErrors atomic.Int64
}

// ResolverStats is a point-in-time snapshot of resolver counters.
type ResolverStats struct {
	Tier1Hits   int64
	Tier2Hits   int64
	Tier3Hits   int64
	Misses      int64
	StoreReads  int64
	CacheErrors int64
}

// Stats returns current resolver counters.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Tier1Hits:   r.stats.tier1Hits.Load(),
		Tier2Hits:   r.stats.tier2Hits.Load(),
		Tier3Hits:   r.stats.tier3Hits.Load(),
		Misses:      r.stats.misses.Load(),
		StoreReads:  r.stats.storeReads.Load(),
		CacheErrors: r.stats.cacheErrors.Load(),
	}
}
