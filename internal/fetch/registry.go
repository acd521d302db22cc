// Package fetch implements the adaptive multi-provider fetch fallback:
// a provider registry ordered by priority and observed success rate, and
// an orchestrator that walks the chain sequentially until one succeeds.
package fetch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// StatsTTL bounds the influence of stale provider history.
const StatsTTL = 24 * time.Hour

// Registry holds the static provider set and computes the adaptive
// attempt order from rolling stats.
type Registry struct {
	providers []webintel.FetchProvider
	stats     webintel.StatsStore
	clock     webintel.Clock
	logger    *zap.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(
	providers []webintel.FetchProvider,
	stats webintel.StatsStore,
	clock webintel.Clock,
	logger *zap.Logger,
) *Registry {
	return &Registry{providers: providers, stats: stats, clock: clock, logger: logger}
}

// Providers returns the configured provider set.
func (r *Registry) Providers() []webintel.FetchProvider {
	return r.providers
}

// SelectOrder loads current stats for every provider and returns the
// attempt order. A stats read failure degrades that provider to the
// neutral prior instead of failing the fetch.
func (r *Registry) SelectOrder(ctx context.Context) []webintel.FetchProvider {
	statsByID := make(map[string]*webintel.ProviderStats, len(r.providers))
	for _, p := range r.providers {
		id := p.Descriptor().ID
		stats, err := r.stats.Get(ctx, id)
		if err != nil {
			r.logger.Warn("provider stats read failed", zap.String("provider", id), zap.Error(err))
			continue
		}
		statsByID[id] = stats
	}
	return OrderProviders(r.providers, statsByID)
}

// OrderProviders stable-sorts providers by (priority ascending, success
// rate descending). Unobserved providers get the neutral 0.5 prior so a
// cold provider still gets a fair trial within its priority band while
// consistently failing providers sink below their peers.
func OrderProviders(providers []webintel.FetchProvider, statsByID map[string]*webintel.ProviderStats) []webintel.FetchProvider {
	ordered := make([]webintel.FetchProvider, len(providers))
	copy(ordered, providers)

	rate := func(p webintel.FetchProvider) float64 {
		if s, ok := statsByID[p.Descriptor().ID]; ok && s != nil {
			return s.SuccessRate()
		}
		return webintel.NeutralSuccessRate
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		di, dj := ordered[i].Descriptor(), ordered[j].Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority < dj.Priority
		}
		return rate(ordered[i]) > rate(ordered[j])
	})
	return ordered
}

// RecordOutcome folds one attempt outcome into the provider's rolling
// stats and rewrites them with a fresh TTL.
func (r *Registry) RecordOutcome(ctx context.Context, providerID string, success bool, latency time.Duration) error {
	current, err := r.stats.Get(ctx, providerID)
	if err != nil {
		return err
	}
	var stats webintel.ProviderStats
	if current != nil {
		stats = *current
	}
	stats.TotalRequests++
	if success {
		stats.SuccessCount++
	} else {
		stats.FailureCount++
	}
	n := float64(stats.TotalRequests)
	stats.AvgLatencyMs = (stats.AvgLatencyMs*(n-1) + float64(latency.Milliseconds())) / n
	stats.LastUpdated = r.clock.Now()
	return r.stats.Set(ctx, providerID, stats, StatsTTL)
}
