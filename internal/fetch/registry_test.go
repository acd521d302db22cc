package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	statsmem "github.com/vasilistotskas/weblens-sub000/internal/stats/memory"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type stubProvider struct {
	desc webintel.ProviderDescriptor
	page webintel.Page
	err  error
}

func (p *stubProvider) Descriptor() webintel.ProviderDescriptor {
	return p.desc
}

func (p *stubProvider) Fetch(_ context.Context, _ string, _ time.Duration) (webintel.Page, error) {
	if p.err != nil {
		return webintel.Page{}, p.err
	}
	return p.page, nil
}

type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time { return c.now }

func TestRegistryProvidersPreservesConfiguredSet(t *testing.T) {
	t.Parallel()

	p0 := &stubProvider{desc: webintel.ProviderDescriptor{ID: "p0", Priority: 0}}
	p1 := &stubProvider{desc: webintel.ProviderDescriptor{ID: "p1", Priority: 1}}
	registry := NewRegistry([]webintel.FetchProvider{p0, p1}, statsmem.New(&tickingClock{now: time.Now()}), &tickingClock{now: time.Now()}, zap.NewNop())

	providers := registry.Providers()
	require.Len(t, providers, 2)
	require.Equal(t, "p0", providers[0].Descriptor().ID)
	require.Equal(t, "p1", providers[1].Descriptor().ID)
}

func TestOrderProvidersByPriorityThenSuccessRate(t *testing.T) {
	t.Parallel()

	p0 := &stubProvider{desc: webintel.ProviderDescriptor{ID: "p0", Priority: 0}}
	p1 := &stubProvider{desc: webintel.ProviderDescriptor{ID: "p1", Priority: 1}}
	p2 := &stubProvider{desc: webintel.ProviderDescriptor{ID: "p2", Priority: 1}}

	stats := map[string]*webintel.ProviderStats{
		"p1": {TotalRequests: 10, SuccessCount: 5},
		"p2": {TotalRequests: 10, SuccessCount: 9},
	}

	ordered := OrderProviders([]webintel.FetchProvider{p0, p1, p2}, stats)
	ids := make([]string, len(ordered))
	for i, p := range ordered {
		ids[i] = p.Descriptor().ID
	}
	require.Equal(t, []string{"p0", "p2", "p1"}, ids)
}

func TestOrderProvidersNeutralPriorForColdStart(t *testing.T) {
	t.Parallel()

	// A cold provider (0.5 prior) outranks a peer failing more than half
	// its requests and stays below a peer succeeding more than half.
	warmGood := &stubProvider{desc: webintel.ProviderDescriptor{ID: "good", Priority: 1}}
	cold := &stubProvider{desc: webintel.ProviderDescriptor{ID: "cold", Priority: 1}}
	warmBad := &stubProvider{desc: webintel.ProviderDescriptor{ID: "bad", Priority: 1}}

	stats := map[string]*webintel.ProviderStats{
		"good": {TotalRequests: 10, SuccessCount: 8},
		"bad":  {TotalRequests: 10, SuccessCount: 2},
	}

	ordered := OrderProviders([]webintel.FetchProvider{warmBad, cold, warmGood}, stats)
	require.Equal(t, "good", ordered[0].Descriptor().ID)
	require.Equal(t, "cold", ordered[1].Descriptor().ID)
	require.Equal(t, "bad", ordered[2].Descriptor().ID)
}

func TestOrderProvidersStableWithinTies(t *testing.T) {
	t.Parallel()

	a := &stubProvider{desc: webintel.ProviderDescriptor{ID: "a", Priority: 1}}
	b := &stubProvider{desc: webintel.ProviderDescriptor{ID: "b", Priority: 1}}

	// Identical priority and rate: configuration order is preserved.
	ordered := OrderProviders([]webintel.FetchProvider{a, b}, nil)
	require.Equal(t, "a", ordered[0].Descriptor().ID)
	require.Equal(t, "b", ordered[1].Descriptor().ID)
}

func TestRecordOutcomeIncrementalMean(t *testing.T) {
	t.Parallel()

	clk := &tickingClock{now: time.Unix(1700000000, 0).UTC()}
	store := statsmem.New(clk)
	registry := NewRegistry(nil, store, clk, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, registry.RecordOutcome(ctx, "p1", true, 100*time.Millisecond))
	require.NoError(t, registry.RecordOutcome(ctx, "p1", false, 300*time.Millisecond))

	stats, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.Equal(t, int64(2), stats.TotalRequests)
	require.Equal(t, int64(1), stats.SuccessCount)
	require.Equal(t, int64(1), stats.FailureCount)
	require.InDelta(t, 200, stats.AvgLatencyMs, 0.001)
	require.Equal(t, clk.Now(), stats.LastUpdated)
}
