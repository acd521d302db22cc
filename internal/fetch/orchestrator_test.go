package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	statsmem "github.com/vasilistotskas/weblens-sub000/internal/stats/memory"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

func newTestOrchestrator(providers ...webintel.FetchProvider) (*Orchestrator, *statsmem.Store) {
	clk := &tickingClock{now: time.Unix(1700000000, 0).UTC()}
	store := statsmem.New(clk)
	registry := NewRegistry(providers, store, clk, zap.NewNop())
	return NewOrchestrator(registry, 2*time.Second, zap.NewNop()), store
}

func TestFetchFallsBackAcrossProviders(t *testing.T) {
	t.Parallel()

	native := &stubProvider{
		desc: webintel.ProviderDescriptor{ID: "native", Name: "Native", Native: true, Priority: 0},
		err:  errors.New("connection refused"),
	}
	proxyA := &stubProvider{
		desc: webintel.ProviderDescriptor{ID: "proxy-a", Name: "Proxy A", Priority: 1},
		err:  errors.New("provider proxy-a: payment required"),
	}
	proxyB := &stubProvider{
		desc: webintel.ProviderDescriptor{ID: "proxy-b", Name: "Proxy B", Priority: 2},
		page: webintel.Page{Title: "Example", Content: "hello"},
	}

	orch, store := newTestOrchestrator(native, proxyA, proxyB)

	result, err := orch.Fetch(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	require.Equal(t, "proxy-b", result.Provider.ID)
	require.Equal(t, "Proxy B", result.Provider.Name)
	require.True(t, result.Provider.Proxied)
	require.Equal(t, 3, result.Provider.AttemptsUsed)
	require.Equal(t, "hello", result.Content)

	// Outcome writes are asynchronous; both the failures and the win land.
	require.Eventually(t, func() bool {
		winner, err := store.Get(context.Background(), "proxy-b")
		if err != nil || winner == nil || winner.SuccessCount != 1 {
			return false
		}
		loserA, err := store.Get(context.Background(), "proxy-a")
		return err == nil && loserA != nil && loserA.FailureCount == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFetchExhaustionEnumeratesEveryReason(t *testing.T) {
	t.Parallel()

	providers := []webintel.FetchProvider{
		&stubProvider{desc: webintel.ProviderDescriptor{ID: "native", Native: true, Priority: 0}, err: errors.New("timeout")},
		&stubProvider{desc: webintel.ProviderDescriptor{ID: "proxy-a", Priority: 1}, err: errors.New("payment required")},
		&stubProvider{desc: webintel.ProviderDescriptor{ID: "proxy-b", Priority: 1}, err: errors.New("status 500")},
	}
	orch, _ := newTestOrchestrator(providers...)

	_, err := orch.Fetch(context.Background(), "https://example.com", time.Second)
	require.Error(t, err)

	var failed *webintel.AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, 3, failed.Attempts)
	require.Len(t, failed.Failures, 3)
	require.Equal(t, webintel.CodeAllProvidersFailed, webintel.CodeOf(err))

	seen := make(map[string]string, len(failed.Failures))
	for _, f := range failed.Failures {
		seen[f.ProviderID] = f.Reason
	}
	require.Equal(t, "payment required", seen["proxy-a"])
	require.Equal(t, "status 500", seen["proxy-b"])
}

func TestFetchFirstSuccessShortCircuits(t *testing.T) {
	t.Parallel()

	calledSecond := false
	first := &stubProvider{
		desc: webintel.ProviderDescriptor{ID: "native", Native: true, Priority: 0},
		page: webintel.Page{Content: "cached"},
	}
	second := &countingProvider{
		stubProvider: stubProvider{desc: webintel.ProviderDescriptor{ID: "proxy", Priority: 1}},
		called:       &calledSecond,
	}
	orch, _ := newTestOrchestrator(first, second)

	result, err := orch.Fetch(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, result.Provider.AttemptsUsed)
	require.False(t, result.Provider.Proxied)
	require.False(t, calledSecond, "later providers must not be attempted after a success")
}

func TestFetchNoProvidersConfigured(t *testing.T) {
	t.Parallel()

	orch, _ := newTestOrchestrator()
	_, err := orch.Fetch(context.Background(), "https://example.com", time.Second)
	require.Error(t, err)
}

type countingProvider struct {
	stubProvider
	called *bool
}

func (p *countingProvider) Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.Page, error) {
	*p.called = true
	return p.stubProvider.Fetch(ctx, url, timeout)
}
