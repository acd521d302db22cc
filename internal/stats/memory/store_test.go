package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStoreRoundTripAndExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	store := New(clk)
	ctx := context.Background()

	got, err := store.Get(ctx, "native")
	if err != nil || got != nil {
		t.Fatalf("absent key = %v, %v; want nil, nil", got, err)
	}

	stats := webintel.ProviderStats{TotalRequests: 4, SuccessCount: 3, AvgLatencyMs: 120, LastUpdated: clk.Now()}
	if err := store.Set(ctx, "native", stats, 24*time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err = store.Get(ctx, "native")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.SuccessCount != 3 {
		t.Fatalf("Get() = %+v, want success count 3", got)
	}

	// Past the TTL the provider resets to the neutral prior.
	clk.advance(24*time.Hour + time.Minute)
	got, err = store.Get(ctx, "native")
	if err != nil || got != nil {
		t.Fatalf("expired key = %v, %v; want nil, nil", got, err)
	}
}
