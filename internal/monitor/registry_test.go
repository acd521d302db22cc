package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	storagemem "github.com/vasilistotskas/weblens-sub000/internal/storage/memory"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%03d", g.n), nil
}

func newTestRegistry(t *testing.T, clock webintel.Clock) (*Registry, *storagemem.MonitorStore) {
	t.Helper()
	store := storagemem.NewMonitorStore()
	return NewRegistry(store, &seqIDGen{}, clock, zap.NewNop()), store
}

func TestCreateSetsScheduleAndOwnerIndex(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	registry, _ := newTestRegistry(t, newFakeClock(t0))

	def, err := registry.Create(context.Background(), CreateParams{
		URL:                "https://example.com/pricing",
		WebhookURL:         "https://hooks.example.com/notify",
		CheckIntervalHours: 6,
		NotifyOn:           webintel.NotifyContent,
		OwnerID:            "0xowner",
	})
	require.NoError(t, err)
	require.NotEmpty(t, def.ID)
	require.Equal(t, webintel.MonitorActive, def.Status)
	require.Equal(t, t0.Add(6*time.Hour), def.NextCheckAt)
	require.Equal(t, t0, def.CreatedAt)
	require.Zero(t, def.CheckCount)

	owned, err := registry.ListByOwner(context.Background(), "0xowner")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, def.ID, owned[0].ID)
}

func TestCreateClampsInterval(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t, newFakeClock(time.Now()))
	for _, tc := range []struct {
		requested int
		want      int
	}{
		{requested: 0, want: 1},
		{requested: -3, want: 1},
		{requested: 12, want: 12},
		{requested: 48, want: 24},
	} {
		def, err := registry.Create(context.Background(), CreateParams{
			URL:                "https://example.com",
			WebhookURL:         "https://hooks.example.com/x",
			CheckIntervalHours: tc.requested,
			OwnerID:            "0xowner",
		})
		require.NoError(t, err)
		require.Equal(t, tc.want, def.CheckIntervalHours, "requested %d", tc.requested)
		require.Equal(t, webintel.NotifyAny, def.NotifyOn)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t, newFakeClock(time.Now()))
	ctx := context.Background()

	_, err := registry.Create(ctx, CreateParams{
		URL:        "not-a-url",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "ftp://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.ErrorIs(t, err, webintel.ErrWebhookInvalid)
	require.Equal(t, webintel.CodeWebhookInvalid, webintel.CodeOf(err))

	_, err = registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		NotifyOn:   webintel.NotifyFilter("everything"),
		OwnerID:    "0xowner",
	})
	require.Error(t, err)
}

func TestDeleteRemovesRecordAndIndex(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t, newFakeClock(time.Now()))
	ctx := context.Background()
	def, err := registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.NoError(t, err)

	require.NoError(t, registry.Delete(ctx, def.ID))

	_, err = registry.Get(ctx, def.ID)
	require.ErrorIs(t, err, webintel.ErrMonitorNotFound)

	owned, err := registry.ListByOwner(ctx, "0xowner")
	require.NoError(t, err)
	require.Empty(t, owned)

	require.ErrorIs(t, registry.Delete(ctx, def.ID), webintel.ErrMonitorNotFound)
}

func TestListByOwnerSkipsStaleIndexEntries(t *testing.T) {
	t.Parallel()

	registry, store := newTestRegistry(t, newFakeClock(time.Now()))
	ctx := context.Background()
	def, err := registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.NoError(t, err)

	// A stale index entry survives a lost delete of its record.
	require.NoError(t, store.AppendOwnerIndex(ctx, "0xowner", "ghost"))

	owned, err := registry.ListByOwner(ctx, "0xowner")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, def.ID, owned[0].ID)
}

func TestUpdateAfterCheckAdvancesFromActualRunTime(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clock := newFakeClock(t0)
	registry, _ := newTestRegistry(t, clock)
	ctx := context.Background()

	def, err := registry.Create(ctx, CreateParams{
		URL:                "https://example.com",
		WebhookURL:         "https://hooks.example.com/x",
		CheckIntervalHours: 1,
		OwnerID:            "0xowner",
	})
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Hour), def.NextCheckAt)

	// The check runs 5 minutes late; the next slot moves with it
	// instead of compounding the backlog.
	clock.Advance(time.Hour + 5*time.Minute)
	updated, err := registry.UpdateAfterCheck(ctx, def.ID, "hash-1", 5)
	require.NoError(t, err)
	require.Equal(t, t0.Add(2*time.Hour+5*time.Minute), updated.NextCheckAt)
	require.Equal(t, int64(1), updated.CheckCount)
	require.Equal(t, int64(5), updated.TotalCostCents)
	require.Equal(t, "hash-1", updated.LastContentHash)
}

func TestUpdateAfterCheckResetsStreakAndReactivates(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	registry, store := newTestRegistry(t, clock)
	ctx := context.Background()

	def, err := registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.NoError(t, err)

	def.Status = webintel.MonitorError
	def.FailureStreak = 7
	require.NoError(t, store.Put(ctx, def))

	updated, err := registry.UpdateAfterCheck(ctx, def.ID, "hash-2", 5)
	require.NoError(t, err)
	require.Equal(t, webintel.MonitorActive, updated.Status)
	require.Zero(t, updated.FailureStreak)
}

func TestRecordFailureFlipsToErrorAtThreshold(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t, newFakeClock(time.Now()))
	ctx := context.Background()

	def, err := registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.NoError(t, err)

	for i := 1; i < 3; i++ {
		updated, err := registry.RecordFailure(ctx, def.ID, 3)
		require.NoError(t, err)
		require.Equal(t, i, updated.FailureStreak)
		require.Equal(t, webintel.MonitorActive, updated.Status)
	}

	updated, err := registry.RecordFailure(ctx, def.ID, 3)
	require.NoError(t, err)
	require.Equal(t, 3, updated.FailureStreak)
	require.Equal(t, webintel.MonitorError, updated.Status)
}

func TestRecordFailureWithoutThresholdNeverDisables(t *testing.T) {
	t.Parallel()

	registry, _ := newTestRegistry(t, newFakeClock(time.Now()))
	ctx := context.Background()

	def, err := registry.Create(ctx, CreateParams{
		URL:        "https://example.com",
		WebhookURL: "https://hooks.example.com/x",
		OwnerID:    "0xowner",
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		updated, err := registry.RecordFailure(ctx, def.ID, 0)
		require.NoError(t, err)
		require.Equal(t, webintel.MonitorActive, updated.Status)
	}
}
