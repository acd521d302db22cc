package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/hash/sha256"
	pubmem "github.com/vasilistotskas/weblens-sub000/internal/publisher/memory"
	snapmem "github.com/vasilistotskas/weblens-sub000/internal/snapshot/memory"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type fakeBiller struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (b *fakeBiller) DeductCredits(_ context.Context, _ string, _ int64, _, _ string) (webintel.CreditAccount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return webintel.CreditAccount{}, b.err
	}
	return webintel.CreditAccount{}, nil
}

func (b *fakeBiller) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ time.Duration) (webintel.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return webintel.FetchResult{}, f.err
	}
	return webintel.FetchResult{Content: f.content}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []webintel.WebhookEvent
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, _ string, event webintel.WebhookEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *fakeNotifier) delivered() []webintel.WebhookEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]webintel.WebhookEvent(nil), n.events...)
}

type checkerHarness struct {
	registry  *Registry
	checker   *Checker
	clock     *fakeClock
	biller    *fakeBiller
	fetcher   *fakeFetcher
	notifier  *fakeNotifier
	snapshots *snapmem.Store
	publisher *pubmem.Publisher
}

func newCheckerHarness(t *testing.T, cfg CheckerConfig) *checkerHarness {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	registry, _ := newTestRegistry(t, clock)
	h := &checkerHarness{
		registry:  registry,
		clock:     clock,
		biller:    &fakeBiller{},
		fetcher:   &fakeFetcher{content: "hello world"},
		notifier:  &fakeNotifier{},
		snapshots: snapmem.New(),
		publisher: pubmem.New(),
	}
	if cfg.Topic == "" {
		cfg.Topic = "monitor-checks"
	}
	h.checker = NewChecker(
		registry, h.biller, h.fetcher, sha256.New(), h.snapshots,
		h.notifier, h.publisher, &seqIDGen{}, clock, zap.NewNop(), cfg,
	)
	return h
}

func (h *checkerHarness) createMonitor(t *testing.T, notifyOn webintel.NotifyFilter) webintel.MonitorDefinition {
	t.Helper()
	def, err := h.registry.Create(context.Background(), CreateParams{
		URL:                "https://example.com",
		WebhookURL:         "https://hooks.example.com/x",
		CheckIntervalHours: 1,
		NotifyOn:           notifyOn,
		OwnerID:            "0xowner",
	})
	require.NoError(t, err)
	return def
}

func TestCheckFirstRunSetsBaselineWithoutWebhook(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyAny)

	outcome, err := h.checker.Check(context.Background(), def)
	require.NoError(t, err)
	require.True(t, outcome.Billed)
	require.False(t, outcome.Changed)
	require.False(t, outcome.Notified)
	require.NotEmpty(t, outcome.Monitor.LastContentHash)
	require.Equal(t, int64(1), outcome.Monitor.CheckCount)
	require.Equal(t, int64(5), outcome.Monitor.TotalCostCents)
	require.Empty(t, h.notifier.delivered())

	stored, err := h.snapshots.Get(context.Background(), def.ID)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(stored))

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	event, ok := msgs[0].Payload.(webintel.CheckEvent)
	require.True(t, ok)
	require.False(t, event.Changed)
	require.Equal(t, int64(5), event.CostCents)
}

func TestCheckContentChangeDeliversWebhookWithDiff(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyContent)

	outcome, err := h.checker.Check(context.Background(), def)
	require.NoError(t, err)
	baseline := outcome.Monitor

	h.fetcher.content = "hello changed world"
	outcome, err = h.checker.Check(context.Background(), baseline)
	require.NoError(t, err)
	require.True(t, outcome.Changed)
	require.True(t, outcome.Notified)
	require.Equal(t, webintel.ChangeContent, outcome.ChangeType)

	events := h.notifier.delivered()
	require.Len(t, events, 1)
	require.Equal(t, def.ID, events[0].MonitorID)
	require.Equal(t, baseline.LastContentHash, events[0].PreviousHash)
	require.Equal(t, outcome.Monitor.LastContentHash, events[0].CurrentHash)
	require.NotEqual(t, events[0].PreviousHash, events[0].CurrentHash)
	require.Contains(t, events[0].Diff, "- hello world")
	require.Contains(t, events[0].Diff, "+ hello changed world")
}

func TestCheckStatusFilterIgnoresContentChange(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyStatus)

	outcome, err := h.checker.Check(context.Background(), def)
	require.NoError(t, err)

	h.fetcher.content = "different body"
	outcome, err = h.checker.Check(context.Background(), outcome.Monitor)
	require.NoError(t, err)
	require.True(t, outcome.Changed)
	require.False(t, outcome.Notified)
	require.Empty(t, h.notifier.delivered())
}

func TestCheckBillingFailureSkipsCycle(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyAny)
	h.biller.err = webintel.ErrInsufficientFunds

	outcome, err := h.checker.Check(context.Background(), def)
	require.ErrorIs(t, err, webintel.ErrInsufficientFunds)
	require.False(t, outcome.Billed)
	require.Zero(t, h.fetcher.callCount())
	require.Empty(t, h.notifier.delivered())

	// The monitor stays active and is simply retried next cycle.
	require.Equal(t, webintel.MonitorActive, outcome.Monitor.Status)
	require.Equal(t, 1, outcome.Monitor.FailureStreak)
	require.Zero(t, outcome.Monitor.CheckCount)
}

func TestCheckFetchFailureNotifiesStatusWatchers(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyStatus)
	h.fetcher.err = errors.New("connection refused")

	outcome, err := h.checker.Check(context.Background(), def)
	require.Error(t, err)
	require.True(t, outcome.Billed)
	require.Equal(t, webintel.ChangeError, outcome.ChangeType)
	require.True(t, outcome.Notified)

	events := h.notifier.delivered()
	require.Len(t, events, 1)
	require.Equal(t, webintel.ChangeError, events[0].ChangeType)
}

func TestCheckRepeatedFetchFailuresDisableMonitor(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 3})
	def := h.createMonitor(t, webintel.NotifyContent)
	h.fetcher.err = errors.New("connection refused")

	var outcome CheckOutcome
	var err error
	for i := 0; i < 3; i++ {
		outcome, err = h.checker.Check(context.Background(), def)
		require.Error(t, err)
	}
	require.Equal(t, webintel.MonitorError, outcome.Monitor.Status)
	require.Equal(t, 3, outcome.Monitor.FailureStreak)

	// A later successful check brings it back.
	h.fetcher.err = nil
	outcome, err = h.checker.Check(context.Background(), outcome.Monitor)
	require.NoError(t, err)
	require.Equal(t, webintel.MonitorActive, outcome.Monitor.Status)
	require.Zero(t, outcome.Monitor.FailureStreak)
}

func TestCheckWebhookFailureNeverReversesBillingOrSchedule(t *testing.T) {
	t.Parallel()

	h := newCheckerHarness(t, CheckerConfig{CostCents: 5, MaxConsecutiveFailures: 10})
	def := h.createMonitor(t, webintel.NotifyAny)

	outcome, err := h.checker.Check(context.Background(), def)
	require.NoError(t, err)

	h.fetcher.content = "changed"
	h.notifier.err = errors.New("hook endpoint down")
	before := outcome.Monitor

	outcome, err = h.checker.Check(context.Background(), before)
	require.NoError(t, err)
	require.True(t, outcome.Changed)
	require.False(t, outcome.Notified)
	require.Equal(t, int64(2), outcome.Monitor.CheckCount)
	require.Equal(t, int64(10), outcome.Monitor.TotalCostCents)
	require.True(t, outcome.Monitor.NextCheckAt.After(before.NextCheckAt) ||
		outcome.Monitor.NextCheckAt.Equal(before.NextCheckAt))
}
