package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

func TestAccountStoreLoadAbsentReturnsNil(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	account, err := store.Load(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Nil(t, account)
}

func TestAccountStoreSaveIsolatesHistory(t *testing.T) {
	t.Parallel()

	store := NewAccountStore()
	account := &webintel.CreditAccount{
		Wallet:       "0xabc",
		BalanceCents: 1_200,
		Tier:         webintel.TierStandard,
		History: []webintel.Transaction{
			{ID: "tx-1", Type: webintel.TxDeposit, AmountCents: 1_200},
		},
	}
	require.NoError(t, store.Save(context.Background(), account))

	account.History[0].ID = "mutated"
	loaded, err := store.Load(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, "tx-1", loaded.History[0].ID)

	loaded.History[0].ID = "mutated-again"
	reloaded, err := store.Load(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, "tx-1", reloaded.History[0].ID)
}

func TestMonitorStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMonitorStore()
	def := webintel.MonitorDefinition{
		ID:                 "mon-1",
		URL:                "https://example.com",
		WebhookURL:         "https://hooks.example.com/x",
		CheckIntervalHours: 6,
		NotifyOn:           webintel.NotifyAny,
		Status:             webintel.MonitorActive,
		OwnerID:            "0xabc",
		CreatedAt:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, def))
	require.NoError(t, store.AppendOwnerIndex(ctx, "0xabc", "mon-1"))

	got, err := store.Get(ctx, "mon-1")
	require.NoError(t, err)
	require.Equal(t, def, got)

	ids, err := store.ListByOwner(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, []string{"mon-1"}, ids)

	require.NoError(t, store.Delete(ctx, "mon-1"))
	require.NoError(t, store.RemoveOwnerIndex(ctx, "0xabc", "mon-1"))

	_, err = store.Get(ctx, "mon-1")
	require.ErrorIs(t, err, webintel.ErrMonitorNotFound)
	ids, err = store.ListByOwner(ctx, "0xabc")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestMonitorStoreListActiveSkipsPausedAndError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMonitorStore()
	for id, status := range map[string]webintel.MonitorStatus{
		"mon-a": webintel.MonitorActive,
		"mon-p": webintel.MonitorPaused,
		"mon-e": webintel.MonitorError,
	} {
		require.NoError(t, store.Put(ctx, webintel.MonitorDefinition{ID: id, Status: status}))
	}

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "mon-a", active[0].ID)
}

func TestMonitorStoreOwnerIndexAppendIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMonitorStore()
	require.NoError(t, store.AppendOwnerIndex(ctx, "0xabc", "mon-1"))
	require.NoError(t, store.AppendOwnerIndex(ctx, "0xabc", "mon-1"))

	ids, err := store.ListByOwner(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, []string{"mon-1"}, ids)
}
