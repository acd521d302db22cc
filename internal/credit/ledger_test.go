package credit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]webintel.CreditAccount
	saves    int
	failSave bool
	failLoad bool
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]webintel.CreditAccount)}
}

func (s *fakeAccountStore) Load(_ context.Context, wallet string) (*webintel.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, errors.New("store down")
	}
	account, ok := s.accounts[wallet]
	if !ok {
		return nil, nil
	}
	cp := account
	return &cp, nil
}

func (s *fakeAccountStore) Save(_ context.Context, account *webintel.CreditAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("store down")
	}
	s.saves++
	s.accounts[account.Wallet] = *account
	return nil
}

func (s *fakeAccountStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

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

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tx-%04d", g.n), nil
}

func newTestHub(store webintel.AccountStore) *Hub {
	return NewHub(store, &seqIDGen{}, &fakeClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop())
}

func TestLedgerDepositPersistsFullRecord(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()

	res, err := hub.Ledger("0xabc").Deposit(context.Background(), 1200, "credit deposit", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1200), res.Account.BalanceCents)
	require.Equal(t, webintel.TierStandard, res.Account.Tier)
	require.NotEmpty(t, res.TxID)
	require.Equal(t, 1, store.saveCount())

	saved := store.accounts["0xabc"]
	require.Equal(t, int64(1200), saved.TotalDepositedCents)
	require.Len(t, saved.History, 1)
	require.Equal(t, webintel.TxDeposit, saved.History[0].Type)
	require.Equal(t, int64(1200), saved.History[0].AmountCents)
}

func TestHubRejectsLedgersAfterClose(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)

	_, err := hub.Ledger("0xabc").Deposit(context.Background(), 500, "seed", nil)
	require.NoError(t, err)

	hub.Close()

	late := hub.Ledger("0xabc")
	_, err = late.Deposit(context.Background(), 100, "late deposit", nil)
	require.ErrorIs(t, err, ErrLedgerClosed)
	_, err = late.Balance(context.Background())
	require.ErrorIs(t, err, ErrLedgerClosed)
	require.Equal(t, 1, store.saveCount())
}

func TestLedgerSpendAtomicity(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()
	ledger := hub.Ledger("0xabc")

	_, err := ledger.Deposit(context.Background(), 300, "seed", nil)
	require.NoError(t, err)

	// Spend $5 against a $3 balance: rejected, balance untouched.
	_, err = ledger.Spend(context.Background(), 500, "api call", nil)
	require.ErrorIs(t, err, webintel.ErrInsufficientFunds)

	account, err := ledger.Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(300), account.BalanceCents)
	require.Equal(t, int64(0), account.TotalSpentCents)
	require.Equal(t, 1, store.saveCount(), "rejected spend must not write")

	res, err := ledger.Spend(context.Background(), 300, "api call", nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Account.BalanceCents)
	require.Equal(t, int64(300), res.Account.TotalSpentCents)
	require.Equal(t, int64(-300), res.Account.History[0].AmountCents)
}

func TestLedgerTierMonotonicity(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()
	ledger := hub.Ledger("0xabc")
	ctx := context.Background()

	res, err := ledger.Deposit(ctx, 9_999, "d1", nil)
	require.NoError(t, err)
	require.Equal(t, webintel.TierStandard, res.Account.Tier)

	res, err = ledger.Deposit(ctx, 1, "d2", nil)
	require.NoError(t, err)
	require.Equal(t, webintel.TierPremium, res.Account.Tier)

	// Spending everything never lowers the tier.
	_, err = ledger.Spend(ctx, 10_000, "drain", nil)
	require.NoError(t, err)
	res, err = ledger.Deposit(ctx, 90_000, "d3", nil)
	require.NoError(t, err)
	require.Equal(t, webintel.TierEnterprise, res.Account.Tier)

	account, err := ledger.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, webintel.TierEnterprise, account.Tier)
}

func TestLedgerHistoryBounded(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()
	ledger := hub.Ledger("0xabc")
	ctx := context.Background()

	for i := 0; i < webintel.HistoryLimit+20; i++ {
		_, err := ledger.Deposit(ctx, 10, fmt.Sprintf("d%d", i), nil)
		require.NoError(t, err)
	}

	history, err := ledger.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, webintel.HistoryLimit)
	// Newest first: the last deposit's description leads the ring.
	require.Equal(t, fmt.Sprintf("d%d", webintel.HistoryLimit+19), history[0].Description)
	require.Equal(t, "d20", history[webintel.HistoryLimit-1].Description)
}

func TestLedgerSerializesConcurrentMutations(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()
	ledger := hub.Ledger("0xabc")
	ctx := context.Background()

	_, err := ledger.Deposit(ctx, 10_000, "seed", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Spend(ctx, 100, "concurrent spend", nil)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := ledger.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), account.BalanceCents)
	require.Equal(t, int64(5_000), account.TotalSpentCents)
}

func TestLedgerStoreFailureSurfacesAsUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	store.failSave = true
	hub := newTestHub(store)
	defer hub.Close()

	_, err := hub.Ledger("0xabc").Deposit(context.Background(), 100, "d", nil)
	require.ErrorIs(t, err, webintel.ErrServiceUnavailable)

	// The in-memory state must not drift ahead of the durable record.
	store.failSave = false
	account, err := hub.Ledger("0xabc").Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), account.BalanceCents)
}

func TestLedgerLazyCreationOnFirstAccess(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	hub := newTestHub(store)
	defer hub.Close()

	account, err := hub.Ledger("0xnew").Balance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), account.BalanceCents)
	require.Equal(t, webintel.TierStandard, account.Tier)
	require.Equal(t, 0, store.saveCount(), "reads must not persist a fresh account")
}
