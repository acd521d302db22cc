// Package credit implements the per-wallet credit ledger and the
// accounting service that routes deposits and spends to it.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/telemetry"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// storeTimeout bounds durable writes issued from inside the actor loop.
const storeTimeout = 5 * time.Second

// ErrLedgerClosed is returned for operations sent to a closed ledger.
var ErrLedgerClosed = errors.New("ledger is closed")

// MutationResult is the reply to a successful deposit, spend, or refund.
type MutationResult struct {
	Account webintel.CreditAccount
	TxID    string
}

type opKind int

const (
	opDeposit opKind = iota
	opSpend
	opRefund
	opBalance
	opHistory
)

type op struct {
	kind        opKind
	amountCents int64
	description string
	metadata    map[string]string
	reply       chan opResult
}

type opResult struct {
	account webintel.CreditAccount
	txID    string
	err     error
}

// Ledger is the stateful actor for one wallet address. All operations
// funnel through a single goroutine, so at most one is in flight at a
// time; that serialization is the only concurrency-safety mechanism.
type Ledger struct {
	wallet string
	store  webintel.AccountStore
	idGen  webintel.IDGenerator
	clock  webintel.Clock
	logger *zap.Logger

	ops  chan op
	quit chan struct{}
	done chan struct{}
}

func newLedger(
	wallet string,
	store webintel.AccountStore,
	idGen webintel.IDGenerator,
	clock webintel.Clock,
	logger *zap.Logger,
) *Ledger {
	l := &Ledger{
		wallet: wallet,
		store:  store,
		idGen:  idGen,
		clock:  clock,
		logger: logger.With(zap.String("wallet", wallet)),
		ops:    make(chan op),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// newClosedLedger builds a ledger whose actor never starts. Every
// operation fails with ErrLedgerClosed.
func newClosedLedger(wallet string) *Ledger {
	l := &Ledger{
		wallet: wallet,
		ops:    make(chan op),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	close(l.done)
	return l
}

// Deposit credits the wallet and persists the full account record before
// returning. It always succeeds for a positive amount.
func (l *Ledger) Deposit(ctx context.Context, amountCents int64, description string, metadata map[string]string) (MutationResult, error) {
	return l.mutate(ctx, opDeposit, amountCents, description, metadata)
}

// Spend debits the wallet. It fails with webintel.ErrInsufficientFunds
// (and no mutation) when the balance cannot cover the amount.
func (l *Ledger) Spend(ctx context.Context, amountCents int64, description string, metadata map[string]string) (MutationResult, error) {
	return l.mutate(ctx, opSpend, amountCents, description, metadata)
}

// Refund credits the wallet back without affecting lifetime deposits or tier.
func (l *Ledger) Refund(ctx context.Context, amountCents int64, description string, metadata map[string]string) (MutationResult, error) {
	return l.mutate(ctx, opRefund, amountCents, description, metadata)
}

// Balance returns a read-only snapshot of the account.
func (l *Ledger) Balance(ctx context.Context) (webintel.CreditAccount, error) {
	res, err := l.send(ctx, op{kind: opBalance, reply: make(chan opResult, 1)})
	if err != nil {
		return webintel.CreditAccount{}, err
	}
	return res.account, nil
}

// History returns the bounded, newest-first transaction ring.
func (l *Ledger) History(ctx context.Context) ([]webintel.Transaction, error) {
	res, err := l.send(ctx, op{kind: opHistory, reply: make(chan opResult, 1)})
	if err != nil {
		return nil, err
	}
	return res.account.History, nil
}

// Close stops the actor after the in-flight operation finishes.
// Operations sent after Close fail with ErrLedgerClosed.
func (l *Ledger) Close() {
	close(l.quit)
	<-l.done
}

func (l *Ledger) mutate(ctx context.Context, kind opKind, amountCents int64, description string, metadata map[string]string) (MutationResult, error) {
	if amountCents <= 0 {
		return MutationResult{}, fmt.Errorf("amount must be positive, got %d cents", amountCents)
	}
	res, err := l.send(ctx, op{
		kind:        kind,
		amountCents: amountCents,
		description: description,
		metadata:    metadata,
		reply:       make(chan opResult, 1),
	})
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Account: res.account, TxID: res.txID}, nil
}

func (l *Ledger) send(ctx context.Context, o op) (opResult, error) {
	select {
	case l.ops <- o:
	case <-l.done:
		return opResult{}, ErrLedgerClosed
	case <-ctx.Done():
		return opResult{}, fmt.Errorf("ledger %s: %w", l.wallet, ctx.Err())
	}
	select {
	case res := <-o.reply:
		if res.err != nil {
			return opResult{}, res.err
		}
		return res, nil
	case <-ctx.Done():
		// The op may still execute; at-least-once effects are accepted.
		return opResult{}, fmt.Errorf("ledger %s: %w", l.wallet, ctx.Err())
	}
}

func (l *Ledger) run() {
	defer close(l.done)
	var account *webintel.CreditAccount
	for {
		var o op
		select {
		case o = <-l.ops:
		case <-l.quit:
			return
		}
		if account == nil {
			loaded, err := l.load()
			if err != nil {
				o.reply <- opResult{err: err}
				continue
			}
			account = loaded
		}
		o.reply <- l.apply(account, o)
	}
}

// load fetches the persisted record, lazily creating a zero-balance
// account on first access. The fresh account is not persisted until the
// first mutation.
func (l *Ledger) load() (*webintel.CreditAccount, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	loaded, err := l.store.Load(ctx, l.wallet)
	if err != nil {
		l.logger.Error("account load failed", zap.Error(err))
		return nil, fmt.Errorf("load account %s: %w", l.wallet, webintel.ErrServiceUnavailable)
	}
	if loaded != nil {
		return loaded, nil
	}
	now := l.clock.Now()
	return &webintel.CreditAccount{
		Wallet:    l.wallet,
		Tier:      webintel.TierStandard,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (l *Ledger) apply(account *webintel.CreditAccount, o op) opResult {
	switch o.kind {
	case opBalance, opHistory:
		return opResult{account: snapshot(account)}
	case opSpend:
		if account.BalanceCents < o.amountCents {
			return opResult{err: fmt.Errorf("spend %d cents against balance %d: %w",
				o.amountCents, account.BalanceCents, webintel.ErrInsufficientFunds)}
		}
	}

	updated := snapshot(account)
	now := l.clock.Now()
	txID, err := l.idGen.NewID()
	if err != nil {
		return opResult{err: fmt.Errorf("generate transaction id: %w", err)}
	}

	tx := webintel.Transaction{
		ID:          txID,
		Description: o.description,
		Timestamp:   now,
		Metadata:    o.metadata,
	}
	switch o.kind {
	case opDeposit:
		tx.Type = webintel.TxDeposit
		tx.AmountCents = o.amountCents
		updated.BalanceCents += o.amountCents
		updated.TotalDepositedCents += o.amountCents
		if next := webintel.TierFor(updated.TotalDepositedCents); tierRank(next) > tierRank(updated.Tier) {
			updated.Tier = next
		}
	case opSpend:
		tx.Type = webintel.TxSpend
		tx.AmountCents = -o.amountCents
		updated.BalanceCents -= o.amountCents
		updated.TotalSpentCents += o.amountCents
	case opRefund:
		tx.Type = webintel.TxRefund
		tx.AmountCents = o.amountCents
		updated.BalanceCents += o.amountCents
	}
	updated.History = pushTransaction(updated.History, tx)
	updated.UpdatedAt = now

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, &updated); err != nil {
		l.logger.Error("account save failed",
			zap.String("tx_type", string(tx.Type)),
			zap.Error(err),
		)
		return opResult{err: fmt.Errorf("save account %s: %w", l.wallet, webintel.ErrServiceUnavailable)}
	}

	*account = snapshot(&updated)
	telemetry.ObserveCreditTransaction(string(tx.Type))
	return opResult{account: snapshot(account), txID: txID}
}

// pushTransaction prepends tx and evicts the oldest entry past the limit.
func pushTransaction(history []webintel.Transaction, tx webintel.Transaction) []webintel.Transaction {
	out := make([]webintel.Transaction, 0, len(history)+1)
	out = append(out, tx)
	out = append(out, history...)
	if len(out) > webintel.HistoryLimit {
		out = out[:webintel.HistoryLimit]
	}
	return out
}

func snapshot(account *webintel.CreditAccount) webintel.CreditAccount {
	cp := *account
	cp.History = make([]webintel.Transaction, len(account.History))
	copy(cp.History, account.History)
	return cp
}

func tierRank(t webintel.Tier) int {
	switch t {
	case webintel.TierEnterprise:
		return 2
	case webintel.TierPremium:
		return 1
	default:
		return 0
	}
}
