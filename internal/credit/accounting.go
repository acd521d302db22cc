package credit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// BonusTier grants Percent extra credits on deposits of at least MinCents.
// The schedule is configuration, not code: upstream descriptions of the
// thresholds disagree, so deployments pin their own table.
type BonusTier struct {
	MinCents int64
	Percent  float64
}

// DepositOutcome reports the account snapshot after a deposit plus the
// bonus that was accrued on top of the paid amount.
type DepositOutcome struct {
	Account    webintel.CreditAccount
	BonusCents int64
	TxID       string
}

// Accounting computes deposit bonuses and routes deposits and spends to
// the wallet's ledger actor.
type Accounting struct {
	hub    *Hub
	store  webintel.AccountStore
	bonus  []BonusTier
	logger *zap.Logger
}

// NewAccounting constructs the accounting service. Bonus tiers are kept
// sorted descending so the highest matching threshold wins.
func NewAccounting(hub *Hub, store webintel.AccountStore, bonus []BonusTier, logger *zap.Logger) *Accounting {
	tiers := make([]BonusTier, len(bonus))
	copy(tiers, bonus)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinCents > tiers[j].MinCents })
	return &Accounting{hub: hub, store: store, bonus: tiers, logger: logger}
}

// ProcessDeposit credits amountCents plus any bonus to the wallet.
// The idempotency key is recorded in transaction metadata; callers that
// need retry-safety must not reuse a key with a different amount.
func (a *Accounting) ProcessDeposit(ctx context.Context, wallet string, amountCents int64, idempotencyKey string) (DepositOutcome, error) {
	bonus := a.bonusFor(amountCents)
	metadata := map[string]string{
		"paid_cents":  strconv.FormatInt(amountCents, 10),
		"bonus_cents": strconv.FormatInt(bonus, 10),
	}
	if idempotencyKey != "" {
		metadata["idempotency_key"] = idempotencyKey
	}
	res, err := a.hub.Ledger(wallet).Deposit(ctx, amountCents+bonus, "credit deposit", metadata)
	if err != nil {
		return DepositOutcome{}, fmt.Errorf("process deposit for %s: %w", wallet, err)
	}
	if bonus > 0 {
		a.logger.Info("deposit bonus accrued",
			zap.String("wallet", wallet),
			zap.Int64("paid_cents", amountCents),
			zap.Int64("bonus_cents", bonus),
		)
	}
	return DepositOutcome{Account: res.Account, BonusCents: bonus, TxID: res.TxID}, nil
}

// DeductCredits debits the wallet for a billable request. An
// insufficient-funds failure is re-raised unchanged so the caller can
// fall through to an alternate payment path. No request-level
// deduplication happens here: a retried requestID is charged again.
func (a *Accounting) DeductCredits(ctx context.Context, wallet string, amountCents int64, description, requestID string) (webintel.CreditAccount, error) {
	metadata := map[string]string{"request_id": requestID}
	res, err := a.hub.Ledger(wallet).Spend(ctx, amountCents, description, metadata)
	if err != nil {
		return webintel.CreditAccount{}, fmt.Errorf("deduct credits for %s: %w", wallet, err)
	}
	return res.Account, nil
}

// RefundCredits returns previously charged credits to the wallet without
// affecting lifetime deposit totals or tier.
func (a *Accounting) RefundCredits(ctx context.Context, wallet string, amountCents int64, description, requestID string) (webintel.CreditAccount, error) {
	metadata := map[string]string{"request_id": requestID}
	res, err := a.hub.Ledger(wallet).Refund(ctx, amountCents, description, metadata)
	if err != nil {
		return webintel.CreditAccount{}, fmt.Errorf("refund credits for %s: %w", wallet, err)
	}
	return res.Account, nil
}

// GetCreditAccount reads the persisted account. A nil account with a nil
// error means the wallet was never initialized.
func (a *Accounting) GetCreditAccount(ctx context.Context, wallet string) (*webintel.CreditAccount, error) {
	account, err := a.store.Load(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("get credit account %s: %w", wallet, webintel.ErrServiceUnavailable)
	}
	return account, nil
}

func (a *Accounting) bonusFor(amountCents int64) int64 {
	for _, t := range a.bonus {
		if amountCents >= t.MinCents {
			return int64(math.Round(float64(amountCents) * t.Percent / 100))
		}
	}
	return 0
}
