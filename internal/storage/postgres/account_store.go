package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// AccountStore persists full credit account records in Postgres. The
// bounded transaction history travels with the record as JSONB.
type AccountStore struct {
	pool dbPool
}

// NewAccountStore constructs an AccountStore over an existing pool.
func NewAccountStore(pool dbPool) (*AccountStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &AccountStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *AccountStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load fetches the account, or (nil, nil) when the wallet was never
// initialized.
func (s *AccountStore) Load(ctx context.Context, wallet string) (*webintel.CreditAccount, error) {
	const query = `
SELECT wallet, balance_cents, tier, total_deposited_cents, total_spent_cents, history, created_at, updated_at
FROM credit_accounts
WHERE wallet = $1`

	var account webintel.CreditAccount
	var historyJSON []byte
	err := s.pool.QueryRow(ctx, query, wallet).Scan(
		&account.Wallet,
		&account.BalanceCents,
		&account.Tier,
		&account.TotalDepositedCents,
		&account.TotalSpentCents,
		&historyJSON,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", wallet, err)
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &account.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", wallet, err)
		}
	}
	return &account, nil
}

// Save upserts the full account record in one statement.
func (s *AccountStore) Save(ctx context.Context, account *webintel.CreditAccount) error {
	if account == nil || account.Wallet == "" {
		return fmt.Errorf("account wallet is required")
	}
	historyJSON, err := json.Marshal(account.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	const query = `
INSERT INTO credit_accounts (
	wallet, balance_cents, tier, total_deposited_cents, total_spent_cents, history, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (wallet) DO UPDATE SET
	balance_cents = EXCLUDED.balance_cents,
	tier = EXCLUDED.tier,
	total_deposited_cents = EXCLUDED.total_deposited_cents,
	total_spent_cents = EXCLUDED.total_spent_cents,
	history = EXCLUDED.history,
	updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, query,
		account.Wallet,
		account.BalanceCents,
		string(account.Tier),
		account.TotalDepositedCents,
		account.TotalSpentCents,
		historyJSON,
		account.CreatedAt,
		account.UpdatedAt,
	); err != nil {
		return fmt.Errorf("save account %s: %w", account.Wallet, err)
	}
	return nil
}
