// Package memory provides in-memory store implementations for
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// AccountStore keeps credit accounts in a mutex-guarded map.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]webintel.CreditAccount
}

// NewAccountStore constructs an AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]webintel.CreditAccount)}
}

// Load returns a copy of the account, or (nil, nil) when the wallet was
// never initialized.
func (s *AccountStore) Load(_ context.Context, wallet string) (*webintel.CreditAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[wallet]
	if !ok {
		return nil, nil
	}
	copied := account
	copied.History = append([]webintel.Transaction(nil), account.History...)
	return &copied, nil
}

// Save stores a deep copy of the full account record.
func (s *AccountStore) Save(_ context.Context, account *webintel.CreditAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *account
	copied.History = append([]webintel.Transaction(nil), account.History...)
	s.accounts[account.Wallet] = copied
	return nil
}
