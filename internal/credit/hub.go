package credit

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// Hub addresses ledger actors by wallet, spawning them lazily. The hub
// guarantees a single actor per wallet for the lifetime of the process.
type Hub struct {
	store  webintel.AccountStore
	idGen  webintel.IDGenerator
	clock  webintel.Clock
	logger *zap.Logger

	mu      sync.Mutex
	ledgers map[string]*Ledger
	closed  bool
}

// NewHub constructs a Hub.
func NewHub(
	store webintel.AccountStore,
	idGen webintel.IDGenerator,
	clock webintel.Clock,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		store:   store,
		idGen:   idGen,
		clock:   clock,
		logger:  logger,
		ledgers: make(map[string]*Ledger),
	}
}

// Ledger returns the actor for a wallet, creating it on first access.
func (h *Hub) Ledger(wallet string) *Ledger {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		// No new actors after shutdown; callers get ErrLedgerClosed
		// instead of a leaked goroutine.
		return newClosedLedger(wallet)
	}
	if l, ok := h.ledgers[wallet]; ok {
		return l
	}
	l := newLedger(wallet, h.store, h.idGen, h.clock, h.logger)
	h.ledgers[wallet] = l
	return l
}

// Close stops every ledger actor and rejects further lookups with fresh
// actors; in-flight operations finish first.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ledgers := make([]*Ledger, 0, len(h.ledgers))
	for _, l := range h.ledgers {
		ledgers = append(ledgers, l)
	}
	h.ledgers = make(map[string]*Ledger)
	h.mu.Unlock()

	for _, l := range ledgers {
		l.Close()
	}
}
