// Package webintel defines core types shared across subsystems.
package webintel

import "time"

// Tier classifies an account by lifetime deposits. It never decreases.
type Tier string

// Account tiers ordered by lifetime deposit thresholds.
const (
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Tier thresholds in cents of lifetime deposits.
const (
	PremiumThresholdCents    int64 = 10_000
	EnterpriseThresholdCents int64 = 100_000
)

// TierFor derives the tier from lifetime deposited cents.
func TierFor(totalDepositedCents int64) Tier {
	switch {
	case totalDepositedCents >= EnterpriseThresholdCents:
		return TierEnterprise
	case totalDepositedCents >= PremiumThresholdCents:
		return TierPremium
	default:
		return TierStandard
	}
}

// TxType identifies the direction of a ledger transaction.
type TxType string

// Transaction types recorded in account history.
const (
	TxDeposit TxType = "deposit"
	TxSpend   TxType = "spend"
	TxRefund  TxType = "refund"
)

// HistoryLimit bounds the per-account transaction ring.
const HistoryLimit = 100

// Transaction is a single ledger entry. AmountCents is signed: deposits
// and refunds are positive, spends negative.
type Transaction struct {
	ID          string            `json:"id"`
	Type        TxType            `json:"type"`
	AmountCents int64             `json:"amount_cents"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreditAccount is the authoritative balance record for one wallet.
// History is newest-first and holds at most HistoryLimit entries.
type CreditAccount struct {
	Wallet              string        `json:"wallet"`
	BalanceCents        int64         `json:"balance_cents"`
	Tier                Tier          `json:"tier"`
	TotalDepositedCents int64         `json:"total_deposited_cents"`
	TotalSpentCents     int64         `json:"total_spent_cents"`
	History             []Transaction `json:"history"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// ProviderDescriptor is the static, immutable description of a fetch
// provider. Lower Priority is tried first.
type ProviderDescriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Native       bool     `json:"native"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Priority     int      `json:"priority"`
}

// ProviderStats holds rolling success/latency counters for one provider.
type ProviderStats struct {
	TotalRequests int64     `json:"total_requests"`
	SuccessCount  int64     `json:"success_count"`
	FailureCount  int64     `json:"failure_count"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	LastUpdated   time.Time `json:"last_updated"`
}

// NeutralSuccessRate is assumed for providers with no observed history,
// so a cold provider gets a fair trial within its priority band.
const NeutralSuccessRate = 0.5

// SuccessRate returns the observed success ratio, or the neutral prior
// when the provider has no recorded requests.
func (s ProviderStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return NeutralSuccessRate
	}
	return float64(s.SuccessCount) / float64(s.TotalRequests)
}

// Page is the transformed representation of a fetched document.
type Page struct {
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ProviderResult records which provider served a fetch and how many
// fallback attempts it took.
type ProviderResult struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Proxied      bool   `json:"is_proxied"`
	AttemptsUsed int    `json:"attempts_used"`
}

// FetchResult is returned by a successful resilient fetch.
type FetchResult struct {
	Content  string            `json:"content"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Provider ProviderResult    `json:"provider"`
}

// MonitorStatus is the lifecycle state of a monitor.
type MonitorStatus string

// Monitor status values persisted in the monitor store.
const (
	MonitorActive MonitorStatus = "active"
	MonitorPaused MonitorStatus = "paused"
	MonitorError  MonitorStatus = "error"
)

// NotifyFilter selects which change kinds trigger a webhook.
type NotifyFilter string

// Notify filters accepted on monitor creation.
const (
	NotifyAny     NotifyFilter = "any"
	NotifyContent NotifyFilter = "content"
	NotifyStatus  NotifyFilter = "status"
)

// Monitor check interval bounds in hours.
const (
	MinCheckIntervalHours = 1
	MaxCheckIntervalHours = 24
)

// MonitorDefinition describes one monitored URL and its schedule state.
type MonitorDefinition struct {
	ID                 string        `json:"id"`
	URL                string        `json:"url"`
	WebhookURL         string        `json:"webhook_url"`
	CheckIntervalHours int           `json:"check_interval_hours"`
	NotifyOn           NotifyFilter  `json:"notify_on"`
	Status             MonitorStatus `json:"status"`
	LastContentHash    string        `json:"last_content_hash,omitempty"`
	CheckCount         int64         `json:"check_count"`
	TotalCostCents     int64         `json:"total_cost_cents"`
	FailureStreak      int           `json:"failure_streak"`
	OwnerID            string        `json:"owner_id"`
	CreatedAt          time.Time     `json:"created_at"`
	NextCheckAt        time.Time     `json:"next_check_at"`
}

// ChangeType labels the observation delivered by a webhook.
type ChangeType string

// Change types carried in webhook events.
const (
	ChangeContent ChangeType = "content"
	ChangeStatus  ChangeType = "status"
	ChangeError   ChangeType = "error"
)

// WebhookEvent is the payload POSTed to a monitor's webhook URL.
type WebhookEvent struct {
	MonitorID    string     `json:"monitor_id"`
	URL          string     `json:"url"`
	ChangeType   ChangeType `json:"change_type"`
	PreviousHash string     `json:"previous_hash,omitempty"`
	CurrentHash  string     `json:"current_hash,omitempty"`
	Diff         string     `json:"diff,omitempty"`
	CheckedAt    time.Time  `json:"checked_at"`
}

// CheckEvent is published to the event stream after every monitor check.
type CheckEvent struct {
	MonitorID  string     `json:"monitor_id"`
	URL        string     `json:"url"`
	OwnerID    string     `json:"owner_id"`
	ChangeType ChangeType `json:"change_type"`
	Changed    bool       `json:"changed"`
	Notified   bool       `json:"notified"`
	CostCents  int64      `json:"cost_cents"`
	CheckedAt  time.Time  `json:"checked_at"`
}
