package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/telemetry"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// Biller debits the monitor owner's wallet for each check.
type Biller interface {
	DeductCredits(ctx context.Context, wallet string, amountCents int64, description, requestID string) (webintel.CreditAccount, error)
}

// Fetcher retrieves and transforms the monitored page.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.FetchResult, error)
}

// CheckerConfig tunes a Checker.
type CheckerConfig struct {
	// CostCents is billed to the owner per check.
	CostCents int64
	// FetchTimeout bounds the page fetch of one check.
	FetchTimeout time.Duration
	// Topic receives a CheckEvent after every completed check.
	Topic string
	// MaxConsecutiveFailures flips the monitor to error status once the
	// failure streak reaches it. Zero disables the cutoff.
	MaxConsecutiveFailures int
}

// CheckOutcome reports what one check did.
type CheckOutcome struct {
	Monitor    webintel.MonitorDefinition
	ChangeType webintel.ChangeType
	Changed    bool
	Notified   bool
	Billed     bool
}

// Checker runs a single monitor check end to end: bill, fetch, hash,
// compare, persist, notify, publish. The scheduler and the manual check
// endpoint share it.
type Checker struct {
	registry  *Registry
	biller    Biller
	fetcher   Fetcher
	hasher    webintel.Hasher
	snapshots webintel.SnapshotStore
	notifier  webintel.Notifier
	publisher webintel.Publisher
	ids       webintel.IDGenerator
	clock     webintel.Clock
	logger    *zap.Logger
	cfg       CheckerConfig
}

// NewChecker constructs a Checker.
func NewChecker(
	registry *Registry,
	biller Biller,
	fetcher Fetcher,
	hasher webintel.Hasher,
	snapshots webintel.SnapshotStore,
	notifier webintel.Notifier,
	publisher webintel.Publisher,
	ids webintel.IDGenerator,
	clock webintel.Clock,
	logger *zap.Logger,
	cfg CheckerConfig,
) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Checker{
		registry:  registry,
		biller:    biller,
		fetcher:   fetcher,
		hasher:    hasher,
		snapshots: snapshots,
		notifier:  notifier,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
}

// Check executes one billed check of the monitor. A billing failure
// skips the cycle without a webhook; a fetch failure counts toward the
// failure streak and can notify per the monitor's filter. Webhook and
// publish failures never reverse billing or the schedule.
func (c *Checker) Check(ctx context.Context, def webintel.MonitorDefinition) (CheckOutcome, error) {
	outcome := CheckOutcome{Monitor: def}

	requestID, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("request id generation failed", zap.Error(err))
		requestID = def.ID
	}

	if _, err := c.biller.DeductCredits(ctx, def.OwnerID, c.cfg.CostCents, "monitor check "+def.ID, requestID); err != nil {
		telemetry.ObserveMonitorCheck("billing_failed")
		if updated, ferr := c.registry.RecordFailure(ctx, def.ID, c.cfg.MaxConsecutiveFailures); ferr == nil {
			outcome.Monitor = updated
		} else {
			c.logger.Error("failure record after billing error failed",
				zap.String("monitor_id", def.ID), zap.Error(ferr))
		}
		return outcome, fmt.Errorf("debit owner %s for monitor %s: %w", def.OwnerID, def.ID, err)
	}
	outcome.Billed = true

	result, err := c.fetcher.Fetch(ctx, def.URL, c.cfg.FetchTimeout)
	if err != nil {
		return c.failCheck(ctx, def, outcome, err)
	}

	hash, err := c.hasher.Hash([]byte(result.Content))
	if err != nil {
		return c.failCheck(ctx, def, outcome, fmt.Errorf("hash content: %w", err))
	}

	previousHash := def.LastContentHash
	changed := previousHash != "" && previousHash != hash

	diff := ""
	if changed && c.snapshots != nil {
		previousBody, serr := c.snapshots.Get(ctx, def.ID)
		if serr != nil {
			c.logger.Warn("snapshot read failed",
				zap.String("monitor_id", def.ID), zap.Error(serr))
		} else if previousBody != nil {
			diff = lineDiff(previousBody, []byte(result.Content), maxDiffLines)
		}
	}
	if c.snapshots != nil {
		if _, serr := c.snapshots.Put(ctx, def.ID, []byte(result.Content)); serr != nil {
			c.logger.Warn("snapshot write failed",
				zap.String("monitor_id", def.ID), zap.Error(serr))
		}
	}

	updated, err := c.registry.UpdateAfterCheck(ctx, def.ID, hash, c.cfg.CostCents)
	if err != nil {
		telemetry.ObserveMonitorCheck("update_failed")
		return outcome, fmt.Errorf("record check for monitor %s: %w", def.ID, err)
	}
	outcome.Monitor = updated
	outcome.Changed = changed
	if changed {
		outcome.ChangeType = webintel.ChangeContent
		telemetry.ObserveMonitorCheck("changed")
	} else {
		telemetry.ObserveMonitorCheck("unchanged")
	}

	if changed && notifyMatches(def.NotifyOn, webintel.ChangeContent) {
		event := webintel.WebhookEvent{
			MonitorID:    def.ID,
			URL:          def.URL,
			ChangeType:   webintel.ChangeContent,
			PreviousHash: previousHash,
			CurrentHash:  hash,
			Diff:         diff,
			CheckedAt:    c.clock.Now(),
		}
		outcome.Notified = c.deliver(ctx, def, event)
	}

	c.publishEvent(ctx, def, outcome)
	return outcome, nil
}

// failCheck handles a failed fetch (or hashing): the check was billed,
// the streak grows, and status-watching monitors get an error webhook.
func (c *Checker) failCheck(ctx context.Context, def webintel.MonitorDefinition, outcome CheckOutcome, cause error) (CheckOutcome, error) {
	telemetry.ObserveMonitorCheck("fetch_failed")
	if updated, ferr := c.registry.RecordFailure(ctx, def.ID, c.cfg.MaxConsecutiveFailures); ferr == nil {
		outcome.Monitor = updated
	} else {
		c.logger.Error("failure record after fetch error failed",
			zap.String("monitor_id", def.ID), zap.Error(ferr))
	}
	outcome.ChangeType = webintel.ChangeError

	if notifyMatches(def.NotifyOn, webintel.ChangeError) {
		event := webintel.WebhookEvent{
			MonitorID:    def.ID,
			URL:          def.URL,
			ChangeType:   webintel.ChangeError,
			PreviousHash: def.LastContentHash,
			CheckedAt:    c.clock.Now(),
		}
		outcome.Notified = c.deliver(ctx, def, event)
	}

	c.publishEvent(ctx, def, outcome)
	return outcome, fmt.Errorf("check monitor %s: %w", def.ID, cause)
}

func (c *Checker) deliver(ctx context.Context, def webintel.MonitorDefinition, event webintel.WebhookEvent) bool {
	err := c.notifier.Notify(ctx, def.WebhookURL, event)
	telemetry.ObserveWebhookDelivery(err == nil)
	if err != nil {
		c.logger.Warn("webhook delivery failed",
			zap.String("monitor_id", def.ID),
			zap.String("webhook_url", def.WebhookURL),
			zap.Error(err))
		return false
	}
	return true
}

func (c *Checker) publishEvent(ctx context.Context, def webintel.MonitorDefinition, outcome CheckOutcome) {
	if c.publisher == nil || c.cfg.Topic == "" {
		return
	}
	event := webintel.CheckEvent{
		MonitorID:  def.ID,
		URL:        def.URL,
		OwnerID:    def.OwnerID,
		ChangeType: outcome.ChangeType,
		Changed:    outcome.Changed,
		Notified:   outcome.Notified,
		CostCents:  c.cfg.CostCents,
		CheckedAt:  c.clock.Now(),
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, event); err != nil {
		c.logger.Warn("check event publish failed",
			zap.String("monitor_id", def.ID), zap.Error(err))
	}
}

// notifyMatches applies the monitor's filter: any matches everything,
// content matches content changes, status matches status and error
// observations.
func notifyMatches(filter webintel.NotifyFilter, change webintel.ChangeType) bool {
	switch filter {
	case webintel.NotifyAny:
		return true
	case webintel.NotifyContent:
		return change == webintel.ChangeContent
	case webintel.NotifyStatus:
		return change == webintel.ChangeStatus || change == webintel.ChangeError
	default:
		return false
	}
}
