// Package monitor implements URL monitor lifecycle: definitions, the
// per-shard check scheduler, and webhook delivery.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// ErrInvalidURL is returned when a monitor target is not an absolute
// http(s) URL.
var ErrInvalidURL = errors.New("monitor url is not a valid http(s) endpoint")

// CreateParams are the caller-supplied fields for a new monitor.
type CreateParams struct {
	URL                string
	WebhookURL         string
	CheckIntervalHours int
	NotifyOn           webintel.NotifyFilter
	OwnerID            string
}

// Registry owns monitor definitions and the owner index. After creation
// all mutations flow through the scheduler's check path.
type Registry struct {
	store  webintel.MonitorStore
	ids    webintel.IDGenerator
	clock  webintel.Clock
	logger *zap.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(store webintel.MonitorStore, ids webintel.IDGenerator, clock webintel.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, ids: ids, clock: clock, logger: logger}
}

// Create validates the params, writes the monitor record, then appends
// the id to the owner index. The two writes are separate records with no
// cross-write transaction; an index write failure is logged and the
// monitor is still returned.
func (r *Registry) Create(ctx context.Context, params CreateParams) (webintel.MonitorDefinition, error) {
	if err := validateHTTPURL(params.URL); err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("%w: %q", ErrInvalidURL, params.URL)
	}
	if err := validateHTTPURL(params.WebhookURL); err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("%w: %q", webintel.ErrWebhookInvalid, params.WebhookURL)
	}
	if params.OwnerID == "" {
		return webintel.MonitorDefinition{}, fmt.Errorf("owner id is required")
	}

	notifyOn := params.NotifyOn
	if notifyOn == "" {
		notifyOn = webintel.NotifyAny
	}
	switch notifyOn {
	case webintel.NotifyAny, webintel.NotifyContent, webintel.NotifyStatus:
	default:
		return webintel.MonitorDefinition{}, fmt.Errorf("unknown notify filter %q", params.NotifyOn)
	}

	id, err := r.ids.NewID()
	if err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("generate monitor id: %w", err)
	}

	now := r.clock.Now()
	interval := clampInterval(params.CheckIntervalHours)
	def := webintel.MonitorDefinition{
		ID:                 id,
		URL:                params.URL,
		WebhookURL:         params.WebhookURL,
		CheckIntervalHours: interval,
		NotifyOn:           notifyOn,
		Status:             webintel.MonitorActive,
		OwnerID:            params.OwnerID,
		CreatedAt:          now,
		NextCheckAt:        now.Add(time.Duration(interval) * time.Hour),
	}

	if err := r.store.Put(ctx, def); err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("store monitor %s: %w", id, err)
	}
	if err := r.store.AppendOwnerIndex(ctx, params.OwnerID, id); err != nil {
		r.logger.Warn("owner index append failed",
			zap.String("monitor_id", id),
			zap.String("owner_id", params.OwnerID),
			zap.Error(err))
	}
	return def, nil
}

// Get returns the monitor or webintel.ErrMonitorNotFound.
func (r *Registry) Get(ctx context.Context, id string) (webintel.MonitorDefinition, error) {
	return r.store.Get(ctx, id)
}

// Delete removes the monitor record and its owner index entry.
func (r *Registry) Delete(ctx context.Context, id string) error {
	def, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete monitor %s: %w", id, err)
	}
	if err := r.store.RemoveOwnerIndex(ctx, def.OwnerID, id); err != nil {
		r.logger.Warn("owner index remove failed",
			zap.String("monitor_id", id),
			zap.String("owner_id", def.OwnerID),
			zap.Error(err))
	}
	return nil
}

// ListByOwner resolves the owner index into definitions. Ids whose
// record is gone are skipped; the index is eventually consistent.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]webintel.MonitorDefinition, error) {
	ids, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner index %s: %w", ownerID, err)
	}
	defs := make([]webintel.MonitorDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := r.store.Get(ctx, id)
		if errors.Is(err, webintel.ErrMonitorNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load monitor %s: %w", id, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ListActive returns every active monitor, used for scheduler recovery.
func (r *Registry) ListActive(ctx context.Context) ([]webintel.MonitorDefinition, error) {
	return r.store.ListActive(ctx)
}

// UpdateAfterCheck records a completed check: nextCheckAt advances by
// the interval from now (not from the stale nextCheckAt, so lateness
// never compounds), checkCount and totalCost grow, the failure streak
// resets, and a monitor parked in error state becomes active again.
func (r *Registry) UpdateAfterCheck(ctx context.Context, id, contentHash string, costCents int64) (webintel.MonitorDefinition, error) {
	def, err := r.store.Get(ctx, id)
	if err != nil {
		return webintel.MonitorDefinition{}, err
	}

	now := r.clock.Now()
	def.NextCheckAt = now.Add(time.Duration(def.CheckIntervalHours) * time.Hour)
	def.CheckCount++
	def.TotalCostCents += costCents
	def.FailureStreak = 0
	if contentHash != "" {
		def.LastContentHash = contentHash
	}
	if def.Status == webintel.MonitorError {
		def.Status = webintel.MonitorActive
	}

	if err := r.store.Put(ctx, def); err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("store monitor %s: %w", id, err)
	}
	return def, nil
}

// RecordFailure bumps the consecutive-failure streak and reschedules the
// monitor one interval out. Once the streak reaches maxStreak the
// monitor flips to error status and stops being checked; a successful
// manual check reactivates it. maxStreak <= 0 disables the cutoff.
func (r *Registry) RecordFailure(ctx context.Context, id string, maxStreak int) (webintel.MonitorDefinition, error) {
	def, err := r.store.Get(ctx, id)
	if err != nil {
		return webintel.MonitorDefinition{}, err
	}

	def.FailureStreak++
	def.NextCheckAt = r.clock.Now().Add(time.Duration(def.CheckIntervalHours) * time.Hour)
	if maxStreak > 0 && def.FailureStreak >= maxStreak {
		def.Status = webintel.MonitorError
		r.logger.Warn("monitor disabled after repeated failures",
			zap.String("monitor_id", id),
			zap.Int("failure_streak", def.FailureStreak))
	}

	if err := r.store.Put(ctx, def); err != nil {
		return webintel.MonitorDefinition{}, fmt.Errorf("store monitor %s: %w", id, err)
	}
	return def, nil
}

func clampInterval(hours int) int {
	if hours < webintel.MinCheckIntervalHours {
		return webintel.MinCheckIntervalHours
	}
	if hours > webintel.MaxCheckIntervalHours {
		return webintel.MaxCheckIntervalHours
	}
	return hours
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("not an absolute http(s) url")
	}
	return nil
}
