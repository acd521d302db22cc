package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/telemetry"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// recordTimeout bounds the background stats write per attempt.
const recordTimeout = 5 * time.Second

// Orchestrator executes the ordered fallback chain for one fetch request.
// Providers are attempted strictly sequentially: each proxied attempt
// costs money or quota, so racing them is rejected in favor of cost control.
type Orchestrator struct {
	registry         *Registry
	logger           *zap.Logger
	settlementBuffer time.Duration
}

// NewOrchestrator constructs an Orchestrator. The settlement buffer is
// added to the caller timeout for proxied attempts, covering the
// provider's own payment round-trip.
func NewOrchestrator(registry *Registry, settlementBuffer time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, settlementBuffer: settlementBuffer, logger: logger}
}

// Fetch walks the provider chain until one succeeds. On exhaustion it
// returns a single aggregated error enumerating every provider's reason.
func (o *Orchestrator) Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.FetchResult, error) {
	order := o.registry.SelectOrder(ctx)
	if len(order) == 0 {
		return webintel.FetchResult{}, errors.New("no fetch providers configured")
	}

	failures := make([]webintel.ProviderFailure, 0, len(order))
	for i, provider := range order {
		desc := provider.Descriptor()
		attemptTimeout := timeout
		if !desc.Native {
			attemptTimeout += o.settlementBuffer
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		start := time.Now()
		page, err := provider.Fetch(attemptCtx, url, timeout)
		cancel()
		latency := time.Since(start)

		if err != nil {
			// A payment-required provider response lands here as an
			// ordinary failure reason; this system does not pay providers.
			failures = append(failures, webintel.ProviderFailure{ProviderID: desc.ID, Reason: err.Error()})
			o.recordOutcome(desc.ID, false, latency)
			o.logger.Warn("provider attempt failed",
				zap.String("provider", desc.ID),
				zap.String("url", url),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return webintel.FetchResult{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
			}
			continue
		}

		o.recordOutcome(desc.ID, true, latency)
		telemetry.ObserveFallbackDepth(i + 1)
		return webintel.FetchResult{
			Content:  page.Content,
			Title:    page.Title,
			Metadata: page.Metadata,
			Provider: webintel.ProviderResult{
				ID:           desc.ID,
				Name:         desc.Name,
				Proxied:      !desc.Native,
				AttemptsUsed: i + 1,
			},
		}, nil
	}

	telemetry.ObserveFallbackDepth(len(order))
	return webintel.FetchResult{}, &webintel.AllProvidersFailedError{
		Attempts: len(order),
		Failures: failures,
	}
}

// recordOutcome is fire-and-forget: a stats write must never block or
// fail the caller's request.
func (o *Orchestrator) recordOutcome(providerID string, success bool, latency time.Duration) {
	telemetry.ObserveFetchAttempt(providerID, success)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := o.registry.RecordOutcome(ctx, providerID, success, latency); err != nil {
			o.logger.Warn("record provider outcome failed",
				zap.String("provider", providerID),
				zap.Error(err),
			)
		}
	}()
}
