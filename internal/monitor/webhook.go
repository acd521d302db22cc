package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier delivers change events with a bounded-timeout HTTP
// POST. Delivery is best effort; callers never reverse billing or the
// schedule on failure.
type WebhookNotifier struct {
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier builds a notifier. A nil client gets a default
// with a bounded timeout.
func NewWebhookNotifier(client *http.Client, logger *zap.Logger) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{client: client, logger: logger}
}

// Notify POSTs the event as JSON and treats any non-2xx status as a
// delivery failure.
func (n *WebhookNotifier) Notify(ctx context.Context, webhookURL string, event webintel.WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
