// Package telemetry defines the Prometheus metrics surface for the service.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"method", "route"},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weblens_fetch_attempts_total",
			Help: "Total fetch attempts, labeled by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	fetchFallbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weblens_fetch_fallback_depth",
			Help:    "Number of providers attempted before a fetch resolved.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	creditTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weblens_credit_transactions_total",
			Help: "Total ledger transactions, labeled by type.",
		},
		[]string{"type"},
	)

	monitorChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weblens_monitor_checks_total",
			Help: "Total monitor checks, labeled by result.",
		},
		[]string{"result"},
	)

	webhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weblens_webhook_deliveries_total",
			Help: "Total webhook deliveries, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetchAttempt records one provider attempt outcome.
func ObserveFetchAttempt(providerID string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	fetchAttemptsTotal.WithLabelValues(providerID, outcome).Inc()
}

// ObserveFallbackDepth records how deep the fallback chain went.
func ObserveFallbackDepth(attempts int) {
	fetchFallbackDepth.Observe(float64(attempts))
}

// ObserveCreditTransaction records one committed ledger transaction.
func ObserveCreditTransaction(txType string) {
	creditTransactionsTotal.WithLabelValues(txType).Inc()
}

// ObserveMonitorCheck records one monitor check result.
func ObserveMonitorCheck(result string) {
	monitorChecksTotal.WithLabelValues(result).Inc()
}

// ObserveWebhookDelivery records one webhook delivery outcome.
func ObserveWebhookDelivery(delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
