// Package api exposes the HTTP interface for the weblens service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/config"
	"github.com/vasilistotskas/weblens-sub000/internal/credit"
	"github.com/vasilistotskas/weblens-sub000/internal/monitor"
	"github.com/vasilistotskas/weblens-sub000/internal/telemetry"
	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// Accounting is the credit surface the handlers need.
type Accounting interface {
	ProcessDeposit(ctx context.Context, wallet string, amountCents int64, idempotencyKey string) (credit.DepositOutcome, error)
	DeductCredits(ctx context.Context, wallet string, amountCents int64, description, requestID string) (webintel.CreditAccount, error)
	RefundCredits(ctx context.Context, wallet string, amountCents int64, description, requestID string) (webintel.CreditAccount, error)
	GetCreditAccount(ctx context.Context, wallet string) (*webintel.CreditAccount, error)
}

// Fetcher runs a resilient fetch through the provider chain.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (webintel.FetchResult, error)
}

// SchedulerClient is the scheduler actor contract exposed over HTTP.
type SchedulerClient interface {
	Schedule(ctx context.Context, monitorID string, intervalHours int) error
	Cancel(ctx context.Context, monitorID string) error
}

// Server wires HTTP handlers to the accounting, fetch, and monitor
// subsystems.
type Server struct {
	router     chi.Router
	accounting Accounting
	fetcher    Fetcher
	monitors   *monitor.Registry
	checker    *monitor.Checker
	scheduler  SchedulerClient
	logger     *zap.Logger
	cfg        config.Config

	paidFetch http.Handler
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	accounting Accounting,
	fetcher Fetcher,
	monitors *monitor.Registry,
	checker *monitor.Checker,
	scheduler SchedulerClient,
	logger *zap.Logger,
	cfg config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		accounting: accounting,
		fetcher:    fetcher,
		monitors:   monitors,
		checker:    checker,
		scheduler:  scheduler,
		logger:     logger,
		cfg:        cfg,
	}
	s.paidFetch = s.buildPaidFetchHandler()

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.RequestTimeoutS) * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/credits", func(r chi.Router) {
			r.Post("/deposit", s.deposit)
			r.Post("/spend", s.spend)
			r.Get("/balance/{wallet}", s.balance)
			r.Get("/history/{wallet}", s.history)
			r.Get("/account/{wallet}", s.account)
		})
		r.Post("/fetch", s.fetch)
		r.Route("/monitors", func(r chi.Router) {
			r.Post("/", s.createMonitor)
			r.Get("/", s.listMonitors)
			r.Get("/{monitor_id}", s.getMonitor)
			r.Delete("/{monitor_id}", s.deleteMonitor)
			r.Post("/{monitor_id}/check", s.checkMonitor)
		})
		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/schedule", s.scheduleMonitor)
			r.Post("/cancel", s.cancelMonitor)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Stores are checked lazily per request; readiness means routing works.
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

type errorEnvelope struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code webintel.Code, message string) {
	writeJSON(w, r, status, errorEnvelope{
		Error:     http.StatusText(status),
		Code:      string(code),
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := webintel.CodeOf(err)
	writeError(w, r, statusForCode(code), code, err.Error())
}

func statusForCode(code webintel.Code) int {
	switch code {
	case webintel.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case webintel.CodeAllProvidersFailed:
		return http.StatusBadGateway
	case webintel.CodeMonitorNotFound:
		return http.StatusNotFound
	case webintel.CodeWebhookInvalid:
		return http.StatusBadRequest
	case webintel.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeInvalidRequest labels plain request validation failures that are
// not part of the domain taxonomy.
const codeInvalidRequest = webintel.Code("INVALID_REQUEST")
