package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type fetchRequest struct {
	Wallet         string `json:"wallet"`
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type fetchResponse struct {
	URL          string                  `json:"url"`
	Content      string                  `json:"content"`
	Title        string                  `json:"title,omitempty"`
	Metadata     map[string]string       `json:"metadata,omitempty"`
	Provider     webintel.ProviderResult `json:"provider"`
	CostCents    int64                   `json:"cost_cents"`
	PaidVia      string                  `json:"paid_via"`
	BalanceCents *int64                  `json:"balance_cents,omitempty"`
}

// fetch debits the wallet's credit balance up front. When the wallet
// cannot cover the price and on-chain payment is enabled, the request
// falls through to the x402-gated handler instead of failing outright.
func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if err := validateFetchRequest(req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	price := s.cfg.Fetch.PriceCents
	requestID := requestIDFrom(r.Context())
	account, err := s.accounting.DeductCredits(r.Context(), req.Wallet, price, "fetch "+req.URL, requestID)
	if err != nil {
		if errors.Is(err, webintel.ErrInsufficientFunds) && s.paidFetch != nil {
			// Body is already consumed; hand the decoded request to
			// the payment-gated path via context.
			ctx := context.WithValue(r.Context(), fetchRequestKey{}, req)
			s.paidFetch.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		writeDomainError(w, r, err)
		return
	}

	result, err := s.runFetch(r.Context(), req)
	if err != nil {
		// The page never arrived, so the debit is reversed. Refund
		// failure is logged and absorbed: the spend record still
		// carries the request id for reconciliation.
		if _, refundErr := s.accounting.RefundCredits(r.Context(), req.Wallet, price, "refund fetch "+req.URL, requestID); refundErr != nil {
			s.logger.Warn("fetch refund failed",
				zap.String("wallet", req.Wallet),
				zap.String("request_id", requestID),
				zap.Error(refundErr),
			)
		}
		writeFetchError(w, r, err)
		return
	}

	balance := account.BalanceCents
	writeJSON(w, r, http.StatusOK, buildFetchResponse(req.URL, result, price, "credits", &balance))
}

func (s *Server) runFetch(ctx context.Context, req fetchRequest) (webintel.FetchResult, error) {
	timeout := s.cfg.FetchTimeout()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	return s.fetcher.Fetch(ctx, req.URL, timeout)
}

func validateFetchRequest(req fetchRequest) error {
	if req.Wallet == "" {
		return errors.New("wallet is required")
	}
	if req.URL == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("url must be a valid http(s) address")
	}
	return nil
}

func buildFetchResponse(reqURL string, result webintel.FetchResult, price int64, paidVia string, balance *int64) fetchResponse {
	return fetchResponse{
		URL:          reqURL,
		Content:      result.Content,
		Title:        result.Title,
		Metadata:     result.Metadata,
		Provider:     result.Provider,
		CostCents:    price,
		PaidVia:      paidVia,
		BalanceCents: balance,
	}
}

func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	var failed *webintel.AllProvidersFailedError
	if errors.As(err, &failed) {
		writeJSON(w, r, http.StatusBadGateway, errorEnvelope{
			Error:     http.StatusText(http.StatusBadGateway),
			Code:      string(webintel.CodeAllProvidersFailed),
			Message:   failed.Error(),
			RequestID: requestIDFrom(r.Context()),
		})
		return
	}
	writeDomainError(w, r, err)
}
