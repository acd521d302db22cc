package api

import (
	"net/http"

	x402 "github.com/mark3labs/x402-go"
	httpx402 "github.com/mark3labs/x402-go/http"
	chix402 "github.com/mark3labs/x402-go/http/chi"
)

// fetchRequestKey carries a decoded fetchRequest into the payment-gated
// handler. The request body has already been read by the time control
// reaches the x402 middleware, so re-decoding is not an option.
type fetchRequestKey struct{}

// buildPaidFetchHandler wraps the fetch execution in x402 payment
// gating. Requests land here only when the wallet's credit balance
// cannot cover the fetch price: the middleware answers 402 with payment
// requirements, and retries carrying a verified X-PAYMENT header run
// the fetch without touching the credit ledger.
func (s *Server) buildPaidFetchHandler() http.Handler {
	if !s.cfg.Payment.Enabled {
		return nil
	}
	gated := chix402.NewChiX402Middleware(&httpx402.Config{
		FacilitatorURL: s.cfg.Payment.FacilitatorURL,
		PaymentRequirements: []x402.PaymentRequirement{{
			Scheme:            "exact",
			Network:           s.cfg.Payment.Network,
			MaxAmountRequired: s.cfg.Payment.MaxAmountRequired,
			Asset:             s.cfg.Payment.Asset,
			PayTo:             s.cfg.Payment.PayTo,
			Resource:          "/v1/fetch",
			Description:       "single resilient page fetch",
			MaxTimeoutSeconds: s.cfg.Payment.MaxTimeoutSeconds,
		}},
	})
	return gated(http.HandlerFunc(s.paidFetchInner))
}

// paidFetchInner runs after the x402 middleware has verified and
// settled the payment.
func (s *Server) paidFetchInner(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(fetchRequestKey{}).(fetchRequest)
	if !ok {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "missing fetch request")
		return
	}
	result, err := s.runFetch(r.Context(), req)
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, buildFetchResponse(req.URL, result, s.cfg.Fetch.PriceCents, "x402", nil))
}
