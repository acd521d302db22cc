package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

type depositRequest struct {
	Wallet         string `json:"wallet"`
	AmountUSD      string `json:"amount_usd"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type depositResponse struct {
	Wallet       string `json:"wallet"`
	PaidCents    int64  `json:"paid_cents"`
	BonusCents   int64  `json:"bonus_cents"`
	BalanceCents int64  `json:"balance_cents"`
	BalanceUSD   string `json:"balance_usd"`
	Tier         string `json:"tier"`
	TxID         string `json:"tx_id"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Wallet == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "wallet is required")
		return
	}
	cents, err := webintel.ParseUSD(req.AmountUSD)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	outcome, err := s.accounting.ProcessDeposit(r.Context(), req.Wallet, cents, req.IdempotencyKey)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, depositResponse{
		Wallet:       outcome.Account.Wallet,
		PaidCents:    cents,
		BonusCents:   outcome.BonusCents,
		BalanceCents: outcome.Account.BalanceCents,
		BalanceUSD:   webintel.FormatUSD(outcome.Account.BalanceCents),
		Tier:         string(outcome.Account.Tier),
		TxID:         outcome.TxID,
	})
}

type spendRequest struct {
	Wallet      string `json:"wallet"`
	AmountUSD   string `json:"amount_usd"`
	Description string `json:"description,omitempty"`
}

type spendResponse struct {
	Wallet       string `json:"wallet"`
	SpentCents   int64  `json:"spent_cents"`
	BalanceCents int64  `json:"balance_cents"`
	BalanceUSD   string `json:"balance_usd"`
}

func (s *Server) spend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Wallet == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "wallet is required")
		return
	}
	cents, err := webintel.ParseUSD(req.AmountUSD)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	description := req.Description
	if description == "" {
		description = "api spend"
	}

	account, err := s.accounting.DeductCredits(r.Context(), req.Wallet, cents, description, requestIDFrom(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, spendResponse{
		Wallet:       account.Wallet,
		SpentCents:   cents,
		BalanceCents: account.BalanceCents,
		BalanceUSD:   webintel.FormatUSD(account.BalanceCents),
	})
}

type balanceResponse struct {
	Wallet       string `json:"wallet"`
	BalanceCents int64  `json:"balance_cents"`
	BalanceUSD   string `json:"balance_usd"`
	Tier         string `json:"tier"`
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.loadAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, balanceResponse{
		Wallet:       account.Wallet,
		BalanceCents: account.BalanceCents,
		BalanceUSD:   webintel.FormatUSD(account.BalanceCents),
		Tier:         string(account.Tier),
	})
}

type historyResponse struct {
	Wallet  string                 `json:"wallet"`
	History []webintel.Transaction `json:"history"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	account, ok := s.loadAccount(w, r)
	if !ok {
		return
	}
	history := account.History
	if history == nil {
		history = []webintel.Transaction{}
	}
	writeJSON(w, r, http.StatusOK, historyResponse{Wallet: account.Wallet, History: history})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	account, ok := s.loadAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, account)
}

// loadAccount resolves the wallet path param into an account snapshot.
// Unknown wallets resolve to a fresh zero-balance view rather than 404,
// so clients can poll a wallet before its first deposit.
func (s *Server) loadAccount(w http.ResponseWriter, r *http.Request) (webintel.CreditAccount, bool) {
	wallet := chi.URLParam(r, "wallet")
	if wallet == "" {
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest, "wallet is required")
		return webintel.CreditAccount{}, false
	}
	account, err := s.accounting.GetCreditAccount(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, r, err)
		return webintel.CreditAccount{}, false
	}
	if account == nil {
		return webintel.CreditAccount{Wallet: wallet, Tier: webintel.TierStandard}, true
	}
	return *account, true
}
