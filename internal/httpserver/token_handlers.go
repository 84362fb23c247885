package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

// handleBalance serves GET /tokens/balance for the authenticated user.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	info := identityFromContext(r.Context())
	balance, err := s.ledger.Balance(r.Context(), info.userID)
	if err != nil {
		s.respondLedgerError(w, "balance lookup", err)
		return
	}
	s.respondJSON(w, http.StatusOK, balance)
}

type debitRequest struct {
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

type balanceMutationResponse struct {
	Tokens int64 `json:"tokens"`
}

// handleDebit spends tokens from the caller's own account.
func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	info := identityFromContext(r.Context())
	var req debitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	balance, err := s.ledger.Debit(r.Context(), info.userID, req.Amount, req.Memo)
	if err != nil {
		s.respondLedgerError(w, "debit", err)
		return
	}
	s.respondJSON(w, http.StatusOK, balanceMutationResponse{Tokens: balance})
}

type creditRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// handleCredit grants tokens to any account. Admin only.
func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	balance, err := s.ledger.Credit(r.Context(), req.UserID, req.Amount, req.Memo)
	if err != nil {
		s.respondLedgerError(w, "credit", err)
		return
	}
	s.respondJSON(w, http.StatusOK, balanceMutationResponse{Tokens: balance})
}

type historyResponse struct {
	Entries []ledger.Entry `json:"entries"`
}

// handleTokenHistory lists the caller's recent ledger entries.
func (s *Server) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	info := identityFromContext(r.Context())
	entries, err := s.ledger.History(r.Context(), info.userID, queryLimit(r, 50))
	if err != nil {
		s.respondLedgerError(w, "history", err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// queryLimit parses ?limit= with a fallback; malformed values use the default.
func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > 200 {
		n = 200
	}
	return n
}
