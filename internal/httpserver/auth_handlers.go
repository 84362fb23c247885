package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

const sessionTTL = 24 * time.Hour

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	ChallengeID string    `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	// DebugCode is only populated when the server runs with debug logging;
	// production deployments deliver the code by email.
	DebugCode string `json:"debug_code,omitempty"`
}

// handleAuthLogin starts an email sign-in by issuing a verification challenge.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.respondError(w, http.StatusNotImplemented, "auth_disabled", "authentication is disabled on this server")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	id, code, expires, err := s.auth.CreateChallenge(email)
	if err != nil {
		s.errorf("create challenge for %s: %v", email, err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.debugf("issued sign-in code for %s challenge=%s", email, id)

	resp := loginResponse{ChallengeID: id, ExpiresAt: expires}
	if s.isDebug() {
		resp.DebugCode = code
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type verifyResponse struct {
	Token   string          `json:"token"`
	UserID  string          `json:"user_id"`
	Email   string          `json:"email"`
	Balance *ledger.Balance `json:"balance,omitempty"`
}

// handleAuthVerify completes the sign-in: the first verification for an email
// creates the account with the free-plan signup grant.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.respondError(w, http.StatusNotImplemented, "auth_disabled", "authentication is disabled on this server")
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.ChallengeID == "" || req.Code == "" {
		s.respondError(w, http.StatusBadRequest, "invalid_request", "challenge_id and code are required")
		return
	}

	email, err := s.auth.VerifyChallenge(req.ChallengeID, req.Code)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired verification code")
		return
	}

	account, err := s.ledger.FindByEmail(r.Context(), email)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		account, err = s.ledger.EnsureAccount(r.Context(), uuid.NewString(), email, ledger.PlanFree, s.catalog.SignupGrant())
	}
	if err != nil {
		s.errorf("resolve account for %s: %v", email, err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	token, err := s.auth.IssueToken(account.UserID, sessionTTL)
	if err != nil {
		s.errorf("issue token for %s: %v", account.UserID, err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.respondJSON(w, http.StatusOK, verifyResponse{
		Token:  token,
		UserID: account.UserID,
		Email:  account.Email,
		Balance: &ledger.Balance{
			Tokens: account.Tokens,
			Plan:   account.Plan,
		},
	})
}

func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}
