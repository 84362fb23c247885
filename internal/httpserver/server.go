package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tamoray/tamoray-api/internal/auth"
	"github.com/tamoray/tamoray-api/internal/generation"
	"github.com/tamoray/tamoray-api/internal/health"
	"github.com/tamoray/tamoray-api/internal/ledger"
	"github.com/tamoray/tamoray-api/internal/plan"
)

const sessionCookie = "tamoray_session"

// Server exposes the Tamoray REST endpoints.
type Server struct {
	ledger       ledger.Store
	generator    *generation.Service
	auth         *auth.Manager
	catalog      *plan.Catalog
	checker      *health.Checker
	adminEmail   string
	authDisabled bool

	logger   *log.Logger
	logLevel string
}

// New constructs a Server with the required dependencies.
func New(ledgerStore ledger.Store, generator *generation.Service, authManager *auth.Manager, catalog *plan.Catalog, adminEmail string) *Server {
	if catalog == nil {
		catalog = plan.Default()
	}
	return &Server{
		ledger:     ledgerStore,
		generator:  generator,
		auth:       authManager,
		catalog:    catalog,
		adminEmail: strings.TrimSpace(strings.ToLower(adminEmail)),
	}
}

// SetAuthDisabled switches identity resolution to the X-User-ID header,
// for development setups fronted by a trusted proxy.
func (s *Server) SetAuthDisabled(disabled bool) {
	s.authDisabled = disabled
}

// SetHealthChecker attaches dependency probes served on /health.
func (s *Server) SetHealthChecker(checker *health.Checker) {
	s.checker = checker
}

// SetLogger passes a logger and level for request-scope diagnostics.
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	s.logger = logger
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.isDebug() && s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Server) errorf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/auth/login", s.handleAuthLogin)
	r.Post("/auth/verify", s.handleAuthVerify)

	r.Group(func(private chi.Router) {
		private.Use(s.sessionMiddleware)
		private.Get("/tokens/balance", s.handleBalance)
		private.Get("/tokens/history", s.handleTokenHistory)
		private.Post("/tokens/debit", s.handleDebit)
		private.Post("/generations", s.handleGenerate)
		private.Get("/generations", s.handleGenerations)

		private.With(s.requireAdmin).Post("/tokens/credit", s.handleCredit)
	})

	return r
}

type identityContextKey struct{}

type identity struct {
	userID string
}

// sessionMiddleware resolves the caller identity from the session cookie or
// bearer token and stores it on the request context. Requests without a valid
// identity are rejected before any handler runs.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticateRequest(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, &identity{userID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticateRequest(r *http.Request) (string, error) {
	if s.authDisabled {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			return "", errors.New("missing identity")
		}
		return userID, nil
	}
	if s.auth == nil {
		return "", errors.New("auth manager unavailable")
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			return "", errors.New("missing session")
		}
		token = cookie.Value
	}
	return s.auth.ValidateToken(token)
}

// requireAdmin allows only the configured admin identity through.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := identityFromContext(r.Context())
		if info == nil || s.adminEmail == "" {
			s.respondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		account, err := s.ledger.Find(r.Context(), info.userID)
		if err != nil || !strings.EqualFold(account.Email, s.adminEmail) {
			s.respondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) *identity {
	info, _ := ctx.Value(identityContextKey{}).(*identity)
	return info
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"status": health.StatusHealthy})
		return
	}
	summary := s.checker.Check(r.Context())
	status := http.StatusOK
	if summary.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, summary)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the error envelope. Internal detail never reaches the
// caller; 500s carry a fixed message and the cause goes to the log instead.
func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	if message == "" {
		message = code
	}
	s.respondJSON(w, status, map[string]any{"error": code, "message": message})
}

// respondLedgerError maps ledger sentinels onto the HTTP taxonomy.
func (s *Server) respondLedgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.respondError(w, http.StatusNotFound, "not_found", "no account for this user")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		s.respondError(w, http.StatusPaymentRequired, "insufficient_balance", "token balance does not cover this operation")
	case errors.Is(err, ledger.ErrInvalidAmount):
		s.respondError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive integer")
	default:
		s.errorf("%s failed: %v", op, err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
