package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite ledger at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Queue concurrent writers instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	tokens INTEGER NOT NULL DEFAULT 0 CHECK(tokens >= 0),
	plan TEXT NOT NULL DEFAULT 'free',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS token_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('debit','credit')),
	amount INTEGER NOT NULL,
	balance_after INTEGER NOT NULL,
	memo TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_token_entries_user_created ON token_entries(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureAccount returns the account for userID, creating it on first sign-up.
func (s *Store) EnsureAccount(ctx context.Context, userID, email string, plan ledger.Plan, initialTokens int64) (*ledger.Account, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if !ledger.ValidPlan(plan) {
		return nil, fmt.Errorf("invalid plan %q", plan)
	}
	if initialTokens < 0 {
		return nil, ledger.ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
INSERT INTO accounts(user_id, email, tokens, plan, status, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO NOTHING`,
		userID, email, initialTokens, string(plan), string(ledger.StatusActive), now, now)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 && initialTokens > 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO token_entries(user_id, kind, amount, balance_after, memo, created_at)
VALUES(?, ?, ?, ?, ?, ?)`,
			userID, string(ledger.KindCredit), initialTokens, initialTokens, "signup grant", now); err != nil {
			return nil, fmt.Errorf("record signup grant: %w", err)
		}
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, accountColumns+` WHERE user_id = ?`, userID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return account, nil
}

const accountColumns = `SELECT id, user_id, email, tokens, plan, status, created_at, updated_at FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var a ledger.Account
	var plan, status string
	err := row.Scan(&a.ID, &a.UserID, &a.Email, &a.Tokens, &plan, &status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Plan = ledger.Plan(plan)
	a.Status = ledger.Status(status)
	return &a, nil
}

// Find returns the account for userID.
func (s *Store) Find(ctx context.Context, userID string) (*ledger.Account, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	return scanAccount(s.db.QueryRowContext(ctx, accountColumns+` WHERE user_id = ?`, userID))
}

// FindByEmail returns the account created for a sign-in email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*ledger.Account, error) {
	if email == "" {
		return nil, errors.New("email required")
	}
	return scanAccount(s.db.QueryRowContext(ctx, accountColumns+` WHERE email = ?`, email))
}

// Balance returns the current tokens and plan.
func (s *Store) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	account, err := s.Find(ctx, userID)
	if err != nil {
		return ledger.Balance{}, err
	}
	return ledger.Balance{Tokens: account.Tokens, Plan: account.Plan}, nil
}

// Debit subtracts amount from the balance, failing without effect when the
// account cannot cover it. The conditional update makes the overdraft check
// and the decrement a single statement, so two concurrent debits can never
// jointly overdraw the row.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, memo string) (int64, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE accounts SET tokens = tokens - ?, updated_at = ?
WHERE user_id = ? AND status = 'active' AND tokens >= ?`,
		amount, now, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}
	if n == 0 {
		return 0, s.classifyRejection(ctx, tx, userID)
	}

	balance, err := s.journal(ctx, tx, userID, ledger.KindDebit, amount, memo, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// Credit adds amount to the balance. It succeeds whenever the account exists,
// active or not.
func (s *Store) Credit(ctx context.Context, userID string, amount int64, memo string) (int64, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE accounts SET tokens = tokens + ?, updated_at = ? WHERE user_id = ?`,
		amount, now, userID)
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ledger.ErrAccountNotFound
	}

	balance, err := s.journal(ctx, tx, userID, ledger.KindCredit, amount, memo, now)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

// classifyRejection distinguishes a missing or inactive account from an
// insufficient balance after a conditional update touched no rows.
func (s *Store) classifyRejection(ctx context.Context, tx *sql.Tx, userID string) error {
	var tokens int64
	var status string
	err := tx.QueryRowContext(ctx, `SELECT tokens, status FROM accounts WHERE user_id = ?`, userID).Scan(&tokens, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect account: %w", err)
	}
	if ledger.Status(status) != ledger.StatusActive {
		return ledger.ErrAccountNotFound
	}
	return ledger.ErrInsufficientBalance
}

func (s *Store) journal(ctx context.Context, tx *sql.Tx, userID string, kind ledger.EntryKind, amount int64, memo string, now time.Time) (int64, error) {
	var balance int64
	if err := tx.QueryRowContext(ctx, `SELECT tokens FROM accounts WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO token_entries(user_id, kind, amount, balance_after, memo, created_at)
VALUES(?, ?, ?, ?, ?, ?)`,
		userID, string(kind), amount, balance, memo, now); err != nil {
		return 0, fmt.Errorf("record entry: %w", err)
	}
	return balance, nil
}

// History returns the latest journal entries for a user, newest first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, kind, amount, balance_after, memo, created_at
FROM token_entries
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Amount, &e.BalanceAfter, &e.Memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = ledger.EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetPlan updates the subscription tier for the account.
func (s *Store) SetPlan(ctx context.Context, userID string, plan ledger.Plan) error {
	if !ledger.ValidPlan(plan) {
		return fmt.Errorf("invalid plan %q", plan)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET plan = ?, updated_at = ? WHERE user_id = ?`,
		string(plan), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// Deactivate flags the account inactive without removing the row.
func (s *Store) Deactivate(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE accounts SET status = ?, updated_at = ? WHERE user_id = ?`,
		string(ledger.StatusInactive), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}
