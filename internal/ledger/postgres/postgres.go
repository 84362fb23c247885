package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger using the provided DSN and connection
// pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
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
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	tokens BIGINT NOT NULL DEFAULT 0 CHECK(tokens >= 0),
	plan TEXT NOT NULL DEFAULT 'free',
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS token_entries (
	id BIGSERIAL PRIMARY KEY,
	uuid UUID NOT NULL DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('debit','credit')),
	amount BIGINT NOT NULL,
	balance_after BIGINT NOT NULL,
	memo TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_token_entries_user_created ON token_entries(user_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_token_entries_uuid ON token_entries(uuid);
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

// Ping verifies the database is reachable.
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

	res, err := tx.ExecContext(ctx, `
INSERT INTO accounts(user_id, email, tokens, plan, status)
VALUES($1, $2, $3, $4, $5)
ON CONFLICT(user_id) DO NOTHING`,
		userID, email, initialTokens, string(plan), string(ledger.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 && initialTokens > 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO token_entries(user_id, kind, amount, balance_after, memo)
VALUES($1, $2, $3, $4, $5)`,
			userID, string(ledger.KindCredit), initialTokens, initialTokens, "signup grant"); err != nil {
			return nil, fmt.Errorf("record signup grant: %w", err)
		}
	}

	account, err := scanAccount(tx.QueryRowContext(ctx, accountColumns+` WHERE user_id = $1`, userID))
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
	return scanAccount(s.db.QueryRowContext(ctx, accountColumns+` WHERE user_id = $1`, userID))
}

// FindByEmail returns the account created for a sign-in email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*ledger.Account, error) {
	if email == "" {
		return nil, errors.New("email required")
	}
	return scanAccount(s.db.QueryRowContext(ctx, accountColumns+` WHERE email = $1`, email))
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
// account cannot cover it. The row update serializes concurrent debits, so
// the overdraft check holds across processes.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, memo string) (int64, error) {
	if amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx, `
UPDATE accounts SET tokens = tokens - $1, updated_at = NOW()
WHERE user_id = $2 AND status = 'active' AND tokens >= $1
RETURNING tokens`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.classifyRejection(ctx, tx, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("debit account: %w", err)
	}

	if err := journal(ctx, tx, userID, ledger.KindDebit, amount, balance, memo); err != nil {
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

	var balance int64
	err = tx.QueryRowContext(ctx, `
UPDATE accounts SET tokens = tokens + $1, updated_at = NOW()
WHERE user_id = $2
RETURNING tokens`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit account: %w", err)
	}

	if err := journal(ctx, tx, userID, ledger.KindCredit, amount, balance, memo); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return balance, nil
}

func (s *Store) classifyRejection(ctx context.Context, tx *sql.Tx, userID string) error {
	var tokens int64
	var status string
	err := tx.QueryRowContext(ctx, `SELECT tokens, status FROM accounts WHERE user_id = $1`, userID).Scan(&tokens, &status)
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

func journal(ctx context.Context, tx *sql.Tx, userID string, kind ledger.EntryKind, amount, balance int64, memo string) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO token_entries(user_id, kind, amount, balance_after, memo)
VALUES($1, $2, $3, $4, $5)`,
		userID, string(kind), amount, balance, memo); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	return nil
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
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var kind string
		var memo sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &e.Amount, &e.BalanceAfter, &memo, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = ledger.EntryKind(kind)
		e.Memo = memo.String
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
UPDATE accounts SET plan = $1, updated_at = NOW() WHERE user_id = $2`,
		string(plan), userID)
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
UPDATE accounts SET status = $1, updated_at = NOW() WHERE user_id = $2`,
		string(ledger.StatusInactive), userID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}
