package ledger

import (
	"context"
	"errors"
	"time"
)

// Plan identifies the subscription tier attached to an account. The tier is
// assigned by the billing side; the ledger only reads it.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Status captures whether an account may spend tokens.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// EntryKind distinguishes journal entries.
type EntryKind string

const (
	KindDebit  EntryKind = "debit"
	KindCredit EntryKind = "credit"
)

var (
	// ErrAccountNotFound indicates no account exists for the user id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientBalance indicates a debit would overdraw the account.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount indicates a non-positive debit or credit amount.
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	// ErrAccountExists indicates a second account for the same user id.
	ErrAccountExists = errors.New("account already exists")
)

// Account is the per-user balance record. Exactly one exists per user id and
// its token balance is mutated only through Store debit/credit calls.
type Account struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Tokens    int64     `json:"tokens"`
	Plan      Plan      `json:"plan"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance is the read-model served to API callers.
type Balance struct {
	Tokens int64 `json:"tokens"`
	Plan   Plan  `json:"plan"`
}

// Entry is a single journal record written alongside every balance mutation.
type Entry struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Kind         EntryKind `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Memo         string    `json:"memo"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the single authority over account balances.
//
// Debit and Credit apply their full delta or nothing: the balance update and
// the journal entry commit in one transaction, and a debit only succeeds when
// the stored balance covers the amount at commit time. Implementations must
// hold that under concurrent callers from multiple processes, so the check is
// pushed into the datastore rather than any in-process lock.
type Store interface {
	// EnsureAccount returns the account for userID, creating it with the
	// given plan and starting balance when absent.
	EnsureAccount(ctx context.Context, userID, email string, plan Plan, initialTokens int64) (*Account, error)
	// Find returns the account or ErrAccountNotFound.
	Find(ctx context.Context, userID string) (*Account, error)
	// FindByEmail resolves the account created for a sign-in email.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// Balance returns the current tokens and plan without side effects.
	Balance(ctx context.Context, userID string) (Balance, error)
	// Debit atomically subtracts amount and returns the new balance.
	// Fails with ErrInsufficientBalance leaving the balance unchanged when
	// the account cannot cover the amount.
	Debit(ctx context.Context, userID string, amount int64, memo string) (int64, error)
	// Credit atomically adds amount and returns the new balance.
	Credit(ctx context.Context, userID string, amount int64, memo string) (int64, error)
	// History returns the most recent journal entries, newest first.
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
	// SetPlan updates the subscription tier (billing collaborator path).
	SetPlan(ctx context.Context, userID string, plan Plan) error
	// Deactivate flags the account inactive; the row is never removed.
	Deactivate(ctx context.Context, userID string) error
	Close() error
}

// ValidPlan reports whether p is a known tier.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}
