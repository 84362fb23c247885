package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 100)
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if first.Tokens != 100 || first.Plan != ledger.PlanFree || first.Status != ledger.StatusActive {
		t.Fatalf("unexpected account %+v", first)
	}

	// Second call must return the same account, not reset the grant.
	if _, err := store.Debit(ctx, "u1", 30, "spend"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	again, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 100)
	if err != nil {
		t.Fatalf("EnsureAccount again: %v", err)
	}
	if again.Tokens != 70 {
		t.Fatalf("expected balance 70 after re-ensure, got %d", again.Tokens)
	}

	history, err := store.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries (grant + debit), got %d", len(history))
	}
	if history[1].Memo != "signup grant" || history[1].Kind != ledger.KindCredit {
		t.Fatalf("unexpected oldest entry %+v", history[1])
	}
}

func TestBalanceReadIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 100); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	for i := 0; i < 3; i++ {
		balance, err := store.Balance(ctx, "u1")
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if balance.Tokens != 100 || balance.Plan != ledger.PlanFree {
			t.Fatalf("unexpected balance %+v", balance)
		}
	}
}

func TestBalanceUnknownUser(t *testing.T) {
	store := newStore(t)
	_, err := store.Balance(context.Background(), "u2")
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDebitAndCredit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanPro, 100); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	balance, err := store.Debit(ctx, "u1", 40, "thumbnail batch")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if balance != 60 {
		t.Fatalf("expected 60 after debit, got %d", balance)
	}

	balance, err = store.Credit(ctx, "u1", 15, "refund")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 75 {
		t.Fatalf("expected 75 after credit, got %d", balance)
	}

	history, err := store.History(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Kind != ledger.KindCredit || history[0].BalanceAfter != 75 {
		t.Fatalf("unexpected newest entry %+v", history[0])
	}
	if history[1].Kind != ledger.KindDebit || history[1].BalanceAfter != 60 {
		t.Fatalf("unexpected entry %+v", history[1])
	}
}

func TestDebitInsufficientLeavesBalance(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 100); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	_, err := store.Debit(ctx, "u1", 150, "too much")
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	balance, err := store.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Tokens != 100 {
		t.Fatalf("balance changed by failed debit: %d", balance.Tokens)
	}

	history, err := store.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("failed debit must not journal, got %d entries", len(history))
	}
}

func TestDebitValidation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 10); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	for _, amount := range []int64{0, -5} {
		if _, err := store.Debit(ctx, "u1", amount, ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := store.Credit(ctx, "u1", amount, ""); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}

	if _, err := store.Debit(ctx, "u2", 1, ""); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := store.Credit(ctx, "u2", 1, ""); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 10); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.Debit(ctx, "u1", 6, "race")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledger.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one debit to win, got %d", succeeded)
	}

	balance, err := store.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance.Tokens != 4 {
		t.Fatalf("expected 4 tokens after one winning debit, got %d", balance.Tokens)
	}
}

func TestDeactivateBlocksDebit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 50); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if err := store.Deactivate(ctx, "u1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	if _, err := store.Debit(ctx, "u1", 10, ""); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for inactive account, got %v", err)
	}
	// Credits still land so the billing side can settle.
	if _, err := store.Credit(ctx, "u1", 10, "top-up"); err != nil {
		t.Fatalf("Credit on inactive account: %v", err)
	}
}

func TestSetPlan(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if _, err := store.EnsureAccount(ctx, "u1", "u1@example.com", ledger.PlanFree, 0); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	if err := store.SetPlan(ctx, "u1", ledger.PlanEnterprise); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	account, err := store.Find(ctx, "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if account.Plan != ledger.PlanEnterprise {
		t.Fatalf("expected enterprise plan, got %s", account.Plan)
	}
	if err := store.SetPlan(ctx, "u1", ledger.Plan("gold")); err == nil {
		t.Fatalf("expected error for unknown plan")
	}
}
