package auth

import (
	"testing"
	"time"
)

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestChallengeLifecycle(t *testing.T) {
	mgr, err := NewManager("secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	id, code, expires, err := mgr.CreateChallenge("user@example.com")
	if err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}
	if expires.Before(time.Now()) {
		t.Fatalf("expires in past")
	}
	email, err := mgr.VerifyChallenge(id, code)
	if err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("unexpected email %s", email)
	}
	if _, err := mgr.VerifyChallenge(id, code); err == nil {
		t.Fatalf("expected error after challenge consumed")
	}
}

func TestTokenCarriesUserID(t *testing.T) {
	mgr, err := NewManager("secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := mgr.IssueToken("5f64c6a1-7c11-4a38-9134-0f4ffb8f0f26", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	userID, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != "5f64c6a1-7c11-4a38-9134-0f4ffb8f0f26" {
		t.Fatalf("unexpected user id %s", userID)
	}
}

func TestExpiredToken(t *testing.T) {
	mgr, err := NewManager("secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := mgr.IssueToken("u1", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := mgr.ValidateToken(token); err == nil {
		t.Fatalf("expected expiration error")
	}
}

func TestTamperedToken(t *testing.T) {
	mgr, err := NewManager("secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	token, err := mgr.IssueToken("u1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	other, err := NewManager("other-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatalf("expected signature mismatch across secrets")
	}
}
