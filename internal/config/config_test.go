package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestLoadMergesEnvironmentFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = test\nlog_level = info\nauth_secret = base-secret\n")
	writeConfig(t, root, "config/test/tamoray.ini", "log_level = debug\nhttp_address = :9090\nledger_path = /tmp/ledger.db\nhistory_path = /tmp/history.db\n")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "test" {
		t.Fatalf("environment = %q, want test", cfg.Environment)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q, want env file to win", cfg.LogLevel)
	}
	if cfg.HTTPAddress != ":9090" {
		t.Fatalf("http_address = %q, want :9090", cfg.HTTPAddress)
	}
	if cfg.AuthSecret != "base-secret" {
		t.Fatalf("auth_secret = %q, want inherited default", cfg.AuthSecret)
	}
	if cfg.ThumbnailCost != 5 {
		t.Fatalf("thumbnail_cost = %d, want default 5", cfg.ThumbnailCost)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\nauth_secret = file-secret\n")
	t.Setenv("TAMORAY_AUTH_SECRET", "env-secret")
	t.Setenv("TAMORAY_THUMBNAIL_COST", "7")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "env-secret" {
		t.Fatalf("auth_secret = %q, want env override", cfg.AuthSecret)
	}
	if cfg.ThumbnailCost != 7 {
		t.Fatalf("thumbnail_cost = %d, want 7", cfg.ThumbnailCost)
	}
}

func TestLoadRequiresAuthSecret(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\n")
	if _, err := Load(root); err == nil {
		t.Fatal("load succeeded without auth_secret, want error")
	}
}

func TestLoadAuthDisabledSkipsSecret(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\nauth_disabled = true\n")
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.AuthDisabled {
		t.Fatal("auth_disabled not set")
	}
}

func TestLoadRejectsBadThumbnailCost(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "config/setting.ini", "environment = dev\nauth_disabled = true\nthumbnail_cost = zero\n")
	if _, err := Load(root); err == nil {
		t.Fatal("load accepted non-numeric thumbnail_cost")
	}
}

func TestIsPostgres(t *testing.T) {
	if !IsPostgres("postgres://user:pw@localhost/tamoray") {
		t.Fatal("postgres:// DSN not detected")
	}
	if !IsPostgres("postgresql://user:pw@localhost/tamoray") {
		t.Fatal("postgresql:// DSN not detected")
	}
	if IsPostgres("/var/lib/tamoray/ledger.db") {
		t.Fatal("file path misdetected as DSN")
	}
}
