package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitCreatesConfigFiles(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{
		Root:       tmp,
		AdminEmail: "ops@tamoray.test",
		LedgerPath: "/var/lib/tamoray/ledger.db",
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	settingBytes, err := os.ReadFile(filepath.Join(tmp, "config", "setting.ini"))
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	content := string(settingBytes)
	if !strings.Contains(content, "environment=dev") {
		t.Fatalf("missing environment: %s", content)
	}
	if !strings.Contains(content, "admin_email=ops@tamoray.test") {
		t.Fatalf("missing admin email: %s", content)
	}
	if !strings.Contains(content, "auth_secret=") {
		t.Fatalf("missing generated auth secret: %s", content)
	}

	envBytes, err := os.ReadFile(filepath.Join(tmp, "config", "dev", "tamoray.ini"))
	if err != nil {
		t.Fatalf("read env config: %v", err)
	}
	envContent := string(envBytes)
	if !strings.Contains(envContent, "ledger_path=/var/lib/tamoray/ledger.db") {
		t.Fatalf("missing ledger path: %s", envContent)
	}
	if !strings.Contains(envContent, "thumbnail_cost=5") {
		t.Fatalf("missing default thumbnail cost: %s", envContent)
	}
}

func TestInitRespectsForce(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{Root: tmp, AdminEmail: "a@b.com"}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(opts); err == nil {
		t.Fatalf("expected error when files exist")
	}
	opts.Force = true
	if err := Init(opts); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(InitOptions{AdminEmail: "invalid"}); err == nil {
		t.Fatalf("expected invalid email error")
	}
	if err := Validate(InitOptions{AdminEmail: "valid@tamoray.test"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
