package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	free, ok := c.Tier(ledger.PlanFree)
	if !ok {
		t.Fatalf("default catalog missing free plan")
	}
	if free.SignupGrant != 100 || free.MaxBatch != 2 {
		t.Fatalf("unexpected free tier %+v", free)
	}
	if _, ok := c.Tier(ledger.PlanEnterprise); !ok {
		t.Fatalf("default catalog missing enterprise plan")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
plans:
  - name: free
    signup_grant: 50
    monthly_grant: 200
    max_batch: 1
  - name: pro
    signup_grant: 1000
    monthly_grant: 5000
    max_batch: 8
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pro, ok := c.Tier(ledger.PlanPro)
	if !ok {
		t.Fatalf("pro plan missing")
	}
	if pro.MaxBatch != 8 || pro.SignupGrant != 1000 {
		t.Fatalf("unexpected pro tier %+v", pro)
	}
	if c.SignupGrant() != 50 {
		t.Fatalf("expected signup grant 50, got %d", c.SignupGrant())
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"unknown plan": `
plans:
  - name: gold
    max_batch: 1
`,
		"missing free": `
plans:
  - name: pro
    max_batch: 1
`,
		"negative grant": `
plans:
  - name: free
    signup_grant: -1
    max_batch: 1
`,
		"zero batch": `
plans:
  - name: free
    max_batch: 0
`,
		"duplicate": `
plans:
  - name: free
    max_batch: 1
  - name: free
    max_batch: 2
`,
	}
	for name, content := range cases {
		if _, err := Load(writeCatalog(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
