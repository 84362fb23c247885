// Package plan holds the subscription tier catalog. Tiers control token
// grants and generation batch limits; assignment of a tier to an account is
// owned by the billing side.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamoray/tamoray-api/internal/ledger"
)

// Tier describes the entitlements of one subscription plan.
type Tier struct {
	Name         string `yaml:"name"`
	SignupGrant  int64  `yaml:"signup_grant"`
	MonthlyGrant int64  `yaml:"monthly_grant"`
	MaxBatch     int    `yaml:"max_batch"`
}

type catalogFile struct {
	Plans []Tier `yaml:"plans"`
}

// Catalog resolves plan names to their entitlements.
type Catalog struct {
	tiers map[ledger.Plan]Tier
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	c := &Catalog{tiers: map[ledger.Plan]Tier{}}
	for _, t := range []Tier{
		{Name: string(ledger.PlanFree), SignupGrant: 100, MonthlyGrant: 100, MaxBatch: 2},
		{Name: string(ledger.PlanPro), SignupGrant: 500, MonthlyGrant: 2000, MaxBatch: 4},
		{Name: string(ledger.PlanEnterprise), SignupGrant: 2000, MonthlyGrant: 10000, MaxBatch: 10},
	} {
		c.tiers[ledger.Plan(t.Name)] = t
	}
	return c
}

// Load reads a YAML catalog file. Every tier must name a known plan and carry
// non-negative grants; a file that fails validation is rejected outright.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog %s defines no plans", path)
	}

	c := &Catalog{tiers: make(map[ledger.Plan]Tier, len(file.Plans))}
	for _, t := range file.Plans {
		name := ledger.Plan(t.Name)
		if !ledger.ValidPlan(name) {
			return nil, fmt.Errorf("plan catalog: unknown plan %q", t.Name)
		}
		if t.SignupGrant < 0 || t.MonthlyGrant < 0 {
			return nil, fmt.Errorf("plan catalog: negative grant for plan %q", t.Name)
		}
		if t.MaxBatch <= 0 {
			return nil, fmt.Errorf("plan catalog: plan %q needs max_batch >= 1", t.Name)
		}
		if _, dup := c.tiers[name]; dup {
			return nil, fmt.Errorf("plan catalog: plan %q defined twice", t.Name)
		}
		c.tiers[name] = t
	}
	if _, ok := c.tiers[ledger.PlanFree]; !ok {
		return nil, fmt.Errorf("plan catalog: free plan is required")
	}
	return c, nil
}

// Tier returns the entitlements for the named plan.
func (c *Catalog) Tier(name ledger.Plan) (Tier, bool) {
	t, ok := c.tiers[name]
	return t, ok
}

// SignupGrant returns the starting balance for new accounts on the free plan.
func (c *Catalog) SignupGrant() int64 {
	return c.tiers[ledger.PlanFree].SignupGrant
}
