package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a single health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component is a named system component with its latest check result.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"`
	CheckResult
}

// Summary aggregates component results into an overall status.
type Summary struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
	Timestamp  time.Time   `json:"timestamp"`
}

// CheckFunc probes one dependency; a nil return means healthy.
type CheckFunc func(ctx context.Context) error

type registeredCheck struct {
	name string
	typ  string
	fn   CheckFunc
}

// Checker runs registered dependency probes in parallel.
type Checker struct {
	mu         sync.Mutex
	checks     []registeredCheck
	timeout    time.Duration
	maxLatency time.Duration
}

// New creates a Checker. Zero values select defaults.
func New(timeout, maxLatency time.Duration) *Checker {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	if maxLatency == 0 {
		maxLatency = 100 * time.Millisecond
	}
	return &Checker{timeout: timeout, maxLatency: maxLatency}
}

// Register adds a named probe. typ categorizes the dependency
// (database, http, ...).
func (c *Checker) Register(name, typ string, fn CheckFunc) {
	c.mu.Lock()
	c.checks = append(c.checks, registeredCheck{name: name, typ: typ, fn: fn})
	c.mu.Unlock()
}

// Check runs all probes and returns the aggregate.
func (c *Checker) Check(ctx context.Context) Summary {
	c.mu.Lock()
	checks := make([]registeredCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.Unlock()

	var wg sync.WaitGroup
	results := make(chan Component, len(checks))
	for _, check := range checks {
		wg.Add(1)
		go func(check registeredCheck) {
			defer wg.Done()
			results <- c.run(ctx, check)
		}(check)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, len(checks))
	for comp := range results {
		components = append(components, comp)
	}

	return Summary{
		Status:     overall(components),
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
}

func (c *Checker) run(ctx context.Context, check registeredCheck) Component {
	comp := Component{
		Name: check.name,
		Type: check.typ,
		CheckResult: CheckResult{
			Timestamp: time.Now().UTC(),
		},
	}

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.fn(checkCtx)
	comp.Latency = time.Since(start)

	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "unreachable"
		return comp
	}
	if comp.Latency > c.maxLatency {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("high latency: %v", comp.Latency)
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = "ok"
	return comp
}

func overall(components []Component) Status {
	status := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
