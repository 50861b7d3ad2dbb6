// Package health aggregates component checks for the liveness and readiness
// endpoints of the search service. The service is ready only once an index is
// loaded; an optional component that fails degrades it without taking it
// out of rotation.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

func (s Status) rank() int {
	switch s {
	case StatusDown:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// Check reports the state of one component.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	check    Check
	optional bool
	timeout  time.Duration
}

// RegisterOption adjusts how a check's result counts toward the report.
type RegisterOption func(*registration)

// Optional marks a component the service can run without. When it is down
// the overall status is degraded rather than down.
func Optional() RegisterOption {
	return func(r *registration) { r.optional = true }
}

// WithTimeout bounds one check. A check that overruns is reported down.
func WithTimeout(d time.Duration) RegisterOption {
	return func(r *registration) { r.timeout = d }
}

// Checker runs the registered checks concurrently.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]registration),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check, opts ...RegisterOption) {
	reg := registration{check: check, timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&reg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = reg
}

// Run executes every check and reports the worst status seen.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	regs := make([]registration, 0, len(c.checks))
	for name, reg := range c.checks {
		names = append(names, name)
		regs = append(regs, reg)
	}
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Go(func() {
			results[i] = checkOne(ctx, reg)
		})
	}
	wg.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(regs)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, name := range names {
		result := results[i]
		report.Components[name] = result
		effective := result.Status
		if result.Optional && effective == StatusDown {
			effective = StatusDegraded
		}
		if effective.rank() > report.Status.rank() {
			report.Status = effective
		}
	}
	return report
}

func checkOne(ctx context.Context, reg registration) (result ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", p)}
		}
		if ctx.Err() != nil && result.Status == StatusUp {
			result = ComponentHealth{Status: StatusDown, Message: "check timed out"}
		}
		result.Optional = reg.optional
		result.Latency = time.Since(start).Round(time.Millisecond).String()
	}()
	return reg.check(ctx)
}

// Unhealthy lists the components whose status is not up, sorted.
func (r Report) Unhealthy() []string {
	var names []string
	for name, comp := range r.Components {
		if comp.Status != StatusUp {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when the overall status is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
			c.logger.Warn("not ready", "components", report.Unhealthy())
		}
		if err := writeJSON(w, code, report); err != nil {
			c.logger.Error("failed to write readiness report", "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
