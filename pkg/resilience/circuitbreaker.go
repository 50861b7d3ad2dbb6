// Package resilience guards calls to optional backing services (the Redis
// query cache, the Kafka brokers) and bounds query execution time.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	// OnStateChange is called, outside the breaker's lock, after every
	// transition.
	OnStateChange func(name string, to State)
}

// Breaker trips open after FailureThreshold consecutive failures, rejects
// calls for Cooldown, then lets a single trial call through.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	logger   *slog.Logger
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.state = StateHalfOpen
		b.trialing = true
		b.mu.Unlock()
		b.logger.Info("circuit half-open, trialing")
		b.notify(StateHalfOpen)
		return nil
	case StateHalfOpen:
		if b.trialing {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, b.name)
		}
		b.trialing = true
	}
	b.mu.Unlock()
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	prev := b.state
	b.trialing = false
	if err == nil {
		b.failures = 0
		b.state = StateClosed
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	}
	next := b.state
	failures := b.failures
	b.mu.Unlock()

	if prev == next {
		return
	}
	if next == StateOpen {
		b.logger.Warn("circuit opened", "consecutive_failures", failures, "error", err)
	} else {
		b.logger.Info("circuit closed")
	}
	b.notify(next)
}

func (b *Breaker) notify(to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
