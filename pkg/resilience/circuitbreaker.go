// Package resilience guards calls to the paid search API with a circuit
// breaker and a deadline. Failed calls are never retried; a failure is
// reported once and the caller degrades.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open or its half-open trials are exhausted.
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

type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before admitting a
	// trial. Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests bounds concurrent trials. Default 1.
	HalfOpenMaxRequests int
	// IsFailure classifies a call result. The default counts every non-nil
	// error except context.Canceled, so callers hanging up do not trip the
	// circuit.
	IsFailure func(err error) bool
	// OnStateChange, if set, is called with the new state while the breaker
	// lock is held; it must not call back into the breaker.
	OnStateChange func(name string, state State)
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker counts consecutive failures per generation. Every state
// change starts a new generation, and results reported for an older
// generation are ignored, so a slow call that started before the circuit
// opened cannot close it again.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	trials     int
	openedAt   time.Time
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit admits it and records the outcome. The
// error of fn is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	gen, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(gen, cb.cfg.IsFailure(err))
	return err
}

// State returns the current state. An open circuit whose reset timeout has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return cb.state
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		return 0, fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait)
	case StateHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenMaxRequests {
			return 0, fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, cb.name)
		}
		cb.trials++
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(gen uint64, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if gen != cb.generation {
		return
	}
	switch cb.state {
	case StateHalfOpen:
		if failed {
			cb.transition(StateOpen)
			cb.logger.Warn("circuit re-opened, trial failed")
			return
		}
		cb.transition(StateClosed)
		cb.logger.Info("circuit closed, trial succeeded")
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures)
			cb.transition(StateOpen)
		}
	}
}

// expire moves an open circuit to half-open once the reset timeout passes.
func (cb *CircuitBreaker) expire() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.transition(StateHalfOpen)
		cb.logger.Info("circuit half-open, admitting trial")
	}
}

func (cb *CircuitBreaker) transition(s State) {
	cb.state = s
	cb.generation++
	cb.failures = 0
	cb.trials = 0
	if s == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, s)
	}
}
