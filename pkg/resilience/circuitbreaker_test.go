package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time, *[]State) {
	var transitions []State
	cb := NewCircuitBreaker("serp", CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		OnStateChange: func(_ string, s State) {
			transitions = append(transitions, s)
		},
	})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now, &transitions
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb, _, transitions := newTestBreaker(2, time.Minute)
	fail := func() error { return errBoom }

	if err := cb.Execute(fail); !errors.Is(err, errBoom) {
		t.Fatalf("first call error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after one failure = %v", cb.State())
	}
	cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state after threshold = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not run while the circuit is open")
	}
	if len(*transitions) != 1 || (*transitions)[0] != StateOpen {
		t.Errorf("transitions = %v", *transitions)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, now, transitions := newTestBreaker(1, time.Minute)
	cb.Execute(func() error { return errBoom })

	*now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful trial = %v", cb.State())
	}
	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(*transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", *transitions, want)
	}
	for i := range want {
		if (*transitions)[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, (*transitions)[i], want[i])
		}
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, now, _ := newTestBreaker(1, time.Minute)
	cb.Execute(func() error { return errBoom })
	*now = now.Add(2 * time.Minute)
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Errorf("state after failed trial = %v, want open", cb.State())
	}
}

func TestStateString(t *testing.T) {
	if StateHalfOpen.String() != "half-open" || State(9).String() != "unknown" {
		t.Error("unexpected State.String output")
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _, _ := newTestBreaker(1, time.Minute)
	cb.Execute(func() error { return fmt.Errorf("search: %w", context.Canceled) })
	if cb.State() != StateClosed {
		t.Errorf("state after cancelled call = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerIgnoresStaleResults(t *testing.T) {
	cb, _, _ := newTestBreaker(1, time.Minute)

	started, release, done := make(chan struct{}), make(chan struct{}), make(chan struct{})
	go func() {
		defer close(done)
		cb.Execute(func() error { close(started); <-release; return nil })
	}()
	<-started
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	close(release)
	<-done
	if cb.State() != StateOpen {
		t.Errorf("stale success closed the circuit: %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenTrialLimit(t *testing.T) {
	cb, now, _ := newTestBreaker(1, time.Minute)
	cb.Execute(func() error { return errBoom })
	*now = now.Add(2 * time.Minute)

	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error { close(started); <-release; return nil })
	}()
	<-started
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial error = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("trial error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}
