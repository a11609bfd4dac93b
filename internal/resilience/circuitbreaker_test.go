package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker("test",
		WithMaxFailures(3),
		WithResetTimeout(10*time.Second),
		WithHalfOpenMax(2),
		WithBreakerClock(clock.Now),
	)
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v, want errBoom", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %s, want open", got)
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker ran fn, err = %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed after interleaved success", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	clock.Advance(11 * time.Second)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %s, want half-open after reset timeout", got)
	}

	// Two successful probes close the breaker.
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe 1 failed: %v", err)
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe 2 failed: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %s, want closed after probes", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	clock.Advance(11 * time.Second)
	_ = cb.Execute(fail)

	if got := cb.State(); got != StateOpen {
		t.Errorf("State() = %s, want open after failed probe", got)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %s after Reset, want closed", got)
	}
	if err := cb.Execute(succeed); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}
