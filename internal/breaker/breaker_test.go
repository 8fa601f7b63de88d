package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(t.Name(), Config{
		Window:           10,
		FailureThreshold: 0.5,
		Cooldown:         10 * time.Second,
		ProbeSuccesses:   3,
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func callN(b *Breaker, failures, successes int) {
	for i := 0; i < successes; i++ {
		b.Success()
	}
	for i := 0; i < failures; i++ {
		b.Failure()
	}
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	// 6 failures in a 10-call window crosses the 50% threshold.
	callN(b, 6, 4)

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow while open = %v, want ErrOpen", err)
	}
}

func TestBreakerTripsWhenSuccessFillsWindow(t *testing.T) {
	b, _ := newTestBreaker(t)

	// Failures first: the tenth outcome is a success, but the full
	// window still holds a 0.6 failure ratio and must trip.
	for i := 0; i < 6; i++ {
		b.Failure()
	}
	for i := 0; i < 4; i++ {
		b.Success()
	}

	if b.State() != StateOpen {
		t.Fatalf("state after 6 failures in 10 calls = %v, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow while open = %v, want ErrOpen", err)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	callN(b, 4, 6)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBreakerDoesNotTripOnPartialWindow(t *testing.T) {
	b, _ := newTestBreaker(t)

	// All failures, but fewer outcomes than the window holds.
	callN(b, 5, 0)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed before window fills", b.State())
	}
}

func TestBreakerHalfOpenClosesAfterProbeRun(t *testing.T) {
	b, now := newTestBreaker(t)
	callN(b, 6, 4)

	*now = now.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half_open", b.State())
	}

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d not allowed: %v", i, err)
		}
		b.Success()
	}

	if b.State() != StateClosed {
		t.Fatalf("state after probe successes = %v, want closed", b.State())
	}
	// Counters reset: another single failure must not trip it.
	b.Failure()
	if b.State() != StateClosed {
		t.Fatalf("state after one post-close failure = %v, want closed", b.State())
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t)
	callN(b, 6, 4)

	*now = now.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe not allowed: %v", err)
	}
	b.Failure()

	if b.State() != StateOpen {
		t.Fatalf("state after probe failure = %v, want open", b.State())
	}

	// Cooldown restarts from the probe failure.
	*now = now.Add(5 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow before fresh cooldown elapses = %v, want ErrOpen", err)
	}
	*now = now.Add(6 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after fresh cooldown = %v, want nil", err)
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b, now := newTestBreaker(t)
	callN(b, 6, 4)
	*now = now.Add(11 * time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d not allowed: %v", i, err)
		}
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("probe beyond budget = %v, want ErrOpen", err)
	}
}

func TestDoShortCircuitsToFallback(t *testing.T) {
	b, _ := newTestBreaker(t)
	callN(b, 6, 4)

	called := false
	fallbackCause := error(nil)
	err := b.Do(context.Background(),
		func(ctx context.Context) error {
			called = true
			return nil
		},
		func(ctx context.Context, cause error) error {
			fallbackCause = cause
			return nil
		})
	if err != nil {
		t.Fatalf("Do with fallback = %v", err)
	}
	if called {
		t.Error("call executed while breaker open")
	}
	if !errors.Is(fallbackCause, ErrOpen) {
		t.Errorf("fallback cause = %v, want ErrOpen", fallbackCause)
	}
}

func TestDoRecordsOutcomes(t *testing.T) {
	b, _ := newTestBreaker(t)
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_ = b.Do(context.Background(), func(ctx context.Context) error { return nil }, nil)
	}
	for i := 0; i < 6; i++ {
		if err := b.Do(context.Background(), func(ctx context.Context) error { return boom }, nil); !errors.Is(err, boom) {
			t.Fatalf("Do = %v, want boom", err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after 6/10 failures via Do", b.State())
	}
}

func TestRegistryReturnsSameBreakerPerTarget(t *testing.T) {
	r := NewRegistry(Config{Window: 10, FailureThreshold: 0.5, Cooldown: time.Second, ProbeSuccesses: 1})

	a := r.Get("booking-service")
	b := r.Get("booking-service")
	c := r.Get("approval-service")

	if a != b {
		t.Error("expected same breaker instance for same target")
	}
	if a == c {
		t.Error("expected distinct breakers for distinct targets")
	}
}
