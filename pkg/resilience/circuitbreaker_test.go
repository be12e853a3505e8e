package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/fn"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Call(context.Background(), failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Call(context.Background(), succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})

	b.Call(context.Background(), failing)
	b.Call(context.Background(), succeeding)
	b.Call(context.Background(), failing)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after interleaved success", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.Call(context.Background(), failing)
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	clock = clock.Add(11 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	if err := b.Call(context.Background(), succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.Call(context.Background(), failing)
	clock = clock.Add(11 * time.Second)

	if err := b.Call(context.Background(), failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe call: got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreakerStage(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	stage := BreakerStage(b, fn.Stage[int, int](func(_ context.Context, n int) fn.Result[int] {
		return fn.Errf[int]("stage failed")
	}))

	stage(context.Background(), 1)

	_, err := stage(context.Background(), 2).Unwrap()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
}
