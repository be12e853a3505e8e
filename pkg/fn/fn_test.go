package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResultUnwrap(t *testing.T) {
	v, err := Ok(42).Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("Ok: got (%d, %v)", v, err)
	}

	wantErr := errors.New("boom")
	_, err = Err[int](wantErr).Unwrap()
	if !errors.Is(err, wantErr) {
		t.Fatalf("Err: got %v", err)
	}

	if Err[int](wantErr).UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr should return the fallback on error")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("nil error should be Ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("non-nil error should be Err")
	}
}

func TestThenShortCircuits(t *testing.T) {
	calls := 0
	first := Stage[int, int](func(_ context.Context, n int) Result[int] {
		return Errf[int]("first failed")
	})
	second := Stage[int, string](func(_ context.Context, n int) Result[string] {
		calls++
		return Ok("never")
	})

	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() {
		t.Fatal("expected error from first stage")
	}
	if calls != 0 {
		t.Fatalf("second stage ran %d times after first failed", calls)
	}
}

func TestThenComposes(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	inc := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n + 1) })

	v, err := Then(double, inc)(context.Background(), 5).Unwrap()
	if err != nil || v != 11 {
		t.Fatalf("got (%d, %v), want (11, nil)", v, err)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("transient")
		}
		return Ok("done")
	})
	v, err := r.Unwrap()
	if err != nil || v != "done" {
		t.Fatalf("got (%q, %v)", v, err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		attempts++
		return Errf[int]("always")
	})
	if r.IsOk() {
		t.Fatal("expected failure after exhausting retries")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("transient")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	out := ParMap(in, 2, func(n int) int { return n * n })
	want := []int{1, 4, 9, 16, 25}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestBatchStageCollectsFirstError(t *testing.T) {
	stage := Stage[int, int](func(_ context.Context, n int) Result[int] {
		if n == 3 {
			return Errf[int]("bad item")
		}
		return Ok(n)
	})
	r := BatchStage(2, stage)(context.Background(), []int{1, 2, 3, 4})
	if r.IsOk() {
		t.Fatal("expected error from failing item")
	}
}

func TestChunk(t *testing.T) {
	got := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 {
		t.Fatalf("unexpected chunking: %v", got)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("n <= 0 should return nil")
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUniqueBy(t *testing.T) {
	type item struct{ key, val string }
	got := UniqueBy([]item{{"a", "1"}, {"a", "2"}, {"b", "3"}}, func(i item) string { return i.key })
	if len(got) != 2 || got[0].val != "1" {
		t.Fatalf("UniqueBy should keep the first item per key: %v", got)
	}
}
