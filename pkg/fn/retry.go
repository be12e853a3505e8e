package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// backoff returns the sleep duration for the given attempt, doubling from
// InitialWait and capped at MaxWait. Jitter scales by [0.5, 1.5).
func (o RetryOpts) backoff(attempt int) time.Duration {
	wait := o.InitialWait << attempt
	if wait > o.MaxWait || wait <= 0 {
		wait = o.MaxWait
	}
	if o.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		if wait > o.MaxWait {
			wait = o.MaxWait
		}
	}
	return wait
}

// Retry runs f up to MaxAttempts times with exponential backoff between
// failures. The last failure is returned when attempts are exhausted;
// context cancellation wins over further attempts.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result Result[T]
	for attempt := 0; ; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == attempts-1 {
			return result
		}

		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(opts.backoff(attempt)):
		}
	}
}

// RetryStage wraps a Stage with retry logic.
func RetryStage[In, Out any](opts RetryOpts, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return Retry(ctx, opts, func(ctx context.Context) Result[Out] {
			return stage(ctx, in)
		})
	}
}
