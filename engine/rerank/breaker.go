package rerank

import (
	"context"

	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/resilience"
)

// BreakerEncoder wraps a CrossEncoder with a circuit breaker so a flapping
// backend trips fast instead of timing out every request. A tripped breaker
// surfaces as a score error, which the Reranker turns into degraded mode.
type BreakerEncoder struct {
	inner   CrossEncoder
	breaker *resilience.Breaker
}

// WithBreaker decorates encoder with the given breaker.
func WithBreaker(encoder CrossEncoder, breaker *resilience.Breaker) *BreakerEncoder {
	return &BreakerEncoder{inner: encoder, breaker: breaker}
}

// Score implements CrossEncoder.
func (b *BreakerEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	var scores []float64
	err := b.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		scores, err = b.inner.Score(ctx, query, passages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}
