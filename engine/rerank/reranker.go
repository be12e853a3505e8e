// Package rerank fuses cross-encoder relevance with vector similarity to
// re-order retrieval candidates. A failing cross-encoder never fails the
// request: the reranker degrades to similarity-only ordering and reports it.
package rerank

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// CrossEncoder scores (query, passage) pairs jointly. Higher is more
// relevant; scores are not normalized probabilities in general.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Preset is a named fusion weighting. Entry points carry different defaults;
// naming them keeps the two call paths from silently drifting apart.
type Preset struct {
	SimilarityWeight float64
	CrossScoreWeight float64
}

var (
	// PresetBalanced favors the original vector similarity. Default for Rerank.
	PresetBalanced = Preset{SimilarityWeight: 0.6, CrossScoreWeight: 0.4}
	// PresetCrossHeavy trusts the cross-encoder. Default for SearchWithRerank.
	PresetCrossHeavy = Preset{SimilarityWeight: 0.3, CrossScoreWeight: 0.7}
)

// Options configures the reranker.
type Options struct {
	// Timeout bounds each cross-encoder call.
	Timeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second}
}

// Reranker scores and re-orders candidates against a query.
type Reranker struct {
	encoder CrossEncoder
	opts    Options
	logger  *slog.Logger
}

// New creates a Reranker.
func New(encoder CrossEncoder, opts Options, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Reranker{encoder: encoder, opts: opts, logger: logger}
}

// Rerank scores candidates with the cross-encoder, fuses using
// PresetBalanced, and returns the top topK. The second return reports
// degraded mode: on cross-encoder failure the candidates come back ordered
// by their original similarity instead, and no error is surfaced.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.ScoredChunk, topK int) ([]domain.ScoredChunk, bool) {
	return r.rerank(ctx, query, candidates, topK, PresetBalanced)
}

// SearchWithRerank is the agent-facing entry point: it over-fetches nothing
// itself but expects candidates to exceed nResults. When they don't, the
// cross-encoder is skipped entirely and the candidates are returned as-is,
// since there is nothing to select among. Fusion defaults to
// PresetCrossHeavy; pass a non-zero preset to override.
func (r *Reranker) SearchWithRerank(ctx context.Context, query string, candidates []domain.ScoredChunk, nResults int, preset Preset) ([]domain.ScoredChunk, bool) {
	if len(candidates) <= nResults {
		out := make([]domain.ScoredChunk, len(candidates))
		copy(out, candidates)
		return out, false
	}
	if preset == (Preset{}) {
		preset = PresetCrossHeavy
	}
	return r.rerank(ctx, query, candidates, nResults, preset)
}

func (r *Reranker) rerank(ctx context.Context, query string, candidates []domain.ScoredChunk, topK int, preset Preset) ([]domain.ScoredChunk, bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		rerr := &domain.RerankError{Err: err}
		r.logger.Warn("rerank failed, falling back to similarity order", "err", rerr)
		return similarityFallback(candidates, topK), true
	}

	fused := make([]domain.ScoredChunk, len(candidates))
	for i, c := range candidates {
		c.CrossScore = scores[i]
		c.FinalScore = preset.SimilarityWeight*c.Similarity + preset.CrossScoreWeight*c.CrossScore
		fused[i] = c
	}
	// Stable sort: ties keep the incoming (similarity) order.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FinalScore > fused[j].FinalScore
	})
	return fused[:topK], false
}

func (r *Reranker) score(ctx context.Context, query string, candidates []domain.ScoredChunk) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}
	return r.encoder.Score(ctx, query, passages)
}

// similarityFallback orders candidates by their existing similarity score
// and truncates.
func similarityFallback(candidates []domain.ScoredChunk, topK int) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}
