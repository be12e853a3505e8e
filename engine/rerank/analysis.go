package rerank

import (
	"context"
	"fmt"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// CandidateAnalysis compares a candidate's original and fused scores.
type CandidateAnalysis struct {
	ChunkID       string  `json:"chunk_id"`
	OriginalScore float64 `json:"original_score"`
	RerankScore   float64 `json:"rerank_score"`
	FinalScore    float64 `json:"final_score"`
	Improvement   float64 `json:"improvement"`
}

// Analysis aggregates per-candidate score deltas for a fixed candidate set.
// Used for offline evaluation of reranker impact, not on the request path.
type Analysis struct {
	Candidates     []CandidateAnalysis `json:"candidates"`
	AvgImprovement float64             `json:"avg_improvement"`
	MinImprovement float64             `json:"min_improvement"`
	MaxImprovement float64             `json:"max_improvement"`
}

// Analyze recomputes original vs reranked scores for the candidate set using
// PresetBalanced. Unlike the request-path entry points it surfaces errors.
func (r *Reranker) Analyze(ctx context.Context, query string, candidates []domain.ScoredChunk) (*Analysis, error) {
	if len(candidates) == 0 {
		return &Analysis{}, nil
	}

	scores, err := r.score(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank: analyze: %w", err)
	}

	out := &Analysis{Candidates: make([]CandidateAnalysis, len(candidates))}
	for i, c := range candidates {
		final := PresetBalanced.SimilarityWeight*c.Similarity + PresetBalanced.CrossScoreWeight*scores[i]
		ca := CandidateAnalysis{
			ChunkID:       c.ID(),
			OriginalScore: c.Similarity,
			RerankScore:   scores[i],
			FinalScore:    final,
			Improvement:   final - c.Similarity,
		}
		out.Candidates[i] = ca

		if i == 0 {
			out.MinImprovement, out.MaxImprovement = ca.Improvement, ca.Improvement
		}
		if ca.Improvement < out.MinImprovement {
			out.MinImprovement = ca.Improvement
		}
		if ca.Improvement > out.MaxImprovement {
			out.MaxImprovement = ca.Improvement
		}
		out.AvgImprovement += ca.Improvement
	}
	out.AvgImprovement /= float64(len(candidates))
	return out, nil
}
