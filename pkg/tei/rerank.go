// Package tei provides a cross-encoder client for a text-embeddings-inference
// style /rerank endpoint (e.g. BAAI/bge-reranker behind HuggingFace TEI).
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RerankClient scores (query, passage) pairs with a remote cross-encoder.
type RerankClient struct {
	baseURL string
	client  *http.Client
}

// NewRerankClient creates a client for the TEI server at baseURL.
func NewRerankClient(baseURL string) *RerankClient {
	return &RerankClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type rerankReq struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	// RawScores asks for raw logits instead of sigmoid probabilities; the
	// fusion weights are the calibration surface, not the scores.
	RawScores bool `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one relevance score per passage, in input order. Higher is
// more relevant.
func (c *RerankClient) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	body, _ := json.Marshal(rerankReq{Query: query, Texts: passages})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei rerank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("tei rerank: status %d", resp.StatusCode)
	}

	var hits []rerankHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("tei rerank decode: %w", err)
	}
	if len(hits) != len(passages) {
		return nil, fmt.Errorf("tei rerank: got %d scores for %d passages", len(hits), len(passages))
	}

	scores := make([]float64, len(passages))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(scores) {
			return nil, fmt.Errorf("tei rerank: index %d out of range", h.Index)
		}
		scores[h.Index] = h.Score
	}
	return scores, nil
}
