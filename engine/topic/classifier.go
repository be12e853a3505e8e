// Package topic classifies free text against a fixed set of topic anchors.
// Each anchor is the embedding of a small curated phrase list, computed once
// at startup; classification is a pure function of (query, anchors, model).
package topic

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
)

const (
	// GeneralTopic is returned when no anchor clears DetectThreshold.
	GeneralTopic = "general"
	// DetectThreshold is the minimum cosine similarity for a confident
	// single-topic detection.
	DetectThreshold = 0.3
	// MultiThreshold is the looser bound used for multi-topic detection.
	MultiThreshold = 0.2
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Anchor is a topic with its curated example phrases and keyword list.
type Anchor struct {
	Examples []string
	Keywords []string
}

// Classifier scores queries against precomputed topic anchors. Immutable
// after New, so it is safe for concurrent use.
type Classifier struct {
	embed      Embedder
	anchors    map[string]Anchor
	embeddings map[string][]float32
	logger     *slog.Logger
}

// New embeds every anchor's joined examples once and returns the classifier.
func New(ctx context.Context, embed Embedder, anchors map[string]Anchor, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(anchors) == 0 {
		anchors = DefaultAnchors()
	}

	embeddings := make(map[string][]float32, len(anchors))
	for name, a := range anchors {
		vec, err := embed.Embed(ctx, strings.Join(a.Examples, " "))
		if err != nil {
			return nil, fmt.Errorf("topic: embed anchor %s: %w", name, err)
		}
		embeddings[name] = vec
	}
	logger.Info("topic anchors built", "topics", len(anchors))

	return &Classifier{
		embed:      embed,
		anchors:    anchors,
		embeddings: embeddings,
		logger:     logger,
	}, nil
}

// DetectTopic returns the best-matching topic, or GeneralTopic when no anchor
// clears DetectThreshold.
func (c *Classifier) DetectTopic(ctx context.Context, query string) (string, error) {
	scores, err := c.SimilarityScores(ctx, query)
	if err != nil {
		return "", err
	}

	best, bestScore := GeneralTopic, DetectThreshold
	for name, score := range scores {
		if score > bestScore || (score == bestScore && best != GeneralTopic && name < best) {
			best, bestScore = name, score
		}
	}
	return best, nil
}

// DetectMultipleTopics returns every topic scoring above threshold, sorted
// descending by score (ties broken by name for determinism).
func (c *Classifier) DetectMultipleTopics(ctx context.Context, query string, threshold float64) ([]string, error) {
	scores, err := c.SimilarityScores(ctx, query)
	if err != nil {
		return nil, err
	}

	var topics []string
	for name, score := range scores {
		if score > threshold {
			topics = append(topics, name)
		}
	}
	sort.Slice(topics, func(i, j int) bool {
		if scores[topics[i]] != scores[topics[j]] {
			return scores[topics[i]] > scores[topics[j]]
		}
		return topics[i] < topics[j]
	})
	return topics, nil
}

// SimilarityScores embeds the query once and returns cosine similarity
// against every anchor.
func (c *Classifier) SimilarityScores(ctx context.Context, query string) (map[string]float64, error) {
	vec, err := c.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("topic: embed query: %w", err)
	}

	scores := make(map[string]float64, len(c.embeddings))
	for name, anchor := range c.embeddings {
		scores[name] = Cosine(vec, anchor)
	}
	return scores, nil
}

// Keywords returns the curated keyword list for a topic, nil if unknown.
func (c *Classifier) Keywords(topic string) []string {
	return c.anchors[topic].Keywords
}

// Topics lists the configured topic names, sorted.
func (c *Classifier) Topics() []string {
	names := make([]string, 0, len(c.anchors))
	for name := range c.anchors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cosine computes cosine similarity between two vectors. Mismatched or zero
// vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
