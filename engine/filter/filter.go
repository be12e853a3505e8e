// Package filter provides pure, composable filters over chunk collections.
// No filter mutates its input; all preserve the relative order of survivors
// except ByTopic, which is explicitly a relevance sort.
package filter

import (
	"sort"
	"strings"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// Topic-relevance scoring weights.
const (
	keywordOverlapWeight = 0.5
	topicMetadataBonus   = 0.3
	tagMatchBonus        = 0.2
	topicKeepThreshold   = 0.1
)

// ByTopic scores each chunk against a topic's keyword list plus metadata and
// tag matches, keeps chunks scoring above topicKeepThreshold, attaches the
// score as TopicRelevance, and sorts descending by it (ties keep input order).
func ByTopic(chunks []domain.ScoredChunk, topic string, keywords []string) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		score := topicRelevance(c, topic, keywords)
		if score > topicKeepThreshold {
			c.TopicRelevance = score
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].TopicRelevance > kept[j].TopicRelevance
	})
	return kept
}

func topicRelevance(c domain.ScoredChunk, topic string, keywords []string) float64 {
	score := 0.0

	if len(keywords) > 0 {
		content := strings.ToLower(c.Content)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				matches++
			}
		}
		score += keywordOverlapWeight * float64(matches) / float64(len(keywords))
	}

	if strings.EqualFold(c.Meta.Topic, topic) {
		score += topicMetadataBonus
	}

	for _, tag := range append(c.Meta.FrontmatterTags, c.Meta.ContentTags...) {
		if strings.EqualFold(tag, topic) {
			score += tagMatchBonus
			break
		}
	}
	return score
}

// ByDateRange keeps chunks whose modification time falls inside the range,
// bounds inclusive. Chunks without a modification time are excluded, not
// defaulted.
func ByDateRange(chunks []domain.ScoredChunk, spec domain.DateRangeFilter) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		t := c.Meta.ModifiedAt
		if t.IsZero() {
			continue
		}
		if !spec.From.IsZero() && t.Before(spec.From) {
			continue
		}
		if !spec.To.IsZero() && t.After(spec.To) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// ByFileType keeps chunks whose file_type matches any of the given types
// (case-insensitive). Chunks without a file_type are excluded.
func ByFileType(chunks []domain.ScoredChunk, types []string) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		if c.Meta.FileType == "" {
			continue
		}
		for _, t := range types {
			if strings.EqualFold(c.Meta.FileType, t) {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}

// ByWordCount keeps chunks with min <= word_count <= max. A max of zero
// leaves the upper bound open.
func ByWordCount(chunks []domain.ScoredChunk, min, max int) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		if c.WordCount < min {
			continue
		}
		if max > 0 && c.WordCount > max {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// ByHeading keeps chunks whose heading contains any keyword
// (case-insensitive). Chunks without a heading are excluded.
func ByHeading(chunks []domain.ScoredChunk, keywords []string) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		if c.Heading == "" {
			continue
		}
		heading := strings.ToLower(c.Heading)
		for _, kw := range keywords {
			if strings.Contains(heading, strings.ToLower(kw)) {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept
}
