package filter

import (
	"strings"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// Content-quality heuristic weights and word band.
const (
	headingWeight    = 0.3
	paragraphsWeight = 0.3
	wordBandWeight   = 0.4
	wordBandMin      = 50
	wordBandMax      = 2000
)

// QualityScore computes the heuristic content quality of a chunk:
// a non-empty heading, at least two paragraphs, and a word count inside the
// 50-2000 band each contribute their weight.
func QualityScore(c domain.ScoredChunk) float64 {
	score := 0.0
	if strings.TrimSpace(c.Heading) != "" {
		score += headingWeight
	}
	if paragraphCount(c.Content) >= 2 {
		score += paragraphsWeight
	}
	if c.WordCount >= wordBandMin && c.WordCount <= wordBandMax {
		score += wordBandWeight
	}
	return score
}

// ByQuality keeps chunks whose quality score meets minScore, attaching the
// score as ContentQuality. Input order is preserved.
func ByQuality(chunks []domain.ScoredChunk, minScore float64) []domain.ScoredChunk {
	var kept []domain.ScoredChunk
	for _, c := range chunks {
		score := QualityScore(c)
		if score >= minScore {
			c.ContentQuality = score
			kept = append(kept, c)
		}
	}
	return kept
}

func paragraphCount(content string) int {
	count := 0
	for _, p := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	return count
}
