package chunker

import (
	"math"
	"strings"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// selectMethod scores the whole document and picks the chunking method:
// well-structured, low-complexity documents keep whole sections (simple);
// everything else gets the sliding window (advanced). The returned confidence
// grows with the distance of the decisive score from its threshold.
//
// The thresholds are tunable constants awaiting calibration against a labeled
// corpus; do not treat the defaults as ground truth.
func (c *Chunker) selectMethod(content string) (domain.ChunkingMethod, float64) {
	structure := structureScore(content)
	complexity := complexityScore(content)

	structMargin := structure - c.cfg.StructureThreshold
	complexMargin := c.cfg.ComplexityThreshold - complexity

	method := domain.MethodAdvanced
	if structMargin >= 0 && complexMargin >= 0 {
		method = domain.MethodSimple
	}

	// The decisive margin is the one that tipped the decision: the smaller
	// passing margin for simple, the larger failing margin for advanced.
	var margin float64
	if method == domain.MethodSimple {
		margin = math.Min(structMargin, complexMargin)
	} else {
		margin = math.Max(-structMargin, -complexMargin)
	}
	confidence := 0.5 + math.Min(margin*2, 0.5)
	return method, confidence
}

// structureScore is the density of heading and list-item lines.
func structureScore(content string) float64 {
	lines := strings.Split(content, "\n")
	nonEmpty, structural := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if _, ok := headingText(line); ok {
			structural++
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ ") || isOrderedItem(trimmed) {
			structural++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(structural) / float64(nonEmpty)
}

func isOrderedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' '
}

// complexityScore blends sentence-length variation with vocabulary diversity,
// each mapped into [0,1].
func complexityScore(content string) float64 {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return 0
	}

	lengths := make([]float64, len(sentences))
	total := 0.0
	for i, s := range sentences {
		lengths[i] = float64(len(strings.Fields(s)))
		total += lengths[i]
	}
	mean := total / float64(len(lengths))

	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))

	// Coefficient of variation, capped at 1: pure repetition scores 0.
	lengthVar := 0.0
	if mean > 0 {
		lengthVar = math.Min(math.Sqrt(variance)/mean, 1)
	}

	words := strings.Fields(strings.ToLower(content))
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.Trim(w, ".,!?;:\"'()[]")] = struct{}{}
	}
	diversity := 0.0
	if len(words) > 0 {
		diversity = float64(len(unique)) / float64(len(words))
	}

	return 0.5*lengthVar + 0.5*diversity
}
