package filter

import (
	"context"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/topic"
)

// TopicDetector is the slice of the topic classifier Smart needs.
type TopicDetector interface {
	DetectTopic(ctx context.Context, query string) (string, error)
	Keywords(topic string) []string
}

// Smart composes the topic filter with any explicit filter specs. The topic
// stage runs first: an explicit TopicFilter wins, otherwise the detector's
// topic is used, and the stage is skipped entirely when the topic is general
// or detection fails. The remaining specs then apply in a fixed order
// regardless of how the caller ordered them: file types, date range, word
// count, heading keywords, quality.
//
// The returned slice lists the filters that actually ran, in order. Specs
// must be validated beforehand (domain.ValidateFilters).
func Smart(ctx context.Context, chunks []domain.ScoredChunk, query string, specs []domain.FilterSpec, detector TopicDetector) ([]domain.ScoredChunk, []string) {
	var applied []string

	byKind := make(map[string]domain.FilterSpec, len(specs))
	for _, s := range specs {
		byKind[s.Kind()] = s
	}

	topicName := ""
	if s, ok := byKind["topic"]; ok {
		topicName = s.(domain.TopicFilter).Topic
	} else if detector != nil {
		if detected, err := detector.DetectTopic(ctx, query); err == nil {
			topicName = detected
		}
	}
	if topicName != "" && topicName != topic.GeneralTopic {
		var keywords []string
		if detector != nil {
			keywords = detector.Keywords(topicName)
		}
		chunks = ByTopic(chunks, topicName, keywords)
		applied = append(applied, "topic:"+topicName)
	}

	if s, ok := byKind["file_type"]; ok {
		chunks = ByFileType(chunks, s.(domain.FileTypeFilter).Types)
		applied = append(applied, s.Kind())
	}
	if s, ok := byKind["date_range"]; ok {
		chunks = ByDateRange(chunks, s.(domain.DateRangeFilter))
		applied = append(applied, s.Kind())
	}
	if s, ok := byKind["word_count"]; ok {
		wc := s.(domain.WordCountFilter)
		chunks = ByWordCount(chunks, wc.Min, wc.Max)
		applied = append(applied, s.Kind())
	}
	if s, ok := byKind["heading"]; ok {
		chunks = ByHeading(chunks, s.(domain.HeadingFilter).Keywords)
		applied = append(applied, s.Kind())
	}
	if s, ok := byKind["quality"]; ok {
		chunks = ByQuality(chunks, s.(domain.QualityFilter).MinScore)
		applied = append(applied, s.Kind())
	}

	return chunks, applied
}
