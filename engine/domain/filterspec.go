package domain

import (
	"fmt"
	"strings"
	"time"
)

// FilterSpec is a tagged filter variant, validated at construction time so a
// malformed filter is rejected before the pipeline runs rather than mid-flight.
type FilterSpec interface {
	Kind() string
	Validate() error
}

// TopicFilter keeps chunks relevant to a topic, scored by keyword overlap and
// metadata/tag matches.
type TopicFilter struct {
	Topic string `json:"topic"`
}

func (f TopicFilter) Kind() string { return "topic" }

func (f TopicFilter) Validate() error {
	if strings.TrimSpace(f.Topic) == "" {
		return &FilterSpecError{Kind: f.Kind(), Reason: "topic is empty"}
	}
	return nil
}

// FileTypeFilter keeps chunks whose file_type is in Types.
type FileTypeFilter struct {
	Types []string `json:"file_types"`
}

func (f FileTypeFilter) Kind() string { return "file_type" }

func (f FileTypeFilter) Validate() error {
	if len(f.Types) == 0 {
		return &FilterSpecError{Kind: f.Kind(), Reason: "no file types given"}
	}
	for _, t := range f.Types {
		if strings.TrimSpace(t) == "" {
			return &FilterSpecError{Kind: f.Kind(), Reason: "empty file type"}
		}
	}
	return nil
}

// DateRangeFilter keeps chunks modified within [From, To] inclusive. A zero
// bound leaves that side open.
type DateRangeFilter struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

func (f DateRangeFilter) Kind() string { return "date_range" }

func (f DateRangeFilter) Validate() error {
	if f.From.IsZero() && f.To.IsZero() {
		return &FilterSpecError{Kind: f.Kind(), Reason: "both bounds are zero"}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return &FilterSpecError{Kind: f.Kind(), Reason: fmt.Sprintf("to %s before from %s", f.To.Format(time.DateOnly), f.From.Format(time.DateOnly))}
	}
	return nil
}

// WordCountFilter keeps chunks with Min <= word_count <= Max. Max zero leaves
// the upper bound open.
type WordCountFilter struct {
	Min int `json:"min"`
	Max int `json:"max,omitempty"`
}

func (f WordCountFilter) Kind() string { return "word_count" }

func (f WordCountFilter) Validate() error {
	if f.Min < 0 {
		return &FilterSpecError{Kind: f.Kind(), Reason: "min is negative"}
	}
	if f.Max != 0 && f.Max < f.Min {
		return &FilterSpecError{Kind: f.Kind(), Reason: fmt.Sprintf("max %d below min %d", f.Max, f.Min)}
	}
	return nil
}

// HeadingFilter keeps chunks whose heading contains any of the keywords
// (case-insensitive).
type HeadingFilter struct {
	Keywords []string `json:"heading_keywords"`
}

func (f HeadingFilter) Kind() string { return "heading" }

func (f HeadingFilter) Validate() error {
	if len(f.Keywords) == 0 {
		return &FilterSpecError{Kind: f.Kind(), Reason: "no keywords given"}
	}
	return nil
}

// QualityFilter keeps chunks whose heuristic content quality meets MinScore.
type QualityFilter struct {
	MinScore float64 `json:"min_quality_score"`
}

func (f QualityFilter) Kind() string { return "quality" }

func (f QualityFilter) Validate() error {
	if f.MinScore < 0 || f.MinScore > 1 {
		return &FilterSpecError{Kind: f.Kind(), Reason: fmt.Sprintf("min score %.2f outside [0,1]", f.MinScore)}
	}
	return nil
}

// ValidateFilters checks every spec, returning the first failure.
func ValidateFilters(specs []FilterSpec) error {
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSearchRequest checks a request before pipeline execution.
func ValidateSearchRequest(req SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if req.K < 0 {
		return ErrInvalidK
	}
	if req.SimilarityWeight < 0 || req.CrossScoreWeight < 0 {
		return ErrInvalidWeights
	}
	if req.RerankTopK < 0 {
		return fmt.Errorf("validate: rerank_top_k is negative")
	}
	return ValidateFilters(req.Filters)
}
