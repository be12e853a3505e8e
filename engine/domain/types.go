// Package domain holds the core retrieval types shared across the engine:
// chunks, documents, search requests/results, filter specifications, and the
// error taxonomy.
package domain

import (
	"fmt"
	"time"
)

// ChunkingMethod identifies which chunking strategy produced a chunk.
type ChunkingMethod string

const (
	// MethodSimple splits on headings only, never inside a section.
	MethodSimple ChunkingMethod = "simple"
	// MethodAdvanced additionally splits oversized sections with a token
	// sliding window.
	MethodAdvanced ChunkingMethod = "advanced"
)

// Metadata carries document-level attributes onto every chunk.
type Metadata struct {
	FrontmatterTags []string  `json:"frontmatter_tags,omitempty"`
	ContentTags     []string  `json:"content_tags,omitempty"`
	Links           []string  `json:"links,omitempty"`
	FileType        string    `json:"file_type,omitempty"`
	ContentType     string    `json:"content_type,omitempty"`
	Topic           string    `json:"topic,omitempty"`
	Category        string    `json:"category,omitempty"`
	Year            int       `json:"year,omitempty"`
	Month           int       `json:"month,omitempty"`
	Day             int       `json:"day,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	ModifiedAt      time.Time `json:"modified_at,omitempty"`
}

// Chunk is the unit of retrievable content. Chunks are immutable once
// produced by ingestion; query-time scores live on ScoredChunk.
type Chunk struct {
	SourcePath string         `json:"source_path"`
	Index      int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Heading    string         `json:"heading"`
	TokenCount int            `json:"token_count"`
	WordCount  int            `json:"word_count"`
	CharCount  int            `json:"char_count"`
	Method     ChunkingMethod `json:"chunking_method"`
	// MethodConfidence is how strongly the hybrid selector preferred Method,
	// in [0,1]. Chunks from a fixed-strategy chunker carry 1.0.
	MethodConfidence float64  `json:"method_confidence"`
	Meta             Metadata `json:"metadata"`
}

// ID returns the unique chunk key derived from (source_path, chunk_index).
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.SourcePath, c.Index)
}

// ScoredChunk is a chunk with transient query-time scores attached.
type ScoredChunk struct {
	Chunk
	Similarity     float64 `json:"similarity"`
	CrossScore     float64 `json:"cross_score"`
	FinalScore     float64 `json:"final_score"`
	TopicRelevance float64 `json:"topic_relevance,omitempty"`
	ContentQuality float64 `json:"content_quality_score,omitempty"`
}

// Document is a raw vault note before chunking. It exists only transiently
// during ingestion; persistence is the vector store's job.
type Document struct {
	Path        string
	Content     string
	Frontmatter map[string]any
	Tags        []string
	Links       []string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// SearchRequest is the consumer-facing search contract.
type SearchRequest struct {
	Query string `json:"query"`
	// K is the number of chunks to return. Zero means the orchestrator default.
	K       int          `json:"k,omitempty"`
	Filters []FilterSpec `json:"-"`
	// SimilarityWeight/CrossScoreWeight override the fusion preset when both
	// are set; zero values mean "use the preset".
	SimilarityWeight float64 `json:"similarity_weight,omitempty"`
	CrossScoreWeight float64 `json:"cross_score_weight,omitempty"`
	ExpandQuery      bool    `json:"expand_query,omitempty"`
	// RerankTopK is how many candidates to over-fetch for reranking.
	// Zero means the orchestrator's over-fetch factor times K.
	RerankTopK int `json:"rerank_top_k,omitempty"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// SearchResult is the ordered answer plus the full pipeline audit trail.
type SearchResult struct {
	Query         string        `json:"query"`
	ExpandedQuery string        `json:"expanded_query,omitempty"`
	Chunks        []ScoredChunk `json:"chunks"`
	Topic         string        `json:"topic"`
	// FiltersApplied lists filter kinds in the order they ran.
	FiltersApplied []string      `json:"filters_applied,omitempty"`
	Timings        []StageTiming `json:"timings,omitempty"`
	// Degraded is set when a non-fatal stage failed and the pipeline fell
	// back (e.g. similarity-only ranking after a reranker failure, or
	// proceeding with the unexpanded query). DegradedStages names them.
	Degraded       bool          `json:"degraded"`
	DegradedStages []string      `json:"degraded_stages,omitempty"`
	Related        []RelatedNote `json:"related_notes,omitempty"`
	CacheHit       bool          `json:"cache_hit"`
}

// RelatedNote is an optional link-graph enrichment entry surfaced alongside
// search results.
type RelatedNote struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Via   string `json:"via"` // the result note that links to it
}
