package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for request validation.
var (
	ErrEmptyQuery     = errors.New("query is empty")
	ErrInvalidK       = errors.New("k must be positive")
	ErrInvalidWeights = errors.New("fusion weights must be non-negative and sum to a positive value")
)

// ChunkingError marks a document that could not be chunked. Ingestion logs it
// and continues with the remaining documents.
type ChunkingError struct {
	Path string
	Err  error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking %s: %v", e.Path, e.Err)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// EmbeddingError is fatal to the enclosing request; partial embeddings are
// never substituted.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding: %v", e.Err) }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// VectorStoreError wraps a failed vector store operation after retries are
// exhausted.
type VectorStoreError struct {
	Op  string
	Err error
}

func (e *VectorStoreError) Error() string { return fmt.Sprintf("vector store %s: %v", e.Op, e.Err) }

func (e *VectorStoreError) Unwrap() error { return e.Err }

// RerankError is non-fatal: the pipeline degrades to similarity-only ranking
// and records the degradation in the result's audit trail.
type RerankError struct {
	Err error
}

func (e *RerankError) Error() string { return fmt.Sprintf("rerank: %v", e.Err) }

func (e *RerankError) Unwrap() error { return e.Err }

// FilterSpecError reports a malformed filter before the pipeline runs.
type FilterSpecError struct {
	Kind   string
	Reason string
}

func (e *FilterSpecError) Error() string {
	return fmt.Sprintf("filter %s: %s", e.Kind, e.Reason)
}
