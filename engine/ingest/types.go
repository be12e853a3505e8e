package ingest

import (
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

// Event operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// DocumentEvent is the NATS payload published by the vault scanner.
type DocumentEvent struct {
	Op      string    `json:"op"`
	Path    string    `json:"path"`
	Content string    `json:"content,omitempty"`
	ModTime time.Time `json:"mtime"`
}

// ParsedDoc is a document with frontmatter split out and metadata derived.
type ParsedDoc struct {
	Doc   domain.Document
	Title string
	Meta  domain.Metadata
}

// ChunkedDoc is a parsed document split into chunks.
type ChunkedDoc struct {
	ParsedDoc
	Chunks []domain.Chunk
}

// EmbeddedDoc is a chunked document with one embedding per chunk.
type EmbeddedDoc struct {
	ChunkedDoc
	Embeddings [][]float32
}
