// Package ingest processes vault documents through parsing, chunking, batch
// embedding, and storage into the vector store and link graph. Failures are
// per-document: one bad note never stops the batch.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/chunker"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/graph"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/semantic"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/vault"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/fn"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

const (
	// DocsSubject is the NATS subject for vault document events.
	DocsSubject = "engine.vault.docs"
	// DLQSubject is the dead letter queue for repeatedly failing events.
	DLQSubject = "engine.vault.docs.dlq"
	// MaxRetries before an event goes to the DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max chunks per embedding request.
	EmbedBatchSize = 100
)

// Embedder is the batch embedding collaborator.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter is the slice of the vector store ingestion needs.
type VectorWriter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	DeleteBySourcePath(ctx context.Context, path string) error
}

// NoteGraph is the optional link-graph collaborator.
type NoteGraph interface {
	SaveNote(ctx context.Context, note graph.Note, links []string) error
	DeleteNote(ctx context.Context, path string) error
}

// Deps holds the collaborators for the ingestion pipeline.
type Deps struct {
	Chunker     *chunker.Chunker
	Embedder    Embedder
	VectorStore VectorWriter
	Graph       NoteGraph // nil disables link-graph writes
	// EmbedLimiter throttles embedding batches; nil means unlimited.
	EmbedLimiter *rate.Limiter
	Logger       *slog.Logger
}

// --- Pipeline stages ---

// Validate rejects events the pipeline cannot process.
var Validate fn.Stage[DocumentEvent, DocumentEvent] = func(_ context.Context, ev DocumentEvent) fn.Result[DocumentEvent] {
	if ev.Path == "" {
		return fn.Errf[DocumentEvent]("validate: path is empty")
	}
	if ev.Op != OpUpsert && ev.Op != OpDelete {
		return fn.Errf[DocumentEvent]("validate: unknown op %q", ev.Op)
	}
	if ev.Op == OpUpsert && ev.Content == "" {
		return fn.Errf[DocumentEvent]("validate: empty content for %s", ev.Path)
	}
	return fn.Ok(ev)
}

// Parse splits frontmatter and derives chunk metadata.
var Parse fn.Stage[DocumentEvent, ParsedDoc] = func(_ context.Context, ev DocumentEvent) fn.Result[ParsedDoc] {
	front, body := vault.ParseFrontmatter(ev.Content)
	doc := domain.Document{
		Path:        ev.Path,
		Content:     body,
		Frontmatter: front,
		Links:       vault.ExtractLinks(body),
		ModifiedAt:  ev.ModTime,
	}
	meta := vault.Metadata(doc)
	doc.Tags = append(append([]string{}, meta.FrontmatterTags...), meta.ContentTags...)
	return fn.Ok(ParsedDoc{
		Doc:   doc,
		Title: graph.TitleFromPath(ev.Path),
		Meta:  meta,
	})
}

// NewChunk creates the chunking stage.
func NewChunk(c *chunker.Chunker) fn.Stage[ParsedDoc, ChunkedDoc] {
	return func(_ context.Context, doc ParsedDoc) fn.Result[ChunkedDoc] {
		chunks, err := c.Chunk(doc.Doc.Content, doc.Meta, doc.Doc.Path)
		if err != nil {
			return fn.Err[ChunkedDoc](err)
		}
		return fn.Ok(ChunkedDoc{ParsedDoc: doc, Chunks: chunks})
	}
}

// NewEmbed creates the batch-embedding stage. A failed batch fails the whole
// document: partial embeddings are never stored.
func NewEmbed(embedder Embedder, limiter *rate.Limiter) fn.Stage[ChunkedDoc, EmbeddedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[EmbeddedDoc] {
		embeddings := make([][]float32, 0, len(doc.Chunks))

		for _, batch := range fn.Chunk(doc.Chunks, EmbedBatchSize) {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return fn.Err[EmbeddedDoc](err)
				}
			}

			texts := fn.Map(batch, func(c domain.Chunk) string { return c.Content })
			vecs, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Err[EmbeddedDoc](&domain.EmbeddingError{Err: err})
			}
			embeddings = append(embeddings, vecs...)
		}
		return fn.Ok(EmbeddedDoc{ChunkedDoc: doc, Embeddings: embeddings})
	}
}

// NewStore creates the storage stage: old chunks for the document are dropped
// and replaced wholesale, then the note is upserted into the link graph.
func NewStore(vs VectorWriter, ng NoteGraph, logger *slog.Logger) fn.Stage[EmbeddedDoc, string] {
	return func(ctx context.Context, doc EmbeddedDoc) fn.Result[string] {
		// Refuse to touch the store on a chunk/embedding mismatch; dropping
		// the old chunks first would lose data we cannot replace.
		if len(doc.Embeddings) != len(doc.Chunks) {
			return fn.Err[string](&domain.EmbeddingError{
				Err: fmt.Errorf("got %d embeddings for %d chunks of %s", len(doc.Embeddings), len(doc.Chunks), doc.Doc.Path),
			})
		}

		if err := vs.DeleteBySourcePath(ctx, doc.Doc.Path); err != nil {
			return fn.Err[string](fmt.Errorf("drop stale chunks: %w", err))
		}

		records := make([]semantic.VectorRecord, len(doc.Chunks))
		for i, c := range doc.Chunks {
			records[i] = semantic.VectorRecord{
				ID:        PointID(c),
				Embedding: doc.Embeddings[i],
				Chunk:     c,
			}
		}
		if err := vs.Upsert(ctx, records); err != nil {
			return fn.Err[string](fmt.Errorf("vector upsert: %w", err))
		}

		if ng != nil {
			note := graph.Note{Path: doc.Doc.Path, Title: doc.Title, Tags: doc.Doc.Tags}
			if err := ng.SaveNote(ctx, note, doc.Doc.Links); err != nil {
				// The link graph is enrichment, not a system of record.
				logger.Warn("ingest: link graph write failed", "path", doc.Doc.Path, "err", err)
			}
		}
		return fn.Ok(doc.Doc.Path)
	}
}

// PointID is the deterministic Qdrant point ID for a chunk.
func PointID(c domain.Chunk) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.ID())).String()
}

// LoggedTap returns a pass-through stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline wires the full upsert pipeline:
// Validate -> Parse -> Chunk -> Embed -> Store.
func NewPipeline(deps Deps) fn.Stage[DocumentEvent, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := fn.Then(LoggedTap[DocumentEvent]("validate", log), Validate)
	parsed := fn.Then(validated, fn.Then(LoggedTap[DocumentEvent]("parse", log), Parse))
	chunked := fn.Then(parsed, fn.Then(LoggedTap[ParsedDoc]("chunk", log), NewChunk(deps.Chunker)))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), NewEmbed(deps.Embedder, deps.EmbedLimiter)))
	return fn.Then(embedded, fn.Then(LoggedTap[EmbeddedDoc]("store", log), NewStore(deps.VectorStore, deps.Graph, log)))
}

// Delete removes a document's chunks and graph node.
func Delete(ctx context.Context, deps Deps, path string) error {
	if err := deps.VectorStore.DeleteBySourcePath(ctx, path); err != nil {
		return err
	}
	if deps.Graph != nil {
		if err := deps.Graph.DeleteNote(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Event   DocumentEvent `json:"event"`
	Error   string        `json:"error"`
	Retries int           `json:"retries"`
}

// StartConsumer subscribes to DocsSubject and runs events through the
// pipeline. Chunking failures skip the document permanently; transient
// failures are re-published with a retry header and land in the DLQ after
// MaxRetries.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(DocsSubject, func(msg *nats.Msg) {
		var ev DocumentEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Error("ingest: unmarshal failed", "err", err)
			return
		}

		ctx := context.Background()

		if ev.Op == OpDelete {
			if err := Delete(ctx, deps, ev.Path); err != nil {
				log.Error("ingest: delete failed", "path", ev.Path, "err", err)
			} else {
				log.Info("ingest: deleted", "path", ev.Path)
			}
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, ev)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()

			var chunkErr *domain.ChunkingError
			if errors.As(pipeErr, &chunkErr) {
				// Malformed content will not improve on retry.
				log.Warn("ingest: skipping unchunkable document", "path", ev.Path, "err", pipeErr)
				return
			}

			retries++
			log.Error("ingest: pipeline failed", "path", ev.Path, "retry", retries, "err", pipeErr)

			if retries >= MaxRetries {
				dlq := dlqMessage{Event: ev, Error: pipeErr.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if err := nc.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "err", err)
				}
				return
			}

			retryMsg := nats.NewMsg(DocsSubject)
			retryMsg.Data = msg.Data
			retryMsg.Header = nats.Header{}
			retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
			if err := nc.PublishMsg(retryMsg); err != nil {
				log.Error("ingest: retry publish failed", "err", err)
			}
			return
		}

		path, _ := result.Unwrap()
		log.Info("ingest: stored", "path", path)
	})
}
