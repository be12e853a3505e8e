package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/chunker"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/graph"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/semantic"
)

// fakeEmbedder returns a fixed-dimension vector per text.
type fakeEmbedder struct {
	err     error
	calls   int
	batches [][]string
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.batches = append(e.batches, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeVectorWriter struct {
	ops       []string
	upserts   [][]semantic.VectorRecord
	deleteErr error
	upsertErr error
}

func (w *fakeVectorWriter) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	w.ops = append(w.ops, "upsert")
	w.upserts = append(w.upserts, records)
	return w.upsertErr
}

func (w *fakeVectorWriter) DeleteBySourcePath(_ context.Context, path string) error {
	w.ops = append(w.ops, "delete "+path)
	return w.deleteErr
}

type fakeGraph struct {
	saved   []graph.Note
	links   [][]string
	deleted []string
	err     error
}

func (g *fakeGraph) SaveNote(_ context.Context, note graph.Note, links []string) error {
	g.saved = append(g.saved, note)
	g.links = append(g.links, links)
	return g.err
}

func (g *fakeGraph) DeleteNote(_ context.Context, path string) error {
	g.deleted = append(g.deleted, path)
	return g.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func upsertEvent(path, content string) DocumentEvent {
	return DocumentEvent{
		Op:      OpUpsert,
		Path:    path,
		Content: content,
		ModTime: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		ev      DocumentEvent
		wantErr bool
	}{
		{"valid upsert", upsertEvent("a.md", "body"), false},
		{"valid delete", DocumentEvent{Op: OpDelete, Path: "a.md"}, false},
		{"empty path", DocumentEvent{Op: OpUpsert, Content: "body"}, true},
		{"unknown op", DocumentEvent{Op: "rename", Path: "a.md"}, true},
		{"upsert without content", DocumentEvent{Op: OpUpsert, Path: "a.md"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(context.Background(), tc.ev)
			if res.IsErr() != tc.wantErr {
				_, err := res.Unwrap()
				t.Fatalf("IsErr = %v, err = %v", res.IsErr(), err)
			}
		})
	}
}

func TestParse(t *testing.T) {
	content := "---\ntags: [work]\ntopic: planning\n---\nBody with #inline tag and [[Other Note]]."
	ev := upsertEvent("projects/plan.md", content)

	res := Parse(context.Background(), ev)
	doc, err := res.Unwrap()
	if err != nil {
		t.Fatal(err)
	}

	if doc.Title != "plan" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Meta.Topic != "planning" {
		t.Errorf("topic = %q", doc.Meta.Topic)
	}
	if doc.Meta.Category != "projects" {
		t.Errorf("category = %q", doc.Meta.Category)
	}
	if len(doc.Doc.Links) != 1 || doc.Doc.Links[0] != "Other Note" {
		t.Errorf("links = %v", doc.Doc.Links)
	}
	wantTags := []string{"work", "inline"}
	if len(doc.Doc.Tags) != 2 || doc.Doc.Tags[0] != wantTags[0] || doc.Doc.Tags[1] != wantTags[1] {
		t.Errorf("tags = %v, want %v", doc.Doc.Tags, wantTags)
	}
	if strings.Contains(doc.Doc.Content, "topic:") {
		t.Error("frontmatter leaked into body")
	}
}

func TestNewChunkPropagatesErrors(t *testing.T) {
	stage := NewChunk(testChunker(t))
	res := stage(context.Background(), ParsedDoc{Doc: domain.Document{Path: "empty.md", Content: "   "}})

	_, err := res.Unwrap()
	var chunkErr *domain.ChunkingError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("got %v, want ChunkingError", err)
	}
}

func chunkedDoc(path string, n int) ChunkedDoc {
	doc := ChunkedDoc{ParsedDoc: ParsedDoc{
		Doc:   domain.Document{Path: path, Links: []string{"Other"}, Tags: []string{"t"}},
		Title: graph.TitleFromPath(path),
	}}
	for i := 0; i < n; i++ {
		doc.Chunks = append(doc.Chunks, domain.Chunk{SourcePath: path, Index: i, Content: "chunk content"})
	}
	return doc
}

func TestNewEmbedBatches(t *testing.T) {
	embed := &fakeEmbedder{}
	stage := NewEmbed(embed, nil)

	out, err := stage(context.Background(), chunkedDoc("a.md", EmbedBatchSize+5)).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if embed.calls != 2 {
		t.Fatalf("batches = %d, want 2", embed.calls)
	}
	if len(embed.batches[0]) != EmbedBatchSize || len(embed.batches[1]) != 5 {
		t.Fatalf("batch sizes = %d, %d", len(embed.batches[0]), len(embed.batches[1]))
	}
	if len(out.Embeddings) != EmbedBatchSize+5 {
		t.Fatalf("embeddings = %d", len(out.Embeddings))
	}
}

func TestNewEmbedFailureWrapsError(t *testing.T) {
	embed := &fakeEmbedder{err: errors.New("model offline")}
	stage := NewEmbed(embed, nil)

	_, err := stage(context.Background(), chunkedDoc("a.md", 3)).Unwrap()
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
}

func TestNewStoreDeletesBeforeUpsert(t *testing.T) {
	vs := &fakeVectorWriter{}
	ng := &fakeGraph{}
	stage := NewStore(vs, ng, discard())

	doc := EmbeddedDoc{ChunkedDoc: chunkedDoc("notes/a.md", 2), Embeddings: [][]float32{{1}, {2}}}
	path, err := stage(context.Background(), doc).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if path != "notes/a.md" {
		t.Fatalf("path = %q", path)
	}

	if len(vs.ops) != 2 || vs.ops[0] != "delete notes/a.md" || vs.ops[1] != "upsert" {
		t.Fatalf("ops = %v", vs.ops)
	}
	records := vs.upserts[0]
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].ID != PointID(doc.Chunks[0]) {
		t.Fatalf("record ID = %q", records[0].ID)
	}

	if len(ng.saved) != 1 || ng.saved[0].Title != "a" {
		t.Fatalf("graph saves = %v", ng.saved)
	}
	if len(ng.links[0]) != 1 || ng.links[0][0] != "Other" {
		t.Fatalf("graph links = %v", ng.links)
	}
}

func TestNewStoreGraphFailureIsNonFatal(t *testing.T) {
	vs := &fakeVectorWriter{}
	ng := &fakeGraph{err: errors.New("neo4j down")}
	stage := NewStore(vs, ng, discard())

	doc := EmbeddedDoc{ChunkedDoc: chunkedDoc("a.md", 1), Embeddings: [][]float32{{1}}}
	if _, err := stage(context.Background(), doc).Unwrap(); err != nil {
		t.Fatalf("graph failure should not fail the stage: %v", err)
	}
}

func TestNewStoreNilGraph(t *testing.T) {
	vs := &fakeVectorWriter{}
	stage := NewStore(vs, nil, discard())

	doc := EmbeddedDoc{ChunkedDoc: chunkedDoc("a.md", 1), Embeddings: [][]float32{{1}}}
	if _, err := stage(context.Background(), doc).Unwrap(); err != nil {
		t.Fatal(err)
	}
}

func TestNewStoreRejectsEmbeddingCountMismatch(t *testing.T) {
	vs := &fakeVectorWriter{}
	stage := NewStore(vs, nil, discard())

	doc := EmbeddedDoc{ChunkedDoc: chunkedDoc("a.md", 2), Embeddings: [][]float32{{1}}}
	_, err := stage(context.Background(), doc).Unwrap()

	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("got %v, want EmbeddingError", err)
	}
	// Existing chunks stay put when the replacement set is unusable.
	if len(vs.ops) != 0 {
		t.Fatalf("store touched: %v", vs.ops)
	}
}

func TestNewStoreUpsertFailure(t *testing.T) {
	vs := &fakeVectorWriter{upsertErr: errors.New("qdrant down")}
	stage := NewStore(vs, nil, discard())

	doc := EmbeddedDoc{ChunkedDoc: chunkedDoc("a.md", 1), Embeddings: [][]float32{{1}}}
	if _, err := stage(context.Background(), doc).Unwrap(); err == nil {
		t.Fatal("expected error")
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := domain.Chunk{SourcePath: "notes/a.md", Index: 3}
	b := domain.Chunk{SourcePath: "notes/a.md", Index: 3}
	if PointID(a) != PointID(b) {
		t.Fatal("same chunk key should yield the same point ID")
	}
	if PointID(a) == PointID(domain.Chunk{SourcePath: "notes/a.md", Index: 4}) {
		t.Fatal("different indices should yield different point IDs")
	}
	if len(PointID(a)) != 36 {
		t.Fatalf("point ID %q is not a UUID", PointID(a))
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	vs := &fakeVectorWriter{}
	ng := &fakeGraph{}
	pipeline := NewPipeline(Deps{
		Chunker:     testChunker(t),
		Embedder:    &fakeEmbedder{},
		VectorStore: vs,
		Graph:       ng,
		Logger:      discard(),
	})

	ev := upsertEvent("projects/pipeline.md", "# Heading\n\nSome real content under the heading with enough words to chunk.")
	path, err := pipeline(context.Background(), ev).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if path != "projects/pipeline.md" {
		t.Fatalf("path = %q", path)
	}
	if len(vs.upserts) != 1 || len(vs.upserts[0]) == 0 {
		t.Fatalf("upserts = %v", vs.upserts)
	}
	if len(ng.saved) != 1 {
		t.Fatalf("graph saves = %d", len(ng.saved))
	}
}

func TestPipelineRejectsInvalidEvent(t *testing.T) {
	pipeline := NewPipeline(Deps{
		Chunker:     testChunker(t),
		Embedder:    &fakeEmbedder{},
		VectorStore: &fakeVectorWriter{},
		Logger:      discard(),
	})

	res := pipeline(context.Background(), DocumentEvent{Op: OpUpsert, Path: "a.md"})
	if !res.IsErr() {
		t.Fatal("expected validation error")
	}
}

func TestDelete(t *testing.T) {
	vs := &fakeVectorWriter{}
	ng := &fakeGraph{}
	deps := Deps{VectorStore: vs, Graph: ng}

	if err := Delete(context.Background(), deps, "old.md"); err != nil {
		t.Fatal(err)
	}
	if len(vs.ops) != 1 || vs.ops[0] != "delete old.md" {
		t.Fatalf("ops = %v", vs.ops)
	}
	if len(ng.deleted) != 1 || ng.deleted[0] != "old.md" {
		t.Fatalf("graph deletes = %v", ng.deleted)
	}
}

func TestDeleteWithoutGraph(t *testing.T) {
	vs := &fakeVectorWriter{}
	if err := Delete(context.Background(), Deps{VectorStore: vs}, "old.md"); err != nil {
		t.Fatal(err)
	}
}
