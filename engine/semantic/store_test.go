package semantic

import (
	"reflect"
	"testing"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
)

func testChunk() domain.Chunk {
	return domain.Chunk{
		SourcePath:       "projects/ml/notes.md",
		Index:            2,
		Content:          "gradient descent converges slowly",
		Heading:          "Optimization",
		TokenCount:       8,
		WordCount:        4,
		CharCount:        33,
		Method:           domain.MethodSimple,
		MethodConfidence: 1.0,
		Meta: domain.Metadata{
			FrontmatterTags: []string{"ml", "math"},
			ContentTags:     []string{"optimization"},
			Links:           []string{"Convex Sets"},
			FileType:        "md",
			ContentType:     "note",
			Topic:           "machine_learning",
			Category:        "projects",
			CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			ModifiedAt:      time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		},
	}
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	in := testChunk()
	got := chunkFromPayload(chunkPayload(in))
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
	}
}

func TestChunkPayloadOmitsEmptyFields(t *testing.T) {
	p := chunkPayload(domain.Chunk{SourcePath: "a.md", Content: "x"})
	for _, key := range []string{"topic", "file_type", "year", "created_at", "modified_at", "links"} {
		if _, ok := p[key]; ok {
			t.Errorf("payload should omit %q when unset", key)
		}
	}
	if p["source_path"].GetStringValue() != "a.md" {
		t.Fatalf("source_path = %v", p["source_path"])
	}
}

func TestChunkPayloadDailyNoteDate(t *testing.T) {
	c := domain.Chunk{SourcePath: "daily/2026-03-15.md"}
	c.Meta.Year, c.Meta.Month, c.Meta.Day = 2026, 3, 15
	c.Meta.ContentType = "daily_note"

	got := chunkFromPayload(chunkPayload(c))
	if got.Meta.Year != 2026 || got.Meta.Month != 3 || got.Meta.Day != 15 {
		t.Fatalf("date = %d-%d-%d", got.Meta.Year, got.Meta.Month, got.Meta.Day)
	}
	if got.Meta.ContentType != "daily_note" {
		t.Fatalf("content type = %q", got.Meta.ContentType)
	}
}

func TestBuildConditionsEmpty(t *testing.T) {
	if cond := buildConditions(Filter{}); cond != nil {
		t.Fatalf("conditions = %v, want none", cond)
	}
}

func TestBuildConditionsEquals(t *testing.T) {
	cond := buildConditions(Filter{Equals: map[string]string{"file_type": "md"}})
	if len(cond) != 1 {
		t.Fatalf("got %d conditions", len(cond))
	}
	field := cond[0].GetField()
	if field.GetKey() != "file_type" {
		t.Fatalf("key = %q", field.GetKey())
	}
	if kw := field.GetMatch().GetKeyword(); kw != "md" {
		t.Fatalf("keyword = %q", kw)
	}
}

func TestBuildConditionsContentSubstring(t *testing.T) {
	cond := buildConditions(Filter{ContentSubstring: "gradient"})
	if len(cond) != 1 {
		t.Fatalf("got %d conditions", len(cond))
	}
	field := cond[0].GetField()
	if field.GetKey() != "content" {
		t.Fatalf("key = %q", field.GetKey())
	}
	if txt := field.GetMatch().GetText(); txt != "gradient" {
		t.Fatalf("text = %q", txt)
	}
}

func TestBuildConditionsModifiedRange(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	cond := buildConditions(Filter{ModifiedAfter: after, ModifiedBefore: before})
	if len(cond) != 1 {
		t.Fatalf("got %d conditions", len(cond))
	}
	field := cond[0].GetField()
	if field.GetKey() != "modified_at" {
		t.Fatalf("key = %q", field.GetKey())
	}
	rng := field.GetRange()
	if rng.GetGte() != float64(after.Unix()) {
		t.Fatalf("gte = %v", rng.GetGte())
	}
	if rng.GetLte() != float64(before.Unix()) {
		t.Fatalf("lte = %v", rng.GetLte())
	}
}

func TestBuildConditionsHalfOpenRange(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cond := buildConditions(Filter{ModifiedAfter: after})
	rng := cond[0].GetField().GetRange()
	if rng.Gte == nil || rng.Lte != nil {
		t.Fatalf("range = %+v, want gte only", rng)
	}
}

func TestBuildConditionsComposes(t *testing.T) {
	f := Filter{
		Equals:           map[string]string{"topic": "machine_learning", "file_type": "md"},
		ContentSubstring: "descent",
		ModifiedAfter:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if cond := buildConditions(f); len(cond) != 4 {
		t.Fatalf("got %d conditions, want 4", len(cond))
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Fatal("empty filter should be zero")
	}
	if (Filter{ContentSubstring: "x"}).IsZero() {
		t.Fatal("non-empty filter reported zero")
	}
	if (Filter{ModifiedBefore: time.Now()}).IsZero() {
		t.Fatal("bounded filter reported zero")
	}
}

func TestSplitJoined(t *testing.T) {
	if got := splitJoined(""); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
	if got := splitJoined("a,b"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}
