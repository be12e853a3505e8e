package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// fakeResult yields canned records.
type fakeResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *fakeResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() *neo4j.Record {
	return r.records[r.pos-1]
}

type query struct {
	cypher string
	params map[string]any
}

// fakeRunner records queries and replays canned results in order.
type fakeRunner struct {
	queries []query
	results []*fakeResult
	err     error
	closed  bool
}

func (r *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	r.queries = append(r.queries, query{cypher: cypher, params: params})
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) > 0 {
		res := r.results[0]
		r.results = r.results[1:]
		return res, nil
	}
	return &fakeResult{}, nil
}

func (r *fakeRunner) Close(context.Context) error {
	r.closed = true
	return nil
}

func testStore(r *fakeRunner) *LinkStore {
	return &LinkStore{newSession: func(context.Context) runner { return r }}
}

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func TestSaveNote(t *testing.T) {
	runner := &fakeRunner{}
	s := testStore(runner)

	note := Note{Path: "projects/a.md", Title: "a", Tags: []string{"ml"}}
	if err := s.SaveNote(context.Background(), note, []string{"First", "Second"}); err != nil {
		t.Fatal(err)
	}

	// One upsert plus one query per link.
	if len(runner.queries) != 3 {
		t.Fatalf("ran %d queries, want 3", len(runner.queries))
	}
	if runner.queries[0].params["path"] != "projects/a.md" {
		t.Fatalf("upsert params = %v", runner.queries[0].params)
	}
	if runner.queries[1].params["title"] != "First" || runner.queries[2].params["title"] != "Second" {
		t.Fatalf("link params = %v, %v", runner.queries[1].params, runner.queries[2].params)
	}
	if !runner.closed {
		t.Fatal("session not closed")
	}
}

func TestSaveNoteSurfacesError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("down")}
	s := testStore(runner)
	if err := s.SaveNote(context.Background(), Note{Path: "a.md"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteNote(t *testing.T) {
	runner := &fakeRunner{}
	s := testStore(runner)

	if err := s.DeleteNote(context.Background(), "old.md"); err != nil {
		t.Fatal(err)
	}
	if len(runner.queries) != 1 || runner.queries[0].params["path"] != "old.md" {
		t.Fatalf("queries = %v", runner.queries)
	}
}

func TestRelatedNotes(t *testing.T) {
	runner := &fakeRunner{results: []*fakeResult{{records: []*neo4j.Record{
		record([]string{"path", "title", "via"}, []any{"notes/b.md", "b", "notes/a.md"}),
		record([]string{"path", "title", "via"}, []any{nil, "stub", "notes/a.md"}),
	}}}}
	s := testStore(runner)

	got, err := s.RelatedNotes(context.Background(), []string{"notes/a.md"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d related notes", len(got))
	}
	if got[0].Path != "notes/b.md" || got[0].Title != "b" || got[0].Via != "notes/a.md" {
		t.Fatalf("first = %+v", got[0])
	}
	// Stub targets have no path yet.
	if got[1].Path != "" || got[1].Title != "stub" {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestRelatedNotesEmptyInput(t *testing.T) {
	runner := &fakeRunner{}
	s := testStore(runner)

	got, err := s.RelatedNotes(context.Background(), nil, 5)
	if err != nil || got != nil {
		t.Fatalf("got (%v, %v)", got, err)
	}
	if len(runner.queries) != 0 {
		t.Fatal("no query should run for empty input")
	}
}

func TestRelatedNotesDefaultsLimit(t *testing.T) {
	runner := &fakeRunner{}
	s := testStore(runner)

	if _, err := s.RelatedNotes(context.Background(), []string{"a.md"}, 0); err != nil {
		t.Fatal(err)
	}
	if runner.queries[0].params["limit"] != 5 {
		t.Fatalf("limit = %v", runner.queries[0].params["limit"])
	}
}

func TestBacklinks(t *testing.T) {
	runner := &fakeRunner{results: []*fakeResult{{records: []*neo4j.Record{
		record([]string{"path", "title"}, []any{"refs/x.md", "x"}),
	}}}}
	s := testStore(runner)

	got, err := s.Backlinks(context.Background(), "Target")
	if err != nil {
		t.Fatal(err)
	}
	want := []Note{{Path: "refs/x.md", Title: "x"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if runner.queries[0].params["title"] != "Target" {
		t.Fatalf("params = %v", runner.queries[0].params)
	}
}

func TestTitleFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"projects/ml/Gradient Descent.md", "Gradient Descent"},
		{"inbox.md", "inbox"},
		{"no-extension", "no-extension"},
	}
	for _, tc := range cases {
		if got := TitleFromPath(tc.path); got != tc.want {
			t.Errorf("TitleFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
