package rerank

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/resilience"
)

// scriptedEncoder returns canned scores keyed by passage content.
type scriptedEncoder struct {
	scores map[string]float64
	err    error
	calls  int
}

func (e *scriptedEncoder) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = e.scores[p]
	}
	return out, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candidate(path, content string, similarity float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk:      domain.Chunk{SourcePath: path, Content: content},
		Similarity: similarity,
	}
}

func testCandidates() []domain.ScoredChunk {
	return []domain.ScoredChunk{
		candidate("ml.md", "neural network basics", 0.8),
		candidate("data.md", "cleaning tabular data", 0.7),
		candidate("phil.md", "epistemology of science", 0.6),
	}
}

func TestSearchWithRerankCrossHeavyReorders(t *testing.T) {
	encoder := &scriptedEncoder{scores: map[string]float64{
		"neural network basics":    0.2,
		"cleaning tabular data":    0.9,
		"epistemology of science":  0.5,
	}}
	r := New(encoder, DefaultOptions(), discard())

	got, degraded := r.SearchWithRerank(context.Background(), "q", testCandidates(), 2, Preset{})
	if degraded {
		t.Fatal("unexpected degraded mode")
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	// CrossHeavy fusion: data 0.84, phil 0.53, ml 0.38.
	if got[0].SourcePath != "data.md" || got[1].SourcePath != "phil.md" {
		t.Fatalf("order = %s, %s", got[0].SourcePath, got[1].SourcePath)
	}
	if math.Abs(got[0].FinalScore-(0.3*0.7+0.7*0.9)) > 1e-9 {
		t.Fatalf("final score = %v", got[0].FinalScore)
	}
	if got[0].CrossScore != 0.9 {
		t.Fatalf("cross score = %v", got[0].CrossScore)
	}
}

func TestSearchWithRerankShortCircuits(t *testing.T) {
	encoder := &scriptedEncoder{}
	r := New(encoder, DefaultOptions(), discard())
	in := testCandidates()

	got, degraded := r.SearchWithRerank(context.Background(), "q", in, 5, Preset{})
	if degraded {
		t.Fatal("unexpected degraded mode")
	}
	if encoder.calls != 0 {
		t.Fatalf("encoder called %d times for a short-circuit", encoder.calls)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatal("short-circuit should return candidates unchanged")
	}

	// Returned slice is a copy, not an alias.
	got[0].FinalScore = 99
	if in[0].FinalScore == 99 {
		t.Fatal("short-circuit result aliases the input slice")
	}
}

func TestRerankUsesBalancedPreset(t *testing.T) {
	// Similarity favors a, cross-encoder favors b. Balanced keeps a on top,
	// cross-heavy would not.
	encoder := &scriptedEncoder{scores: map[string]float64{"a": 0.0, "b": 1.0}}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("a.md", "a", 1.0), // balanced: 0.6
		candidate("b.md", "b", 0.0), // balanced: 0.4
	}

	got, degraded := r.Rerank(context.Background(), "q", in, 2)
	if degraded {
		t.Fatal("unexpected degraded mode")
	}
	if got[0].SourcePath != "a.md" {
		t.Fatalf("balanced preset should keep a.md first, got %s", got[0].SourcePath)
	}
}

func TestRerankKeepsBestCandidateFirst(t *testing.T) {
	// The canonical case: the best match by similarity is also the best by
	// cross-encoder score, so reranking must not displace it.
	encoder := &scriptedEncoder{scores: map[string]float64{
		"machine learning algorithms overview": 0.95,
		"cleaning tabular data for analysis":   0.75,
		"epistemology of science":              0.10,
	}}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("ml.md", "machine learning algorithms overview", 0.8),
		candidate("data.md", "cleaning tabular data for analysis", 0.7),
		candidate("phil.md", "epistemology of science", 0.6),
	}

	got, degraded := r.Rerank(context.Background(), "machine learning algorithms for data analysis", in, 3)
	if degraded {
		t.Fatal("unexpected degraded mode")
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	want := []string{"ml.md", "data.md", "phil.md"}
	for i := range want {
		if got[i].SourcePath != want[i] {
			t.Fatalf("rank %d = %s, want %s", i, got[i].SourcePath, want[i])
		}
	}
	if got[0].FinalScore <= got[0].Similarity*0.6 {
		t.Fatalf("final score %v did not gain from cross score", got[0].FinalScore)
	}
}

func TestRerankCrossWeightMonotonicity(t *testing.T) {
	// Raising the cross-score weight must never worsen the rank of the
	// candidate the cross-encoder likes best.
	encoder := &scriptedEncoder{scores: map[string]float64{
		"a": 0.1, "b": 0.5, "t": 1.0, "d": 0.2,
	}}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("a.md", "a", 0.9),
		candidate("b.md", "b", 0.7),
		candidate("target.md", "t", 0.5),
		candidate("d.md", "d", 0.3),
	}

	rank := func(results []domain.ScoredChunk) int {
		for i, c := range results {
			if c.SourcePath == "target.md" {
				return i
			}
		}
		return len(in)
	}

	prev := len(in)
	for w := 0.1; w <= 0.9; w += 0.1 {
		preset := Preset{SimilarityWeight: 1 - w, CrossScoreWeight: w}
		got, degraded := r.SearchWithRerank(context.Background(), "q", in, 3, preset)
		if degraded {
			t.Fatal("unexpected degraded mode")
		}
		if cur := rank(got); cur > prev {
			t.Fatalf("cross weight %.1f: rank worsened from %d to %d", w, prev, cur)
		} else {
			prev = cur
		}
	}
	if prev != 0 {
		t.Fatalf("top cross-score candidate ended at rank %d, want 0", prev)
	}
}

func TestRerankDegradedFallback(t *testing.T) {
	encoder := &scriptedEncoder{err: errors.New("encoder down")}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("low.md", "x", 0.2),
		candidate("high.md", "y", 0.9),
		candidate("mid.md", "z", 0.5),
	}

	got, degraded := r.SearchWithRerank(context.Background(), "q", in, 2, Preset{})
	if !degraded {
		t.Fatal("expected degraded mode")
	}
	if got[0].SourcePath != "high.md" || got[1].SourcePath != "mid.md" {
		t.Fatalf("fallback order = %s, %s", got[0].SourcePath, got[1].SourcePath)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := New(&scriptedEncoder{}, DefaultOptions(), discard())
	got, degraded := r.Rerank(context.Background(), "q", nil, 5)
	if got != nil || degraded {
		t.Fatalf("got (%v, %v)", got, degraded)
	}
}

func TestRerankStableOnTies(t *testing.T) {
	encoder := &scriptedEncoder{scores: map[string]float64{"x": 0.5, "y": 0.5, "z": 0.5}}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("first.md", "x", 0.5),
		candidate("second.md", "y", 0.5),
		candidate("third.md", "z", 0.5),
	}

	got, _ := r.Rerank(context.Background(), "q", in, 3)
	want := []string{"first.md", "second.md", "third.md"}
	for i := range want {
		if got[i].SourcePath != want[i] {
			t.Fatalf("tie order changed: got %s at %d", got[i].SourcePath, i)
		}
	}
}

func TestAnalyze(t *testing.T) {
	encoder := &scriptedEncoder{scores: map[string]float64{"a": 1.0, "b": 0.0}}
	r := New(encoder, DefaultOptions(), discard())
	in := []domain.ScoredChunk{
		candidate("a.md", "a", 0.5), // final 0.7, improvement +0.2
		candidate("b.md", "b", 0.5), // final 0.3, improvement -0.2
	}

	analysis, err := r.Analyze(context.Background(), "q", in)
	if err != nil {
		t.Fatal(err)
	}
	if len(analysis.Candidates) != 2 {
		t.Fatalf("candidates = %d", len(analysis.Candidates))
	}
	if math.Abs(analysis.MaxImprovement-0.2) > 1e-9 || math.Abs(analysis.MinImprovement+0.2) > 1e-9 {
		t.Fatalf("improvements = [%v, %v]", analysis.MinImprovement, analysis.MaxImprovement)
	}
	if math.Abs(analysis.AvgImprovement) > 1e-9 {
		t.Fatalf("avg improvement = %v, want 0", analysis.AvgImprovement)
	}
}

func TestAnalyzeSurfacesErrors(t *testing.T) {
	r := New(&scriptedEncoder{err: errors.New("down")}, DefaultOptions(), discard())
	if _, err := r.Analyze(context.Background(), "q", testCandidates()); err == nil {
		t.Fatal("expected error")
	}
}

func TestWithBreakerOpensAfterFailures(t *testing.T) {
	inner := &scriptedEncoder{err: errors.New("down")}
	encoder := WithBreaker(inner, resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute}))

	for i := 0; i < 2; i++ {
		encoder.Score(context.Background(), "q", []string{"x"})
	}
	calls := inner.calls

	_, err := encoder.Score(context.Background(), "q", []string{"x"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if inner.calls != calls {
		t.Fatal("open breaker should not reach the encoder")
	}
}
