// Package rag orchestrates the retrieval pipeline: embed the query,
// over-fetch candidates from the vector store, filter, rerank, and return
// ranked chunks with a full score audit trail. Each call is pure
// request/response; the only shared state is the bounded query and embedding
// caches.
package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/filter"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/rerank"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/semantic"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/cache"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/fn"
)

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher abstracts the vector store's query side.
type VectorSearcher interface {
	Query(ctx context.Context, embedding []float32, k int, f semantic.Filter) ([]domain.ScoredChunk, error)
}

// Reranker fuses cross-encoder scores with similarity. The bool return
// reports degraded mode; it never errors.
type Reranker interface {
	SearchWithRerank(ctx context.Context, query string, candidates []domain.ScoredChunk, n int, preset rerank.Preset) ([]domain.ScoredChunk, bool)
}

// TopicClassifier detects the query topic and exposes topic keyword lists.
type TopicClassifier interface {
	DetectTopic(ctx context.Context, query string) (string, error)
	Keywords(topic string) []string
}

// QueryExpander optionally rewrites the query before embedding (synonyms,
// LLM expansion). Failures never fail the search.
type QueryExpander interface {
	Expand(ctx context.Context, query string) (string, error)
}

// RelatedNoteFinder surfaces link-graph neighbors of the result notes.
type RelatedNoteFinder interface {
	RelatedNotes(ctx context.Context, notePaths []string, limit int) ([]domain.RelatedNote, error)
}

// ResultCache is the query-result cache contract, satisfied by both the
// in-memory and Redis caches.
type ResultCache interface {
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) (domain.SearchResult, error)) (domain.SearchResult, bool, error)
}

// Options configures the orchestrator.
type Options struct {
	// DefaultK is the result count when the request leaves K zero.
	DefaultK int
	// OverFetchFactor times K candidates are fetched for reranking.
	OverFetchFactor int
	// SearchTimeout bounds each vector store attempt.
	SearchTimeout time.Duration
	// Retry governs vector store retries with exponential backoff.
	Retry fn.RetryOpts
	// RelatedLimit caps link-graph enrichment entries.
	RelatedLimit int
	// EmbedCacheSize / EmbedCacheTTL bound the embedding cache.
	EmbedCacheSize int
	EmbedCacheTTL  time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DefaultK:        5,
		OverFetchFactor: 4,
		SearchTimeout:   5 * time.Second,
		Retry:           fn.RetryOpts{MaxAttempts: 3, InitialWait: 200 * time.Millisecond, MaxWait: 2 * time.Second, Jitter: true},
		RelatedLimit:    5,
		EmbedCacheSize:  4096,
		EmbedCacheTTL:   30 * time.Minute,
	}
}

// Service is the retrieval orchestrator.
type Service struct {
	embed      Embedder
	store      VectorSearcher
	reranker   Reranker
	topics     TopicClassifier
	expander   QueryExpander     // optional
	related    RelatedNoteFinder // optional
	results    ResultCache
	embeddings *cache.Cache[[]float32]
	opts       Options
	logger     *slog.Logger
}

// New creates the orchestrator. expander and related may be nil; results may
// be nil to disable query-result caching.
func New(embed Embedder, store VectorSearcher, reranker Reranker, topics TopicClassifier, results ResultCache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultOptions().DefaultK
	}
	if opts.OverFetchFactor <= 0 {
		opts.OverFetchFactor = DefaultOptions().OverFetchFactor
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultOptions().Retry
	}
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = DefaultOptions().RelatedLimit
	}
	if opts.EmbedCacheSize <= 0 {
		opts.EmbedCacheSize = DefaultOptions().EmbedCacheSize
	}
	if opts.EmbedCacheTTL <= 0 {
		opts.EmbedCacheTTL = DefaultOptions().EmbedCacheTTL
	}
	return &Service{
		embed:      embed,
		store:      store,
		reranker:   reranker,
		topics:     topics,
		results:    results,
		embeddings: cache.New[[]float32](opts.EmbedCacheSize, opts.EmbedCacheTTL),
		opts:       opts,
		logger:     logger,
	}
}

// WithExpander sets the optional query expander.
func (s *Service) WithExpander(e QueryExpander) *Service {
	s.expander = e
	return s
}

// WithRelatedNotes sets the optional link-graph enrichment source.
func (s *Service) WithRelatedNotes(r RelatedNoteFinder) *Service {
	s.related = r
	return s
}

// Search runs the full retrieval pipeline for a request. Identical requests
// within the cache TTL are served from the cache without touching any
// collaborator.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	if err := domain.ValidateSearchRequest(req); err != nil {
		return domain.SearchResult{}, fmt.Errorf("rag: invalid request: %w", err)
	}

	if s.results == nil {
		return s.search(ctx, req)
	}

	res, hit, err := s.results.GetOrCompute(ctx, cacheKey(req), func(ctx context.Context) (domain.SearchResult, error) {
		return s.search(ctx, req)
	})
	if err != nil {
		return domain.SearchResult{}, err
	}
	res.CacheHit = hit
	return res, nil
}

func (s *Service) search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	res := domain.SearchResult{Query: req.Query}
	timed := stageTimer(&res)
	degrade := func(stage string) {
		res.Degraded = true
		res.DegradedStages = append(res.DegradedStages, stage)
	}

	k := req.K
	if k <= 0 {
		k = s.opts.DefaultK
	}
	rerankTopK := req.RerankTopK
	if rerankTopK <= 0 {
		rerankTopK = k * s.opts.OverFetchFactor
	}

	// 1. Optional query expansion; failure proceeds with the raw query.
	query := req.Query
	if req.ExpandQuery && s.expander != nil {
		done := timed("expand")
		expanded, err := s.expander.Expand(ctx, req.Query)
		done()
		if err != nil {
			s.logger.Warn("rag: query expansion failed, using raw query", "err", err)
			degrade("expand")
		} else if expanded != "" {
			query = expanded
			res.ExpandedQuery = expanded
		}
	}

	// 2. Embed the query (cached).
	done := timed("embed")
	vec, _, err := s.embeddings.GetOrCompute(ctx, query, func(ctx context.Context) ([]float32, error) {
		return s.embed.Embed(ctx, query)
	})
	done()
	if err != nil {
		return res, &domain.EmbeddingError{Err: err}
	}

	// 3. Over-fetch candidates, with retry; a vector store failure after
	// retries fails the whole request.
	done = timed("retrieve")
	candidates, err := s.queryStore(ctx, vec, rerankTopK, vectorFilter(req.Filters))
	done()
	if err != nil {
		return res, err
	}

	// 4. Topic classification + explicit filters.
	done = timed("classify")
	detected, terr := s.topics.DetectTopic(ctx, query)
	done()
	if terr != nil {
		s.logger.Warn("rag: topic detection failed", "err", terr)
		detected = ""
	}
	res.Topic = detected

	done = timed("filter")
	filtered, applied := filter.Smart(ctx, candidates, query, req.Filters, detectedTopic{name: detected, keywords: s.topics})
	done()
	res.FiltersApplied = applied

	// 5. Rerank and truncate to K.
	preset := rerank.Preset{}
	if req.SimilarityWeight > 0 || req.CrossScoreWeight > 0 {
		preset = rerank.Preset{SimilarityWeight: req.SimilarityWeight, CrossScoreWeight: req.CrossScoreWeight}
	}
	done = timed("rerank")
	ranked, degraded := s.reranker.SearchWithRerank(ctx, query, filtered, k, preset)
	done()
	if degraded {
		degrade("rerank")
	}
	res.Chunks = ranked

	// 6. Optional link-graph enrichment; never fails the search.
	if s.related != nil && len(ranked) > 0 {
		done = timed("related")
		related, rerr := s.related.RelatedNotes(ctx, uniquePaths(ranked), s.opts.RelatedLimit)
		done()
		if rerr != nil {
			s.logger.Warn("rag: related-notes enrichment failed, continuing without", "err", rerr)
		} else {
			res.Related = related
		}
	}

	return res, nil
}

// queryStore retries the vector store with bounded exponential backoff, each
// attempt under its own timeout.
func (s *Service) queryStore(ctx context.Context, vec []float32, k int, f semantic.Filter) ([]domain.ScoredChunk, error) {
	result := fn.Retry(ctx, s.opts.Retry, func(ctx context.Context) fn.Result[[]domain.ScoredChunk] {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
		return fn.FromPair(s.store.Query(attemptCtx, vec, k, f))
	})
	chunks, err := result.Unwrap()
	if err != nil {
		if _, ok := err.(*domain.VectorStoreError); ok {
			return nil, err
		}
		return nil, &domain.VectorStoreError{Op: "query", Err: err}
	}
	return chunks, nil
}

// vectorFilter pushes the filters the store can evaluate down into the
// query; everything else applies post-retrieval in filter.Smart.
func vectorFilter(specs []domain.FilterSpec) semantic.Filter {
	var f semantic.Filter
	for _, spec := range specs {
		switch v := spec.(type) {
		case domain.DateRangeFilter:
			f.ModifiedAfter = v.From
			f.ModifiedBefore = v.To
		case domain.FileTypeFilter:
			if len(v.Types) == 1 {
				if f.Equals == nil {
					f.Equals = make(map[string]string)
				}
				f.Equals["file_type"] = v.Types[0]
			}
		}
	}
	return f
}

// detectedTopic adapts an already-detected topic to filter.TopicDetector so
// Smart doesn't re-embed the query.
type detectedTopic struct {
	name     string
	keywords TopicClassifier
}

func (d detectedTopic) DetectTopic(context.Context, string) (string, error) {
	return d.name, nil
}

func (d detectedTopic) Keywords(topic string) []string {
	return d.keywords.Keywords(topic)
}

// stageTimer appends a StageTiming per completed stage.
func stageTimer(res *domain.SearchResult) func(stage string) func() {
	return func(stage string) func() {
		start := time.Now()
		return func() {
			res.Timings = append(res.Timings, domain.StageTiming{Stage: stage, Duration: time.Since(start)})
		}
	}
}

func uniquePaths(chunks []domain.ScoredChunk) []string {
	return fn.Unique(fn.Map(chunks, func(c domain.ScoredChunk) string { return c.SourcePath }))
}

// cacheKey canonicalizes a request into a stable cache key.
func cacheKey(req domain.SearchRequest) string {
	parts := []string{
		req.Query,
		fmt.Sprintf("k=%d", req.K),
		fmt.Sprintf("sw=%.4f", req.SimilarityWeight),
		fmt.Sprintf("cw=%.4f", req.CrossScoreWeight),
		fmt.Sprintf("ex=%t", req.ExpandQuery),
		fmt.Sprintf("rtk=%d", req.RerankTopK),
	}
	filters := make([]string, 0, len(req.Filters))
	for _, f := range req.Filters {
		filters = append(filters, fmt.Sprintf("%s:%+v", f.Kind(), f))
	}
	sort.Strings(filters)
	parts = append(parts, filters...)

	h := fnv.New64a()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h.Sum64())
}

// FormatContext renders ranked chunks as context strings for an LLM
// synthesis step.
func FormatContext(res domain.SearchResult) []string {
	return fn.Map(res.Chunks, func(c domain.ScoredChunk) string {
		return fmt.Sprintf("[%s] %s (score: %.3f)\n%s", c.ID(), c.Heading, c.FinalScore, c.Content)
	})
}
