// Package main implements the VaultPilot search API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/domain"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/graph"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/rag"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/rerank"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/semantic"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/topic"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/cache"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/metrics"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/mid"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/ollama"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/resilience"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/tei"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var met = metrics.New()

var (
	mSearches  = met.Counter("vaultpilot_api_searches_total", "Total search requests")
	mErrors    = met.Counter("vaultpilot_api_search_errors_total", "Failed search requests")
	mCacheHits = met.Counter("vaultpilot_api_cache_hits_total", "Searches served from cache")
	mDegraded  = met.Counter("vaultpilot_api_degraded_total", "Searches that fell back to a degraded stage")
	mSearchDur = met.Histogram("vaultpilot_api_search_duration_seconds", "Search latency", nil)
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	OllamaURL  string
	EmbedModel string
	VectorDims int
	RerankURL  string
	QdrantURL  string
	Collection string
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	RedisURL   string // empty disables the shared result cache
	CORSOrigin string
	RateRPS    float64
	CacheTTL   time.Duration
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		OllamaURL:  envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel: envOr("EMBED_MODEL", "nomic-embed-text"),
		VectorDims: envInt("VECTOR_DIMS", 768),
		RerankURL:  envOr("RERANK_URL", "http://localhost:8081"),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "vaultpilot"),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		RedisURL:   envOr("REDIS_URL", ""),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		RateRPS:    envFloat("RATE_LIMIT_RPS", 20),
		CacheTTL:   envDuration("CACHE_TTL", 10*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Embedder + topic anchors ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel)
	topics, err := topic.New(ctx, embedder, topic.DefaultAnchors(), logger)
	if err != nil {
		return fmt.Errorf("topic anchors: %w", err)
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.VectorDims); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	// --- Cross-encoder behind a circuit breaker ---
	encoder := rerank.WithBreaker(tei.NewRerankClient(cfg.RerankURL), resilience.NewBreaker(resilience.DefaultBreakerOpts))
	reranker := rerank.New(encoder, rerank.DefaultOptions(), logger)

	// --- Result cache: Redis when configured, in-process LRU otherwise ---
	var results rag.ResultCache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		results = cache.NewRedis[domain.SearchResult](rdb, "vaultpilot:search", cfg.CacheTTL)
		logger.Info("using redis result cache", "addr", cfg.RedisURL)
	} else {
		results = cache.New[domain.SearchResult](1024, cfg.CacheTTL)
	}

	svc := rag.New(embedder, vectorStore, reranker, topics, results, rag.DefaultOptions(), logger)

	// --- Link graph is enrichment only: a missing Neo4j degrades, not fails ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err == nil {
		err = driver.VerifyConnectivity(ctx)
	}
	var linkStore *graph.LinkStore
	if err != nil {
		logger.Warn("neo4j unavailable, related notes disabled", "err", err)
	} else {
		defer driver.Close(ctx)
		linkStore = graph.New(driver)
		svc.WithRelatedNotes(linkStore)
	}

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search", handleSearch(svc, logger))
	if linkStore != nil {
		mux.HandleFunc("GET /api/backlinks/{title}", handleBacklinks(linkStore, logger))
	}
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("vaultpilot-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateRPS), int(cfg.RateRPS)*2)),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query            string   `json:"query"`
	K                int      `json:"k,omitempty"`
	SimilarityWeight float64  `json:"similarity_weight,omitempty"`
	CrossScoreWeight float64  `json:"cross_score_weight,omitempty"`
	ExpandQuery      bool     `json:"expand_query,omitempty"`
	RerankTopK       int      `json:"rerank_top_k,omitempty"`
	Topic            string   `json:"topic,omitempty"`
	FileTypes        []string `json:"file_types,omitempty"`
	From             string   `json:"from,omitempty"` // YYYY-MM-DD
	To               string   `json:"to,omitempty"`
	MinWords         int      `json:"min_words,omitempty"`
	MaxWords         int      `json:"max_words,omitempty"`
	HeadingKeywords  []string `json:"heading_keywords,omitempty"`
	MinQuality       float64  `json:"min_quality,omitempty"`
}

func (r SearchRequest) toDomain() (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Query:            r.Query,
		K:                r.K,
		SimilarityWeight: r.SimilarityWeight,
		CrossScoreWeight: r.CrossScoreWeight,
		ExpandQuery:      r.ExpandQuery,
		RerankTopK:       r.RerankTopK,
	}
	if r.Topic != "" {
		req.Filters = append(req.Filters, domain.TopicFilter{Topic: r.Topic})
	}
	if len(r.FileTypes) > 0 {
		req.Filters = append(req.Filters, domain.FileTypeFilter{Types: r.FileTypes})
	}
	if r.From != "" || r.To != "" {
		var dr domain.DateRangeFilter
		var err error
		if r.From != "" {
			if dr.From, err = time.Parse(time.DateOnly, r.From); err != nil {
				return req, fmt.Errorf("parse from date: %w", err)
			}
		}
		if r.To != "" {
			if dr.To, err = time.Parse(time.DateOnly, r.To); err != nil {
				return req, fmt.Errorf("parse to date: %w", err)
			}
		}
		req.Filters = append(req.Filters, dr)
	}
	if r.MinWords > 0 || r.MaxWords > 0 {
		req.Filters = append(req.Filters, domain.WordCountFilter{Min: r.MinWords, Max: r.MaxWords})
	}
	if len(r.HeadingKeywords) > 0 {
		req.Filters = append(req.Filters, domain.HeadingFilter{Keywords: r.HeadingKeywords})
	}
	if r.MinQuality > 0 {
		req.Filters = append(req.Filters, domain.QualityFilter{MinScore: r.MinQuality})
	}
	return req, nil
}

func handleSearch(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req, err := body.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		mSearches.Inc()
		start := time.Now()
		res, err := svc.Search(r.Context(), req)
		mSearchDur.Since(start)
		if err != nil {
			mErrors.Inc()
			var specErr *domain.FilterSpecError
			switch {
			case errors.Is(err, domain.ErrEmptyQuery),
				errors.Is(err, domain.ErrInvalidK),
				errors.Is(err, domain.ErrInvalidWeights),
				errors.As(err, &specErr):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				logger.Error("search failed", "query", req.Query, "err", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}
		if res.CacheHit {
			mCacheHits.Inc()
		}
		if res.Degraded {
			mDegraded.Inc()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

func handleBacklinks(store *graph.LinkStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := r.PathValue("title")
		if title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		notes, err := store.Backlinks(r.Context(), title)
		if err != nil {
			logger.Error("backlinks lookup failed", "title", title, "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"title": title, "backlinks": notes})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
