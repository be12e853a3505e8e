// Command ingest consumes vault document events from NATS and runs them
// through the chunk/embed/store pipeline into Qdrant and Neo4j.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/VaultPilotAI/vaultpilot-mvp/engine/chunker"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/graph"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/ingest"
	"github.com/VaultPilotAI/vaultpilot-mvp/engine/semantic"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/metrics"
	"github.com/VaultPilotAI/vaultpilot-mvp/pkg/ollama"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"
)

var met = metrics.New()

func main() {
	var (
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		ollamaModel = flag.String("model", "nomic-embed-text", "Ollama embedding model")
		vectorDims  = flag.Int("dims", 768, "embedding dimensions")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "password", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "vaultpilot", "Qdrant collection name")
		maxChunk    = flag.Int("max-chunk", 512, "max chunk size in tokens")
		overlap     = flag.Int("overlap", 50, "chunk overlap in tokens")
		embedRPS    = flag.Float64("embed-rps", 5, "embedding batches per second")
		metricsPort = flag.Int("metrics-port", 9091, "metrics HTTP port")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	met.ServeAsync(*metricsPort, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		log.Error("neo4j connect failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Error("neo4j verify failed", "err", err)
		os.Exit(1)
	}
	log.Info("connected to Neo4j")

	// Connect Qdrant
	vs, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, *vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "err", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *vectorDims)

	// Connect NATS
	nc, err := nats.Connect(*natsURL, nats.Name("vaultpilot-ingest"))
	if err != nil {
		log.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Drain()
	log.Info("connected to NATS", "url", *natsURL)

	ck, err := chunker.New(chunker.Config{MaxChunkSize: *maxChunk, ChunkOverlap: *overlap})
	if err != nil {
		log.Error("invalid chunker config", "err", err)
		os.Exit(1)
	}

	deps := ingest.Deps{
		Chunker:      ck,
		Embedder:     ollama.NewEmbedClient(*ollamaURL, *ollamaModel),
		VectorStore:  &meteredVectorStore{inner: vs},
		Graph:        graph.New(driver),
		EmbedLimiter: rate.NewLimiter(rate.Limit(*embedRPS), 1),
		Logger:       log,
	}

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		log.Error("subscribe failed", "err", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	log.Info("ingest worker running", "subject", ingest.DocsSubject)
	<-ctx.Done()
	log.Info("shutting down")
}

// meteredVectorStore counts vector store writes.
type meteredVectorStore struct {
	inner *semantic.VectorStore
}

var (
	mUpserts = met.Counter("vaultpilot_ingest_upserts_total", "Vector record batches upserted")
	mDeletes = met.Counter("vaultpilot_ingest_deletes_total", "Per-path chunk deletions")
)

func (m *meteredVectorStore) Upsert(ctx context.Context, records []semantic.VectorRecord) error {
	if err := m.inner.Upsert(ctx, records); err != nil {
		return err
	}
	mUpserts.Inc()
	return nil
}

func (m *meteredVectorStore) DeleteBySourcePath(ctx context.Context, path string) error {
	if err := m.inner.DeleteBySourcePath(ctx, path); err != nil {
		return err
	}
	mDeletes.Inc()
	return nil
}
