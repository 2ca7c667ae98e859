// Command ingest-worker connects to Postgres, Qdrant, Redis, and NATS, then
// consumes ragvault.ingest.document messages and runs each one through the
// ingestion FSM pipeline until it lands in Postgres and Qdrant or exhausts
// its retry budget into the dead-letter subject.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/northlane/ragvault/engine/chunking"
	"github.com/northlane/ragvault/engine/config"
	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/embedding"
	"github.com/northlane/ragvault/engine/ingest"
	"github.com/northlane/ragvault/engine/kv"
	"github.com/northlane/ragvault/engine/rowstore"
	"github.com/northlane/ragvault/engine/semantic"
	"github.com/northlane/ragvault/engine/tokenizer"
	"github.com/northlane/ragvault/pkg/metrics"
)

var met = metrics.New()

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	met.ServeAsync(9091)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rows, err := rowstore.New(ctx, rowstore.Config{
		DSN:       cfg.Postgres.DSN,
		MaxConns:  int(cfg.Postgres.MaxConns),
		VectorDim: cfg.Embedding.Dimensions,
	})
	if err != nil {
		logger.Error("rowstore connect failed", "error", err)
		os.Exit(1)
	}
	defer rows.Close()
	logger.Info("connected to postgres")

	vectors, err := semantic.New(cfg.Qdrant.Addr, "ragvault")
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()
	logger.Info("connected to qdrant", "addr", cfg.Qdrant.Addr)

	cache, err := kv.New(ctx, kv.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("connected to redis")

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		logger.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	logger.Info("connected to nats", "url", cfg.NATS.URL)

	tok, err := tokenizer.New("")
	if err != nil {
		logger.Error("tokenizer init failed", "error", err)
		os.Exit(1)
	}

	provider := embedding.NewOllamaProvider(cfg.Embedding.ProviderURL, cfg.Embedding.Model)
	embedder := embedding.New(provider, cache)
	chunker := chunking.New(tok, chunking.DefaultOptions())

	deps := ingest.Deps{
		RowStore:    rows,
		VectorStore: vectors,
		Parser:      plainTextParser{},
		Chunker:     chunker,
		Embedder:    embedder,
		Fetcher:     localFetcher{},
		Logger:      logger,
	}

	sub, err := ingest.StartConsumer(nc, deps)
	if err != nil {
		logger.Error("start consumer failed", "error", err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()
	logger.Info("ingest-worker consuming", "subject", ingest.IngestSubject)

	<-ctx.Done()
	logger.Info("shutting down")
}

// plainTextParser treats a document's raw bytes as plain text, splitting on
// blank lines into sections. It is a placeholder for the pluggable
// PDF/DOCX/PPTX/TXT parsers the ingestion pipeline was designed to accept;
// wiring a real document-format library is out of scope here.
type plainTextParser struct{}

func (plainTextParser) Parse(_ domain.Document, raw []byte) ([]domain.ParsedSection, error) {
	blocks := strings.Split(string(raw), "\n\n")
	sections := make([]domain.ParsedSection, 0, len(blocks))
	for _, b := range blocks {
		content := strings.TrimSpace(b)
		if content == "" {
			continue
		}
		sections = append(sections, domain.ParsedSection{Content: content})
	}
	return sections, nil
}

// localFetcher reads a document's raw bytes from local disk at the path the
// upload step recorded. Object-storage backing (S3, GCS, ...) is out of
// scope; storage_path is treated as a filesystem path for this harness.
type localFetcher struct{}

func (localFetcher) FetchRaw(_ context.Context, storagePath string) ([]byte, error) {
	data, err := os.ReadFile(storagePath)
	if err != nil {
		return nil, fmt.Errorf("localFetcher: read %s: %w", storagePath, err)
	}
	return data, nil
}
