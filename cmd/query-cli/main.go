// Command query-cli is a manual smoke-test harness over the chat
// orchestrator: it wires the full query pipeline against live Postgres,
// Qdrant, and Redis, reads one question from the command line, and prints
// the shaped answer with its sources and total latency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/northlane/ragvault/engine/config"
	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/embedding"
	"github.com/northlane/ragvault/engine/generation"
	"github.com/northlane/ragvault/engine/kv"
	"github.com/northlane/ragvault/engine/rag"
	"github.com/northlane/ragvault/engine/resilience"
	"github.com/northlane/ragvault/engine/retrieval"
	"github.com/northlane/ragvault/engine/rowstore"
	"github.com/northlane/ragvault/engine/semantic"
	"github.com/northlane/ragvault/engine/tokenizer"
)

func main() {
	var (
		tenantID   = flag.String("tenant", "", "tenant id to query as (required)")
		query      = flag.String("q", "", "question to ask (required)")
		documentID = flag.String("document", "", "restrict retrieval to one document id")
		topK       = flag.Int("top-k", 0, "override the default top_k")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *tenantID == "" || *query == "" {
		fmt.Fprintln(os.Stderr, "usage: query-cli -tenant <id> -q <question> [-document <id>] [-top-k <n>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

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

	vectors, err := semantic.New(cfg.Qdrant.Addr, "ragvault")
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()

	cache, err := kv.New(ctx, kv.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	tok, err := tokenizer.New("")
	if err != nil {
		logger.Error("tokenizer init failed", "error", err)
		os.Exit(1)
	}

	provider := embedding.NewOllamaProvider(cfg.Embedding.ProviderURL, cfg.Embedding.Model)
	embedder := embedding.New(provider, cache)
	retriever := retrieval.New(vectors, rows, embedder)
	generator := generation.NewGenerator(ollamaChatClient{baseURL: cfg.Chat.ProviderURL, model: cfg.Chat.Model})

	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	quota := resilience.NewQuotaManager(rows, resilience.QuotaOpts{
		DailyTokenLimit: cfg.Quota.DailyTokenLimit,
		DailyCostLimit:  cfg.Quota.DailyCostLimit,
	})
	shedder := resilience.NewLoadShedder(resilience.LoadShedderOpts{})

	opts := rag.DefaultOptions()
	opts.ModelName = cfg.Chat.Model
	opts.RateLimitPerWindow = float64(cfg.RateLimit.RequestsPerWindow)
	opts.RateLimitWindow = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second

	svc := rag.New(retriever, tok, generator, breaker, quota, shedder, cache, rows, opts, logger)

	resp, err := svc.Query(ctx, rag.Request{
		TenantID:   *tenantID,
		Query:      *query,
		DocumentID: *documentID,
		TopK:       *topK,
	})
	if err != nil {
		logger.Error("query failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(resp.Answer)
	fmt.Println()
	for _, s := range resp.Sources {
		fmt.Printf("[Source %d] %s (chunk %s, score %.3f)\n", s.SourceNumber, s.DocumentID, s.ChunkID, s.Score)
	}
	fmt.Printf("\nconfidence=%.2f latency_ms=%d interaction_id=%s\n", resp.Confidence, resp.LatencyMS, resp.InteractionID)
	for _, w := range resp.Warnings {
		fmt.Println("warning:", w)
	}
}

// ollamaChatClient implements generation.Client over Ollama's non-streaming
// chat endpoint, the way cmd/chat talked to Ollama before this binary
// became a CLI harness over the orchestrator instead of an HTTP server.
type ollamaChatClient struct {
	baseURL string
	model   string
	client  http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (c ollamaChatClient) Generate(ctx context.Context, req generation.Request) (generation.Response, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model: c.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Stream:  false,
		Options: map[string]any{"temperature": req.Temperature, "num_predict": req.MaxOutputTokens},
	})
	if err != nil {
		return generation.Response{}, domain.NewFailure(domain.KindInput, "encode ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return generation.Response{}, domain.NewFailure(domain.KindInput, "build ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return generation.Response{}, domain.NewFailure(domain.KindDependencyTransient, "ollama unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return generation.Response{}, domain.NewFailure(domain.KindDependencyTransient, fmt.Sprintf("ollama returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return generation.Response{}, domain.NewFailure(domain.KindDependencyFatal, fmt.Sprintf("ollama returned %d", resp.StatusCode), nil)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return generation.Response{}, domain.NewFailure(domain.KindDependencyTransient, "decode ollama response", err)
	}

	return generation.Response{
		Text:             out.Message.Content,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
		TotalTokens:      out.PromptEvalCount + out.EvalCount,
		LatencyMS:        time.Since(start).Milliseconds(),
		ModelID:          c.model,
	}, nil
}
