// Package rag is the chat orchestrator: the sole composition point that
// turns a tenant's question into a cited, validated answer. It accepts a
// query, runs it through the protection gates, retrieves and ranks context,
// builds a prompt, generates an answer through the circuit breaker, and
// validates the result before persisting and shaping the response.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/northlane/ragvault/engine/cost"
	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/generation"
	"github.com/northlane/ragvault/engine/kv"
	"github.com/northlane/ragvault/engine/resilience"
	"github.com/northlane/ragvault/engine/retrieval"
	"github.com/northlane/ragvault/engine/rowstore"
	"github.com/northlane/ragvault/engine/tokenizer"
	"github.com/northlane/ragvault/pkg/fn"
)

// cannedNoDocumentsAnswer is returned, with confidence 0 and no persisted
// interaction, whenever retrieval comes back empty for a tenant.
const cannedNoDocumentsAnswer = "I don't have enough information in the provided sources to answer this question."

// Retriever is the subset of engine/retrieval.HybridRetriever the
// orchestrator calls.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query, documentID string) ([]retrieval.RetrievalResult, error)
}

// RateLimiter is the subset of engine/kv.Store the orchestrator calls.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID string, rate float64, window time.Duration) kv.RateLimitResult
}

// Store is the subset of engine/rowstore.Store the orchestrator calls to
// persist interactions and feedback.
type Store interface {
	InsertChatInteraction(ctx context.Context, interaction domain.ChatInteraction) (string, error)
	UpsertFeedback(ctx context.Context, tenantID string, feedback domain.ChatFeedback) error
}

var (
	_ Retriever   = (*retrieval.HybridRetriever)(nil)
	_ RateLimiter = (*kv.Store)(nil)
	_ Store       = (*rowstore.Store)(nil)
)

// Options configures the orchestrator's defaults. Per-request top_k may
// override TopK; everything else is fixed for the service's lifetime.
type Options struct {
	TopK               int
	Temperature        float64
	MaxOutputTokens    int
	ModelMaxTokens     int
	ModelName          string
	RateLimitPerWindow float64
	RateLimitWindow    time.Duration
}

// DefaultOptions mirrors the protection layer's stated defaults (10
// requests per 60s, 1024-token answers) and a Gemini 1.5 Flash-sized
// context window.
func DefaultOptions() Options {
	return Options{
		TopK:               5,
		Temperature:        0.3,
		MaxOutputTokens:    1024,
		ModelMaxTokens:     32000,
		ModelName:          "gemini-1.5-flash",
		RateLimitPerWindow: 10,
		RateLimitWindow:    60 * time.Second,
	}
}

// Service is the chat orchestrator for one deployment. It is safe for
// concurrent use; all mutable state lives in its injected dependencies.
type Service struct {
	retriever Retriever
	tok       *tokenizer.Tokenizer
	generator *generation.Generator
	breaker   *resilience.Breaker
	quota     *resilience.QuotaManager
	shedder   *resilience.LoadShedder
	limiter   RateLimiter
	store     Store
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New wires the orchestrator's dependencies.
func New(retriever Retriever, tok *tokenizer.Tokenizer, generator *generation.Generator, breaker *resilience.Breaker, quota *resilience.QuotaManager, shedder *resilience.LoadShedder, limiter RateLimiter, store Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		tok:       tok,
		generator: generator,
		breaker:   breaker,
		quota:     quota,
		shedder:   shedder,
		limiter:   limiter,
		store:     store,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Request is one chat query.
type Request struct {
	TenantID   string
	Query      string
	DocumentID string
	// TopK overrides Options.TopK when positive.
	TopK int
}

// Source is one cited chunk in a Response, numbered the way the answer
// references it ([Source N]).
type Source struct {
	SourceNumber int
	ChunkID      string
	DocumentID   string
	SectionTitle string
	PageNumber   *int
	Score        float64
}

// Response is the orchestrator's shaped reply.
type Response struct {
	InteractionID string
	Answer        string
	Citations     []int
	Confidence    float64
	Sources       []Source
	Usage         domain.TokenUsage
	LatencyMS     int64
	Warnings      []string
}

// FeedbackResponse is returned after recording feedback on a prior interaction.
type FeedbackResponse struct {
	Success    bool
	Message    string
	FeedbackID string
}

// Query runs the full orchestration: gates, classify/retrieve, optimize and
// prompt, generate through the breaker, validate, persist, and shape the
// response. A typed domain.Failure is returned for every gate rejection and
// every stage error; callers translate Kind to a transport status.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	start := s.now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if err := s.checkGates(ctx, req.TenantID); err != nil {
		return nil, err
	}

	topK := s.opts.TopK
	if req.TopK > 0 {
		topK = req.TopK
	}
	load := s.shedder.CheckLoad(topK, s.opts.MaxOutputTokens)
	degraded := load.Degradation

	retrieveCtx, cancel := context.WithTimeout(ctx, degraded.RetrievalTimeout)
	retrievalStart := s.now()
	results, err := s.retriever.Retrieve(retrieveCtx, req.TenantID, req.Query, req.DocumentID)
	cancel()
	retrievalMS := s.now().Sub(retrievalStart).Milliseconds()
	if err != nil {
		return nil, domain.NewFailure(domain.KindDependencyTransient, "retrieval failed", err)
	}

	if len(results) == 0 {
		s.logger.Info("rag.empty_retrieval", "tenant_id", req.TenantID)
		return &Response{
			Answer:     cannedNoDocumentsAnswer,
			Citations:  []int{},
			Confidence: 0,
			Sources:    []Source{},
			LatencyMS:  s.now().Sub(start).Milliseconds(),
			Warnings:   []string{"No relevant documents found for query"},
		}, nil
	}
	if len(results) > degraded.TopK {
		results = results[:degraded.TopK]
	}

	prompt, err := generation.Build(s.tok, req.Query, results, s.opts.ModelMaxTokens, degraded.MaxOutputTokens)
	if err != nil {
		return nil, domain.NewFailure(domain.KindInput, "prompt build failed", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, degraded.GenerationTimeout)
	defer cancel()
	generationStart := s.now()
	genResp, err := s.generateThroughBreaker(genCtx, prompt, degraded)
	generationMS := s.now().Sub(generationStart).Milliseconds()
	if err != nil {
		return nil, err
	}

	validation := generation.Validate(genResp.Text, prompt.SourceMapping)
	costEstimate := cost.Estimate(s.opts.ModelName, genResp.PromptTokens, genResp.CompletionTokens)
	totalMS := s.now().Sub(start).Milliseconds()

	interaction := domain.ChatInteraction{
		TenantID:      req.TenantID,
		Query:         req.Query,
		Answer:        genResp.Text,
		Confidence:    validation.Confidence,
		CitationCount: len(validation.Citations),
		Latency:       domain.LatencyBreakdown{TotalMS: totalMS, RetrievalMS: retrievalMS, GenerationMS: generationMS},
		Usage:         domain.TokenUsage{PromptTokens: genResp.PromptTokens, CompletionTokens: genResp.CompletionTokens, TotalTokens: genResp.TotalTokens},
		ModelName:     s.opts.ModelName,
		CostEstimate:  costEstimate,
	}
	interactionID, err := s.store.InsertChatInteraction(ctx, interaction)
	if err != nil {
		s.logger.Error("rag.persist_interaction_failed", "tenant_id", req.TenantID, "error", err)
		return nil, fmt.Errorf("rag: persist interaction: %w", err)
	}

	return &Response{
		InteractionID: interactionID,
		Answer:        genResp.Text,
		Citations:     validation.Citations,
		Confidence:    validation.Confidence,
		Sources:       buildSources(prompt.SourceMapping),
		Usage:         interaction.Usage,
		LatencyMS:     totalMS,
		Warnings:      validation.Warnings,
	}, nil
}

// SubmitFeedback records a rating (and optional comment) against a prior
// interaction, generating the feedback's id.
func (s *Service) SubmitFeedback(ctx context.Context, tenantID, interactionID string, rating int, comment string) (*FeedbackResponse, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.NewFailure(domain.KindInput, "rating must be between 1 and 5", nil)
	}
	feedback := domain.ChatFeedback{
		ID:            uuid.NewString(),
		InteractionID: interactionID,
		Rating:        rating,
		Comment:       comment,
	}
	if err := s.store.UpsertFeedback(ctx, tenantID, feedback); err != nil {
		return nil, fmt.Errorf("rag: submit feedback: %w", err)
	}
	return &FeedbackResponse{Success: true, Message: "feedback recorded", FeedbackID: feedback.ID}, nil
}

// checkGates runs the rate limiter and quota manager, in that order, the
// two gates that can fail open on a backing-store outage. The circuit
// breaker and load shedder are evaluated inline around the calls they guard.
func (s *Service) checkGates(ctx context.Context, tenantID string) error {
	rl := s.limiter.CheckRateLimit(ctx, tenantID, s.opts.RateLimitPerWindow, s.opts.RateLimitWindow)
	if !rl.Allowed {
		return domain.NewFailure(domain.KindCapacity, fmt.Sprintf("rate limit exceeded, retry after %s", rl.RetryAfter), nil)
	}

	status := s.quota.CheckQuota(ctx, tenantID)
	if status.Exceeded {
		return resilience.QuotaExceededFailure(status)
	}
	return nil
}

// generateThroughBreaker calls the generator through the circuit breaker,
// applying the load shedder's degraded temperature for this request.
func (s *Service) generateThroughBreaker(ctx context.Context, prompt generation.Prompt, degraded resilience.DegradationConfig) (generation.Response, error) {
	result := resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[generation.Response] {
		resp, err := s.generator.Generate(ctx, generation.Request{
			SystemPrompt:    prompt.SystemPrompt,
			UserPrompt:      prompt.UserPrompt,
			Temperature:     degraded.Temperature,
			MaxOutputTokens: degraded.MaxOutputTokens,
		})
		if err != nil {
			return fn.Err[generation.Response](err)
		}
		return fn.Ok(resp)
	})
	return result.Unwrap()
}

func buildSources(mapping map[int]generation.SourceMeta) []Source {
	sources := make([]Source, 0, len(mapping))
	for n := 1; n <= len(mapping); n++ {
		meta, ok := mapping[n]
		if !ok {
			continue
		}
		sources = append(sources, Source{
			SourceNumber: n,
			ChunkID:      meta.ChunkID,
			DocumentID:   meta.DocumentID,
			SectionTitle: meta.SectionTitle,
			PageNumber:   meta.PageNumber,
			Score:        meta.Score,
		})
	}
	return sources
}

func validateRequest(req Request) error {
	if req.TenantID == "" || len(req.TenantID) > 255 {
		return domain.NewFailure(domain.KindInput, "tenant_id must be 1..255 characters", nil)
	}
	if req.Query == "" || len(req.Query) > 10000 {
		return domain.NewFailure(domain.KindInput, "query must be 1..10000 characters", nil)
	}
	return nil
}
