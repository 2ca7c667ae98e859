package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/generation"
	"github.com/northlane/ragvault/engine/kv"
	"github.com/northlane/ragvault/engine/resilience"
	"github.com/northlane/ragvault/engine/retrieval"
	"github.com/northlane/ragvault/engine/tokenizer"
)

type fakeRetriever struct {
	results []retrieval.RetrievalResult
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _, _ string) ([]retrieval.RetrievalResult, error) {
	return f.results, f.err
}

type fakeLimiter struct {
	result kv.RateLimitResult
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, _ string, _ float64, _ time.Duration) kv.RateLimitResult {
	return f.result
}

type fakeUsageSource struct {
	tokens int64
	cost   float64
}

func (f *fakeUsageSource) DailyUsage(_ context.Context, _ string, _ time.Time) (int64, float64, error) {
	return f.tokens, f.cost, nil
}

type fakeStore struct {
	interactions []domain.ChatInteraction
	feedback     []domain.ChatFeedback
	insertErr    error
}

func (f *fakeStore) InsertChatInteraction(_ context.Context, interaction domain.ChatInteraction) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	interaction.ID = "interaction-1"
	f.interactions = append(f.interactions, interaction)
	return interaction.ID, nil
}

func (f *fakeStore) UpsertFeedback(_ context.Context, _ string, feedback domain.ChatFeedback) error {
	f.feedback = append(f.feedback, feedback)
	return nil
}

type fakeClient struct {
	resp generation.Response
	err  error
}

func (f *fakeClient) Generate(_ context.Context, _ generation.Request) (generation.Response, error) {
	return f.resp, f.err
}

func permissiveLoadShedder() *resilience.LoadShedder {
	return resilience.NewLoadShedder(resilience.LoadShedderOpts{
		CPUElevated: 99.9, CPUHigh: 99.95, CPUCritical: 99.99,
		MemElevated: 99.9, MemHigh: 99.95, MemCritical: 99.99,
		SampleInterval: time.Millisecond,
	})
}

func newTestTokenizer(t *testing.T) *tokenizer.Tokenizer {
	t.Helper()
	tok, err := tokenizer.New("")
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	return tok
}

func sampleResults() []retrieval.RetrievalResult {
	return []retrieval.RetrievalResult{
		{ChunkID: "c1", DocumentID: "d1", Content: "Revenue grew eight percent year over year.", Score: 0.9},
		{ChunkID: "c2", DocumentID: "d1", Content: "Operating margin held steady at 22 percent.", Score: 0.8},
	}
}

func newTestService(t *testing.T, retriever Retriever, client *fakeClient, store Store, limiter RateLimiter, quota *fakeUsageSource) *Service {
	t.Helper()
	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 5, Window: time.Minute, SuccessThreshold: 1, Timeout: time.Minute})
	qm := resilience.NewQuotaManager(quota, resilience.QuotaOpts{DailyTokenLimit: 1_000_000, DailyCostLimit: 50})
	return New(retriever, newTestTokenizer(t), generation.NewGenerator(client), breaker, qm, permissiveLoadShedder(), limiter, store, DefaultOptions(), nil)
}

func TestQuerySuccessPersistsInteractionAndShapesResponse(t *testing.T) {
	retriever := &fakeRetriever{results: sampleResults()}
	client := &fakeClient{resp: generation.Response{
		Text:             "Revenue grew eight percent [Source 1], and margin held at 22 percent [Source 2].",
		PromptTokens:     100,
		CompletionTokens: 20,
		TotalTokens:      120,
	}}
	store := &fakeStore{}
	limiter := &fakeLimiter{result: kv.RateLimitResult{Allowed: true, TokensRemaining: 9}}
	svc := newTestService(t, retriever, client, store, limiter, &fakeUsageSource{})

	resp, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "How did revenue perform?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.InteractionID != "interaction-1" {
		t.Errorf("InteractionID = %q, want interaction-1", resp.InteractionID)
	}
	if len(resp.Citations) != 2 {
		t.Errorf("Citations = %v, want 2 entries", resp.Citations)
	}
	if len(resp.Sources) != 2 {
		t.Errorf("Sources = %v, want 2 entries", resp.Sources)
	}
	if len(store.interactions) != 1 {
		t.Fatalf("expected one persisted interaction, got %d", len(store.interactions))
	}
	if store.interactions[0].TenantID != "tenant-a" {
		t.Errorf("persisted tenant = %q, want tenant-a", store.interactions[0].TenantID)
	}
	if store.interactions[0].Usage.TotalTokens != 120 {
		t.Errorf("persisted usage = %+v, want TotalTokens 120", store.interactions[0].Usage)
	}
}

func TestQueryEmptyRetrievalReturnsCannedAnswerWithoutPersisting(t *testing.T) {
	retriever := &fakeRetriever{results: nil}
	client := &fakeClient{}
	store := &fakeStore{}
	limiter := &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}
	svc := newTestService(t, retriever, client, store, limiter, &fakeUsageSource{})

	resp, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "what is X?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", resp.Confidence)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("Citations = %v, want empty", resp.Citations)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0] != "No relevant documents found for query" {
		t.Errorf("Warnings = %v", resp.Warnings)
	}
	if len(store.interactions) != 0 {
		t.Errorf("expected no persisted interaction on empty retrieval, got %d", len(store.interactions))
	}
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeRetriever{}, &fakeClient{}, &fakeStore{}, &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}, &fakeUsageSource{})
	_, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: ""})
	if err == nil {
		t.Fatal("expected error for empty query")
	}
	var failure *domain.Failure
	if !errors.As(err, &failure) || failure.Kind != domain.KindInput {
		t.Errorf("expected KindInput failure, got %v", err)
	}
}

func TestQueryRateLimitedReturnsCapacityFailure(t *testing.T) {
	limiter := &fakeLimiter{result: kv.RateLimitResult{Allowed: false, RetryAfter: 5 * time.Second}}
	svc := newTestService(t, &fakeRetriever{results: sampleResults()}, &fakeClient{}, &fakeStore{}, limiter, &fakeUsageSource{})

	_, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "a question"})
	var failure *domain.Failure
	if !errors.As(err, &failure) || failure.Kind != domain.KindCapacity {
		t.Fatalf("expected KindCapacity failure, got %v", err)
	}
}

func TestQueryOverQuotaReturnsCapacityFailure(t *testing.T) {
	limiter := &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}
	svc := newTestService(t, &fakeRetriever{results: sampleResults()}, &fakeClient{}, &fakeStore{}, limiter, &fakeUsageSource{tokens: 2_000_000})

	_, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "a question"})
	var failure *domain.Failure
	if !errors.As(err, &failure) || failure.Kind != domain.KindCapacity {
		t.Fatalf("expected KindCapacity failure, got %v", err)
	}
}

func TestQueryOpenCircuitRejectsImmediately(t *testing.T) {
	retriever := &fakeRetriever{results: sampleResults()}
	client := &fakeClient{err: domain.NewFailure(domain.KindDependencyFatal, "provider rejected request", nil)}
	store := &fakeStore{}
	limiter := &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}

	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Window: time.Minute, SuccessThreshold: 1, Timeout: time.Minute})
	qm := resilience.NewQuotaManager(&fakeUsageSource{}, resilience.QuotaOpts{DailyTokenLimit: 1_000_000, DailyCostLimit: 50})
	svc := New(retriever, newTestTokenizer(t), generation.NewGenerator(client), breaker, qm, permissiveLoadShedder(), limiter, store, DefaultOptions(), nil)

	if _, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "first question"}); err == nil {
		t.Fatal("expected the first call's generator failure to propagate")
	}

	_, err := svc.Query(context.Background(), Request{TenantID: "tenant-a", Query: "second question"})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen once the breaker trips, got %v", err)
	}
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	svc := newTestService(t, &fakeRetriever{}, &fakeClient{}, &fakeStore{}, &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}, &fakeUsageSource{})
	if _, err := svc.SubmitFeedback(context.Background(), "tenant-a", "interaction-1", 0, ""); err == nil {
		t.Fatal("expected error for out-of-range rating")
	}
}

func TestSubmitFeedbackSucceeds(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, &fakeRetriever{}, &fakeClient{}, store, &fakeLimiter{result: kv.RateLimitResult{Allowed: true}}, &fakeUsageSource{})

	resp, err := svc.SubmitFeedback(context.Background(), "tenant-a", "interaction-1", 4, "helpful")
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if !resp.Success || resp.FeedbackID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(store.feedback) != 1 || store.feedback[0].Rating != 4 {
		t.Errorf("unexpected stored feedback: %+v", store.feedback)
	}
}
