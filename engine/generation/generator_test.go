package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northlane/ragvault/engine/domain"
)

type fakeClient struct {
	calls     int
	failUntil int
	failKind  domain.Kind
	err       error
	resp      Response
}

func (f *fakeClient) Generate(ctx context.Context, req Request) (Response, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return Response{}, domain.NewFailure(f.failKind, "generator unavailable", f.err)
	}
	return f.resp, nil
}

func noSleep(time.Duration) {}

func TestGenerateSucceedsWithoutRetry(t *testing.T) {
	client := &fakeClient{resp: Response{Text: "an answer", ModelID: "test-model"}}
	g := NewGenerator(client)
	g.sleep = noSleep

	resp, err := g.Generate(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "user"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "an answer" {
		t.Errorf("Generate text = %q, want %q", resp.Text, "an answer")
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry needed)", client.calls)
	}
}

func TestGenerateRetriesTransientFailures(t *testing.T) {
	client := &fakeClient{failUntil: 2, failKind: domain.KindDependencyTransient, resp: Response{Text: "eventually"}}
	g := NewGenerator(client)
	g.sleep = noSleep

	resp, err := g.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "eventually" {
		t.Errorf("Generate text = %q, want %q", resp.Text, "eventually")
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", client.calls)
	}
}

func TestGenerateExhaustsRetriesAndReturnsFatalFailure(t *testing.T) {
	client := &fakeClient{failUntil: 100, failKind: domain.KindDependencyTransient}
	g := NewGenerator(client)
	g.sleep = noSleep

	_, err := g.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var failure *domain.Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected a *domain.Failure, got %T: %v", err, err)
	}
	if failure.Kind != domain.KindDependencyFatal {
		t.Errorf("Kind = %v, want dependency_fatal after exhausting retries", failure.Kind)
	}
	if client.calls != 4 {
		t.Errorf("calls = %d, want 4 (1 initial + 3 retries)", client.calls)
	}
}

func TestGenerateDoesNotRetryInputErrors(t *testing.T) {
	client := &fakeClient{failUntil: 100, failKind: domain.KindInput}
	g := NewGenerator(client)
	g.sleep = noSleep

	_, err := g.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var failure *domain.Failure
	if !errors.As(err, &failure) || failure.Kind != domain.KindInput {
		t.Errorf("expected the original input failure to propagate unretried, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (input errors are never retried)", client.calls)
	}
}

func TestGenerateStopsOnContextCancellation(t *testing.T) {
	client := &fakeClient{failUntil: 100, failKind: domain.KindDependencyTransient}
	g := NewGenerator(client)
	g.sleep = noSleep

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, Request{})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
