package generation

import (
	"context"
	"errors"
	"time"

	"github.com/northlane/ragvault/engine/domain"
)

// Request is one generation call's inputs.
type Request struct {
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxOutputTokens int
}

// Response is a completed generation.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMS        int64
	ModelID          string
}

// Client is the external generator provider contract. Implementations call
// out to an LLM; transient failures (unavailable, deadline exceeded,
// resource exhausted) should be wrapped as domain.KindDependencyTransient so
// Generator's retry loop recognizes them.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

var defaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Generator wraps a Client with exponential-backoff retry over transient
// dependency failures. Input and fatal-dependency failures (invalid
// arguments, permission errors) are never retried.
type Generator struct {
	client  Client
	backoff []time.Duration
	sleep   func(time.Duration)
}

// NewGenerator builds a Generator with the standard 1s/2s/4s backoff.
func NewGenerator(client Client) *Generator {
	return &Generator{client: client, backoff: defaultBackoff, sleep: time.Sleep}
}

// Generate calls the client, retrying transient dependency failures with
// exponential backoff. Non-transient failures and context cancellation stop
// retrying immediately.
func (g *Generator) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= len(g.backoff); attempt++ {
		resp, err := g.client.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTransient(err) {
			return Response{}, err
		}
		if attempt == len(g.backoff) {
			break
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
			g.sleep(g.backoff[attempt])
		}
	}
	return Response{}, domain.NewFailure(domain.KindDependencyFatal, "generator retries exhausted", lastErr)
}

func isTransient(err error) bool {
	var failure *domain.Failure
	if !errors.As(err, &failure) {
		return false
	}
	return failure.Kind == domain.KindDependencyTransient
}
