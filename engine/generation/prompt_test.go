package generation

import (
	"strings"
	"testing"

	"github.com/northlane/ragvault/engine/retrieval"
)

func TestBuildRejectsEmptyQuery(t *testing.T) {
	tok := newTestTokenizer(t)
	_, err := Build(tok, "   ", nil, 8000, 1024)
	if err != ErrEmptyQuery {
		t.Errorf("Build(empty query) error = %v, want ErrEmptyQuery", err)
	}
}

func TestBuildWithNoResultsUsesRefusalPrompt(t *testing.T) {
	tok := newTestTokenizer(t)
	p, err := Build(tok, "what is the term?", nil, 8000, 1024)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.SourceCount != 0 {
		t.Errorf("SourceCount = %d, want 0", p.SourceCount)
	}
	if !strings.Contains(p.UserPrompt, "don't have any relevant sources") {
		t.Errorf("UserPrompt with no results should ask the model to refuse: %q", p.UserPrompt)
	}
	if len(p.SourceMapping) != 0 {
		t.Errorf("SourceMapping should be empty, got %v", p.SourceMapping)
	}
}

func TestBuildWithResultsIncludesContextAndSources(t *testing.T) {
	tok := newTestTokenizer(t)
	results := []retrieval.RetrievalResult{
		{ChunkID: "c1", DocumentID: "d1", Content: "the contract term is five years", Score: 0.9},
	}
	p, err := Build(tok, "what is the contract term?", results, 8000, 1024)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.SourceCount != 1 {
		t.Errorf("SourceCount = %d, want 1", p.SourceCount)
	}
	if !strings.Contains(p.UserPrompt, "[Source 1]") {
		t.Errorf("UserPrompt should embed formatted sources: %q", p.UserPrompt)
	}
	if !strings.Contains(p.UserPrompt, "what is the contract term?") {
		t.Error("UserPrompt should include the original question")
	}
	if p.SystemPrompt != SystemInstructions {
		t.Error("Build should use the default system instructions")
	}
}
