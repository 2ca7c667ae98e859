package generation

import (
	"testing"

	"github.com/northlane/ragvault/engine/retrieval"
)

func TestReorderLostInMiddleMatchesWorkedExample(t *testing.T) {
	ranked := []retrieval.RetrievalResult{
		{ChunkID: "a", Score: 0.9},
		{ChunkID: "b", Score: 0.8},
		{ChunkID: "c", Score: 0.7},
		{ChunkID: "d", Score: 0.6},
		{ChunkID: "e", Score: 0.5},
	}
	got := ReorderLostInMiddle(ranked)
	want := []string{"a", "c", "e", "d", "b"}
	for i, id := range want {
		if got[i].ChunkID != id {
			t.Fatalf("ReorderLostInMiddle[%d] = %s, want %s (full: %v)", i, got[i].ChunkID, id, resultIDs(got))
		}
	}
}

func resultIDs(results []retrieval.RetrievalResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestReorderLostInMiddleShortListsUnchanged(t *testing.T) {
	one := []retrieval.RetrievalResult{{ChunkID: "a"}}
	if got := ReorderLostInMiddle(one); len(got) != 1 || got[0].ChunkID != "a" {
		t.Errorf("single-item list should be unchanged, got %v", got)
	}
	two := []retrieval.RetrievalResult{{ChunkID: "a"}, {ChunkID: "b"}}
	got := ReorderLostInMiddle(two)
	if got[0].ChunkID != "a" || got[1].ChunkID != "b" {
		t.Errorf("two-item list should be unchanged, got %v", resultIDs(got))
	}
}

func TestRemoveNearDuplicatesDropsLowerScoringDuplicate(t *testing.T) {
	results := []retrieval.RetrievalResult{
		{ChunkID: "a", Score: 0.9, Embedding: []float32{1, 0}},
		{ChunkID: "b", Score: 0.6, Embedding: []float32{0.999, 0.001}}, // near-identical to a, lower score
		{ChunkID: "c", Score: 0.7, Embedding: []float32{0, 1}},
	}
	got := removeNearDuplicates(results)
	if len(got) != 2 {
		t.Fatalf("removeNearDuplicates = %v, want 2 results", resultIDs(got))
	}
	for _, r := range got {
		if r.ChunkID == "b" {
			t.Errorf("expected lower-scoring near-duplicate 'b' to be removed, got %v", resultIDs(got))
		}
	}
}

func TestRemoveNearDuplicatesKeepsDistinctVectors(t *testing.T) {
	results := []retrieval.RetrievalResult{
		{ChunkID: "a", Score: 0.9, Embedding: []float32{1, 0}},
		{ChunkID: "b", Score: 0.6, Embedding: []float32{0, 1}},
	}
	got := removeNearDuplicates(results)
	if len(got) != 2 {
		t.Errorf("removeNearDuplicates with distinct vectors = %v, want both kept", resultIDs(got))
	}
}

func TestRemoveNearDuplicatesSkipsResultsWithoutEmbeddings(t *testing.T) {
	results := []retrieval.RetrievalResult{
		{ChunkID: "a", Score: 0.9},
		{ChunkID: "b", Score: 0.6},
	}
	got := removeNearDuplicates(results)
	if len(got) != 2 {
		t.Errorf("results without embeddings should never be deduplicated, got %v", resultIDs(got))
	}
}

func TestOptimizeFullPipeline(t *testing.T) {
	tok := newTestTokenizer(t)
	results := []retrieval.RetrievalResult{
		{ChunkID: "a", Content: "alpha content", Score: 0.9},
		{ChunkID: "b", Content: "beta content", Score: 0.8},
		{ChunkID: "c", Content: "gamma content", Score: 0.7},
	}
	got := Optimize(tok, results, 1000)
	if len(got) != 3 {
		t.Fatalf("Optimize with ample budget = %v, want all 3 results kept", resultIDs(got))
	}
}

func TestOptimizeEmptyInput(t *testing.T) {
	tok := newTestTokenizer(t)
	if got := Optimize(tok, nil, 1000); got != nil {
		t.Errorf("Optimize(empty) = %v, want nil", got)
	}
}
