package retrieval

import "testing"

func TestMMRRerankEmptyCandidates(t *testing.T) {
	if got := MMRRerank([]float32{1, 0}, nil, nil, 5, 0.5); got != nil {
		t.Errorf("MMRRerank(no candidates) = %v, want nil", got)
	}
}

func TestMMRRerankSeedsWithHighestScore(t *testing.T) {
	candidates := [][]float32{
		{1, 0},
		{0, 1},
		{0.9, 0.1},
	}
	scores := []float64{0.2, 0.9, 0.5}
	got := MMRRerank([]float32{1, 0}, candidates, scores, 1, 0.5)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("MMRRerank seed = %v, want [1] (highest scoring candidate)", got)
	}
}

func TestMMRRerankPrefersDiversityOverNearDuplicates(t *testing.T) {
	// Two near-duplicate high scorers and one lower-scoring but distinct vector.
	candidates := [][]float32{
		{1, 0, 0},    // highest score, seeds selection
		{0.99, 0.01, 0}, // near-duplicate of the seed, high score
		{0, 1, 0},    // distinct direction, lower score
	}
	scores := []float64{1.0, 0.95, 0.6}
	got := MMRRerank([]float32{1, 0, 0}, candidates, scores, 2, 0.3)
	if len(got) != 2 {
		t.Fatalf("MMRRerank = %v, want 2 selections", got)
	}
	if got[0] != 0 {
		t.Errorf("first selection = %d, want 0 (highest score seeds)", got[0])
	}
	if got[1] != 2 {
		t.Errorf("second selection = %d, want 2 (diverse candidate over near-duplicate), lambda favors diversity", got[1])
	}
}

func TestMMRRerankCapsAtAvailableCandidates(t *testing.T) {
	candidates := [][]float32{{1, 0}, {0, 1}}
	scores := []float64{0.5, 0.5}
	got := MMRRerank([]float32{1, 0}, candidates, scores, 10, 0.5)
	if len(got) != 2 {
		t.Errorf("MMRRerank with topK > candidates = %v, want 2 selections", got)
	}
}

func TestMMRRerankZeroTopK(t *testing.T) {
	candidates := [][]float32{{1, 0}}
	if got := MMRRerank([]float32{1, 0}, candidates, []float64{1}, 0, 0.5); got != nil {
		t.Errorf("MMRRerank(topK=0) = %v, want nil", got)
	}
}
