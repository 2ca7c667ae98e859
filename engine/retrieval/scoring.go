package retrieval

import (
	"math"
	"time"
)

// NormalizeMinMax rescales scores to [0, 1]. A single score normalizes to
// 1.0; a degenerate range (all scores equal) also normalizes to all 1.0,
// matching the exact-zero-range case the scoring table is defined over.
func NormalizeMinMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	if len(scores) == 1 {
		return []float64{1.0}
	}

	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	out := make([]float64, len(scores))
	if max-min < 1e-8 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}

// CombineScores produces the final per-candidate score as a weighted blend
// of normalized vector/lexical/recency scores. Weights are renormalized to
// sum to 1 if the caller's weights don't already.
func CombineScores(vector, lexical, recency []float64, vectorWeight, lexWeight, recencyWeight float64) []float64 {
	n := len(vector)
	if n == 0 {
		return nil
	}

	total := vectorWeight + lexWeight + recencyWeight
	if math.Abs(total-1.0) > 1e-6 && total > 0 {
		vectorWeight /= total
		lexWeight /= total
		recencyWeight /= total
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = vectorWeight*vector[i] + lexWeight*lexical[i] + recencyWeight*recency[i]
	}
	return out
}

const recencyDecayDays = 365

// RecencyScore applies exponential decay by document age: a document created
// decayDays ago scores ~0.37, one created 2*decayDays ago scores ~0.14.
func RecencyScore(createdAt time.Time, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0.0
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	return math.Exp(-ageDays / recencyDecayDays)
}
