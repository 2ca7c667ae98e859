package generation

import (
	"math"

	"github.com/northlane/ragvault/engine/retrieval"
	"github.com/northlane/ragvault/engine/tokenizer"
)

const duplicateSimilarityThreshold = 0.95

// Optimize prepares ranked retrieval results for the prompt: drop
// near-duplicate chunks, trim to the context budget, then reorder so the
// highest-scoring chunks sit at the head and tail of the window.
func Optimize(tok *tokenizer.Tokenizer, results []retrieval.RetrievalResult, contextBudget int) []retrieval.RetrievalResult {
	if len(results) == 0 {
		return nil
	}

	deduped := removeNearDuplicates(results)

	contents := make([]string, len(deduped))
	scores := make([]float64, len(deduped))
	for i, r := range deduped {
		contents[i] = r.Content
		scores[i] = r.Score
	}
	kept := TruncateToBudget(tok, contents, scores, contextBudget)

	withinBudget := make([]retrieval.RetrievalResult, len(kept))
	for i, idx := range kept {
		withinBudget[i] = deduped[idx]
	}

	return ReorderLostInMiddle(withinBudget)
}

// removeNearDuplicates drops the lower-scoring member of any pair whose
// embeddings are cosine-similar beyond duplicateSimilarityThreshold. Results
// without an embedding are never compared and are always kept.
func removeNearDuplicates(results []retrieval.RetrievalResult) []retrieval.RetrievalResult {
	if len(results) <= 1 {
		return results
	}

	keep := make([]bool, len(results))
	for i := range keep {
		keep[i] = true
	}

	normalized := make([][]float32, len(results))
	for i, r := range results {
		if len(r.Embedding) > 0 {
			normalized[i] = l2Normalize(r.Embedding)
		}
	}

	for i := range results {
		if !keep[i] || normalized[i] == nil {
			continue
		}
		for j := i + 1; j < len(results); j++ {
			if !keep[j] || normalized[j] == nil {
				continue
			}
			sim := dotProduct(normalized[i], normalized[j])
			if sim <= duplicateSimilarityThreshold {
				continue
			}
			if results[j].Score < results[i].Score {
				keep[j] = false
			} else {
				keep[i] = false
				break
			}
		}
	}

	out := make([]retrieval.RetrievalResult, 0, len(results))
	for i, r := range results {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-8 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// ReorderLostInMiddle counteracts an LLM's attention bias toward the start
// and end of its context window: it walks the rank-ordered input once,
// alternately appending to the head and tail of a fresh slice so the
// highest-scoring chunks land at both ends and the lowest-scoring chunks
// settle in the middle.
func ReorderLostInMiddle(ranked []retrieval.RetrievalResult) []retrieval.RetrievalResult {
	if len(ranked) <= 2 {
		return ranked
	}

	out := make([]retrieval.RetrievalResult, len(ranked))
	head, tail := 0, len(ranked)-1
	for i, r := range ranked {
		if i%2 == 0 {
			out[head] = r
			head++
		} else {
			out[tail] = r
			tail--
		}
	}
	return out
}
