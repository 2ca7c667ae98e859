package retrieval

import "math"

// l2Normalize returns v scaled to unit length, or v unchanged if it is (near)
// zero-length.
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

func dot(a, b []float32) float64 {
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

// cosine returns the cosine similarity of two L2-normalized vectors.
func cosine(a, b []float32) float64 {
	return dot(a, b)
}

// MMRRerank selects up to topK indices from candidateEmbeddings using
// Maximal Marginal Relevance: MMR(d) = λ·sim(d,q) − (1−λ)·max sim(d,selected).
// The highest-scoring candidate seeds the selection; each subsequent pick
// maximizes the MMR score against everything chosen so far. Returns indices
// in selection order (most relevant-and-diverse first).
func MMRRerank(queryEmbedding []float32, candidateEmbeddings [][]float32, candidateScores []float64, topK int, lambda float64) []int {
	if len(candidateEmbeddings) == 0 || topK <= 0 {
		return nil
	}

	q := l2Normalize(queryEmbedding)
	normalized := make([][]float32, len(candidateEmbeddings))
	querySim := make([]float64, len(candidateEmbeddings))
	for i, e := range candidateEmbeddings {
		normalized[i] = l2Normalize(e)
		querySim[i] = cosine(normalized[i], q)
	}

	remaining := make([]int, len(candidateEmbeddings))
	for i := range remaining {
		remaining[i] = i
	}

	// Seed with the candidate carrying the highest initial relevance score.
	bestIdx := 0
	for i, idx := range remaining {
		if candidateScores[idx] > candidateScores[remaining[bestIdx]] {
			bestIdx = i
		}
	}
	selected := []int{remaining[bestIdx]}
	remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

	limit := topK
	if limit > len(candidateEmbeddings) {
		limit = len(candidateEmbeddings)
	}

	for len(selected) < limit && len(remaining) > 0 {
		bestMMR := math.Inf(-1)
		bestPos := 0
		for pos, idx := range remaining {
			maxSimToSelected := 0.0
			for _, s := range selected {
				if sim := cosine(normalized[idx], normalized[s]); sim > maxSimToSelected {
					maxSimToSelected = sim
				}
			}
			mmrScore := lambda*querySim[idx] - (1-lambda)*maxSimToSelected
			if mmrScore > bestMMR {
				bestMMR = mmrScore
				bestPos = pos
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	return selected
}
