// Package generation assembles the final prompt from ranked retrieval
// results, drives the external generator through a retry wrapper, and
// validates the generated answer's citations.
package generation

import "github.com/northlane/ragvault/engine/tokenizer"

const safetyMargin = 100

// Budget is the token accounting for one prompt: how much of the model's
// context window is reserved for system/query/output versus left over for
// retrieved context.
type Budget struct {
	ModelMaxTokens  int
	QueryTokens     int
	SystemTokens    int
	OutputTokens    int
	SafetyMargin    int
	ContextBudget   int
	BudgetExceeded  bool
}

// CalculateBudget reserves tokens for the system prompt, query, and model
// output, and returns what's left for retrieved context. A non-positive
// result means the caller must proceed with no context at all.
func CalculateBudget(tok *tokenizer.Tokenizer, modelMaxTokens, maxOutputTokens int, query, systemPrompt string) Budget {
	queryTokens := tok.CountTokens(query)
	systemTokens := tok.CountTokens(systemPrompt)
	reserved := queryTokens + systemTokens + maxOutputTokens + safetyMargin
	contextBudget := modelMaxTokens - reserved

	b := Budget{
		ModelMaxTokens: modelMaxTokens,
		QueryTokens:    queryTokens,
		SystemTokens:   systemTokens,
		OutputTokens:   maxOutputTokens,
		SafetyMargin:   safetyMargin,
		BudgetExceeded: contextBudget <= 0,
	}
	if contextBudget < 0 {
		contextBudget = 0
	}
	b.ContextBudget = contextBudget
	return b
}

// TruncateToBudget greedily selects the highest-scoring items whose running
// token sum fits within budget, then returns their indices restored to
// original order.
func TruncateToBudget(tok *tokenizer.Tokenizer, contents []string, scores []float64, budget int) []int {
	if len(contents) == 0 {
		return nil
	}

	type item struct {
		index  int
		score  float64
		tokens int
	}
	items := make([]item, len(contents))
	for i, c := range contents {
		items[i] = item{index: i, score: scores[i], tokens: tok.CountTokens(c)}
	}

	// Stable descending sort by score so ties keep their original relative order.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	var selected []int
	total := 0
	for _, it := range items {
		if total+it.tokens <= budget {
			selected = append(selected, it.index)
			total += it.tokens
		}
	}

	for i := 1; i < len(selected); i++ {
		for j := i; j > 0 && selected[j] < selected[j-1]; j-- {
			selected[j], selected[j-1] = selected[j-1], selected[j]
		}
	}
	return selected
}
