package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/northlane/ragvault/engine/retrieval"
	"github.com/northlane/ragvault/engine/tokenizer"
)

// SystemInstructions is the default system prompt enforcing source-grounded,
// cited answers.
const SystemInstructions = `You are a helpful AI assistant that answers questions based on provided source documents.

CRITICAL RULES:
1. Answer ONLY using information from the provided sources
2. If the sources don't contain sufficient information to answer the question, explicitly state: "I don't have enough information in the provided sources to answer this question"
3. ALWAYS cite your sources using [Source X] notation when referencing information
4. If sources provide conflicting information, mention the conflict and cite both sources
5. When providing numbers, dates, or specific facts, quote them exactly as they appear in the sources
6. Do not make assumptions or add information not present in the sources
7. If a source is partially relevant, acknowledge what it does and doesn't cover
8. Be concise but complete in your answers

CITATION FORMAT:
- Reference sources as [Source 1], [Source 2], etc.
- Multiple sources for the same fact: [Source 1, 3]
- When quoting directly, use quotation marks and cite the source

ANSWER QUALITY:
- Provide specific, factual answers
- Use clear, professional language
- Organize information logically
- Highlight key points
- If the question has multiple parts, address each part`

var ErrEmptyQuery = errors.New("generation: query cannot be empty")

// Prompt is everything the generator and the answer validator need: the
// rendered system/user prompts plus the source map citations are checked
// against.
type Prompt struct {
	SystemPrompt  string
	UserPrompt    string
	Context       string
	SourceCount   int
	ContextTokens int
	SourceMapping map[int]SourceMeta
}

// Build assembles a prompt from a query and its (already ranked) retrieval
// results: budgets tokens, optimizes context, formats sources, and renders
// the final system/user prompt pair. An empty result set produces a prompt
// that asks the generator to state it has no information.
func Build(tok *tokenizer.Tokenizer, query string, results []retrieval.RetrievalResult, modelMaxTokens, maxOutputTokens int) (Prompt, error) {
	if strings.TrimSpace(query) == "" {
		return Prompt{}, ErrEmptyQuery
	}

	budget := CalculateBudget(tok, modelMaxTokens, maxOutputTokens, query, SystemInstructions)

	if len(results) == 0 {
		userPrompt := buildNoContextPrompt(query)
		return Prompt{
			SystemPrompt:  SystemInstructions,
			UserPrompt:    userPrompt,
			Context:       "",
			SourceCount:   0,
			ContextTokens: 0,
			SourceMapping: map[int]SourceMeta{},
		}, nil
	}

	optimized := Optimize(tok, results, budget.ContextBudget)
	context := FormatSources(optimized)
	mapping := SourceMapping(optimized)
	userPrompt := buildUserPrompt(query, context)

	return Prompt{
		SystemPrompt:  SystemInstructions,
		UserPrompt:    userPrompt,
		Context:       context,
		SourceCount:   len(optimized),
		ContextTokens: tok.CountTokens(context),
		SourceMapping: mapping,
	}, nil
}

func buildUserPrompt(query, context string) string {
	return fmt.Sprintf("Based on the following sources, please answer the question.\n\nSOURCES:\n%s\n\nQUESTION:\n%s\n\nANSWER:", context, query)
}

func buildNoContextPrompt(query string) string {
	return fmt.Sprintf("I don't have any relevant sources to answer this question.\n\nQUESTION:\n%s\n\nPlease respond that you don't have information to answer this question.", query)
}
