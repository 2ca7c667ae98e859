// Package cost estimates the dollar cost of a generation call from its
// model name and token counts, so every chat interaction can be priced
// without a round trip to a billing API.
package cost

import (
	"log/slog"
	"strings"
)

// pricePerMillion holds per-1M-token prices in USD for one model's input
// and output tokens.
type pricePerMillion struct {
	input  float64
	output float64
}

var (
	gemini15Pro   = pricePerMillion{input: 0.000125, output: 0.000375}
	gemini15Flash = pricePerMillion{input: 0.000075, output: 0.00030}
	embedding001  = pricePerMillion{input: 0.00001, output: 0}
)

// pricingFor resolves a model name to its pricing, matching the same
// substrings the original billing dashboard does. An unrecognized model
// falls back to Gemini 1.5 Pro pricing rather than refusing to estimate.
func pricingFor(modelName string) pricePerMillion {
	lower := strings.ToLower(modelName)
	switch {
	case strings.Contains(lower, "gemini-1.5-pro"), strings.Contains(lower, "gemini-pro"):
		return gemini15Pro
	case strings.Contains(lower, "gemini-1.5-flash"), strings.Contains(lower, "gemini-flash"):
		return gemini15Flash
	case strings.Contains(lower, "embedding"):
		return embedding001
	default:
		slog.Warn("cost: unknown model, using default pricing", "model", modelName)
		return gemini15Pro
	}
}

// Estimate returns the estimated USD cost of a generation call.
func Estimate(modelName string, promptTokens, completionTokens int) float64 {
	p := pricingFor(modelName)
	inputCost := float64(promptTokens) / 1_000_000 * p.input
	outputCost := float64(completionTokens) / 1_000_000 * p.output
	return inputCost + outputCost
}
