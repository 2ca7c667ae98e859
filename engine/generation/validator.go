package generation

import (
	"regexp"
	"sort"
	"strings"
)

var citationPattern = regexp.MustCompile(`(?i)\[Source\s+\d+(?:\s*,\s*\d+)*\]`)
var citationNumber = regexp.MustCompile(`\d+`)

var uncertaintyPatterns = compileAllCaseInsensitive(
	`I don't have`,
	`I do not have`,
	`insufficient information`,
	`not enough information`,
	`cannot find`,
	`unable to answer`,
	`no information`,
	`sources don't contain`,
	`sources do not contain`,
)

var genericPatterns = compileAllCaseInsensitive(
	`in general`,
	`typically`,
	`usually`,
	`commonly`,
	`it is known that`,
	`studies show`,
	`research indicates`,
)

func compileAllCaseInsensitive(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// ValidationResult is the answer validator's verdict: extracted/invalid
// citations, a hallucination flag, a confidence score, and any warnings to
// surface to the caller.
type ValidationResult struct {
	Citations         []int
	InvalidCitations  []int
	HasHallucinations bool
	Confidence        float64
	Warnings          []string
}

// Validate extracts citations from the answer, checks them against the
// available sources, flags likely hallucinations, and scores confidence.
func Validate(answer string, sourceMapping map[int]SourceMeta) ValidationResult {
	citations := extractCitations(answer)
	invalid := invalidCitations(citations, sourceMapping)
	hallucinating := detectHallucinations(answer, citations, invalid)
	confidence := calculateConfidence(answer, citations, invalid)

	result := ValidationResult{
		Citations:         citations,
		InvalidCitations:  invalid,
		HasHallucinations: hallucinating,
		Confidence:        confidence,
	}
	result.Warnings = buildWarnings(result)
	return result
}

func extractCitations(answer string) []int {
	seen := make(map[int]bool)
	for _, match := range citationPattern.FindAllString(answer, -1) {
		for _, numStr := range citationNumber.FindAllString(match, -1) {
			var n int
			for _, c := range numStr {
				n = n*10 + int(c-'0')
			}
			seen[n] = true
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func invalidCitations(citations []int, sourceMapping map[int]SourceMeta) []int {
	var invalid []int
	for _, c := range citations {
		if _, ok := sourceMapping[c]; !ok {
			invalid = append(invalid, c)
		}
	}
	sort.Ints(invalid)
	return invalid
}

func detectHallucinations(answer string, citations, invalid []int) bool {
	wordCount := len(strings.Fields(answer))
	if wordCount > 20 && len(citations) == 0 {
		return true
	}
	if len(invalid) > 0 {
		return true
	}

	genericCount := 0
	for _, p := range genericPatterns {
		genericCount += len(p.FindAllString(answer, -1))
	}
	if genericCount > 2 && len(citations) < 2 {
		return true
	}
	return false
}

func calculateConfidence(answer string, citations, invalid []int) float64 {
	score := 0.5

	if len(citations) > 0 {
		validCount := len(citations) - len(invalid)
		if validCount < 0 {
			validCount = 0
		}
		score += 0.4 * (float64(validCount) / float64(len(citations)))
	}

	if len(invalid) == 0 {
		score += 0.3
	} else {
		denom := len(citations)
		if denom == 0 {
			denom = 1
		}
		invalidRatio := float64(len(invalid)) / float64(denom)
		score -= 0.3 * invalidRatio
	}

	wordCount := len(strings.Fields(answer))
	if wordCount > 0 {
		citationDensity := (float64(len(citations)) / float64(wordCount)) * 100
		densityBonus := citationDensity / 25 * 0.2
		if densityBonus > 0.2 {
			densityBonus = 0.2
		}
		score += densityBonus
	}

	uncertaintyCount := 0
	for _, p := range uncertaintyPatterns {
		uncertaintyCount += len(p.FindAllString(answer, -1))
	}
	if uncertaintyCount == 0 {
		score += 0.1
	} else {
		penalty := float64(uncertaintyCount) * 0.05
		if penalty > 0.1 {
			penalty = 0.1
		}
		score -= penalty
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func buildWarnings(r ValidationResult) []string {
	var warnings []string
	if len(r.Citations) == 0 {
		warnings = append(warnings, "Answer does not cite any sources. Verify factual accuracy.")
	}
	if len(r.InvalidCitations) > 0 {
		warnings = append(warnings, "Answer contains invalid citations to sources that were not provided in the context.")
	}
	if r.Confidence < 0.5 {
		warnings = append(warnings, "Low confidence score. Answer may not be reliable.")
	}
	if r.HasHallucinations {
		warnings = append(warnings, "Potential hallucinations detected. Answer may contain unsupported claims.")
	}
	return warnings
}
