package generation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/northlane/ragvault/engine/retrieval"
)

// SourceMeta is the citation metadata for one numbered source, looked up by
// the answer validator after generation.
type SourceMeta struct {
	ChunkID      string
	DocumentID   string
	SectionTitle string
	PageNumber   *int
	Score        float64
	ChunkIndex   int
}

// FormatSources numbers each result starting at 1 and renders it as a
// citation block, joining blocks with the standard separator.
func FormatSources(results []retrieval.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = formatSource(i+1, r)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func formatSource(number int, r retrieval.RetrievalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Source %d]\n", number)
	if r.DocumentID != "" {
		fmt.Fprintf(&b, "Document: %s\n", r.DocumentID)
	}
	if r.SectionTitle != "" {
		fmt.Fprintf(&b, "Section: %s\n", r.SectionTitle)
	}
	if r.PageNumber != nil {
		fmt.Fprintf(&b, "Page: %s\n", strconv.Itoa(*r.PageNumber))
	}
	b.WriteString("Content:\n")
	b.WriteString(strings.TrimSpace(r.Content))
	return b.String()
}

// SourceMapping builds the source_number → metadata map the answer
// validator checks citations against.
func SourceMapping(results []retrieval.RetrievalResult) map[int]SourceMeta {
	mapping := make(map[int]SourceMeta, len(results))
	for i, r := range results {
		mapping[i+1] = SourceMeta{
			ChunkID:      r.ChunkID,
			DocumentID:   r.DocumentID,
			SectionTitle: r.SectionTitle,
			PageNumber:   r.PageNumber,
			Score:        r.Score,
			ChunkIndex:   r.ChunkIndex,
		}
	}
	return mapping
}
