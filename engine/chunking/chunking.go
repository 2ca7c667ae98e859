// Package chunking turns a document's parsed sections into semantic chunks:
// small sections are merged together, large ones are split on token
// boundaries with overlap, and every chunk carries a content hash for
// downstream dedup.
package chunking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/tokenizer"
	"github.com/northlane/ragvault/pkg/fn"
)

const (
	// DefaultMaxTokens is the target chunk size.
	DefaultMaxTokens = 500
	// DefaultOverlap is the token overlap carried between split chunks.
	DefaultOverlap = 100
	// DefaultMinChunkTokens is the threshold below which a section is
	// merged with its neighbors instead of becoming its own chunk.
	DefaultMinChunkTokens = 50
)

// Options configures a Chunker.
type Options struct {
	MaxTokens      int
	Overlap        int
	MinChunkTokens int
}

// DefaultOptions returns the chunking defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:      DefaultMaxTokens,
		Overlap:        DefaultOverlap,
		MinChunkTokens: DefaultMinChunkTokens,
	}
}

// Stats records how the most recent ChunkDocument call reshaped a
// document's sections. Nothing in the retrieval or generation path
// consults it; it exists for tests and operational dashboards.
type Stats struct {
	SectionsIn     int
	SectionsMerged int
	SectionsSplit  int
	ChunksOut      int
}

// Chunker splits a document's parsed sections into Chunks.
type Chunker struct {
	tok  *tokenizer.Tokenizer
	opts Options

	mu    sync.Mutex
	stats Stats
}

// New builds a Chunker using the given tokenizer and options.
func New(tok *tokenizer.Tokenizer, opts Options) *Chunker {
	if opts.MaxTokens == 0 {
		opts = DefaultOptions()
	}
	return &Chunker{tok: tok, opts: opts}
}

// ChunkInput bundles a document with its parsed sections; it is the Stage's
// input type so the document's identity travels with its content.
type ChunkInput struct {
	Doc      domain.Document
	Sections []domain.ParsedSection
}

// Stage adapts ChunkDocument into an fn.Stage for pipeline composition.
func (c *Chunker) Stage() fn.Stage[ChunkInput, []domain.Chunk] {
	return func(_ context.Context, in ChunkInput) fn.Result[[]domain.Chunk] {
		chunks, err := c.ChunkDocument(in.Doc, in.Sections)
		if err != nil {
			return fn.Err[[]domain.Chunk](err)
		}
		return fn.Ok(chunks)
	}
}

// ChunkDocument merges small sections, splits large ones, and returns the
// final ordered list of chunks for a document. It also records Stats for
// this call, retrievable via Stats().
func (c *Chunker) ChunkDocument(doc domain.Document, sections []domain.ParsedSection) ([]domain.Chunk, error) {
	merged, origins, mergeCount := c.mergeSmallSections(sections)

	var chunks []domain.Chunk
	chunkIndex := 0
	splitCount := 0
	for i, section := range merged {
		sectionChunks := c.chunkSection(doc, section, origins[i], chunkIndex)
		if len(sectionChunks) > 1 {
			splitCount++
		}
		chunks = append(chunks, sectionChunks...)
		chunkIndex += len(sectionChunks)
	}

	c.mu.Lock()
	c.stats = Stats{
		SectionsIn:     len(sections),
		SectionsMerged: mergeCount,
		SectionsSplit:  splitCount,
		ChunksOut:      len(chunks),
	}
	c.mu.Unlock()

	return chunks, nil
}

// Stats returns the statistics from the most recent ChunkDocument call.
func (c *Chunker) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Chunker) chunkSection(doc domain.Document, section domain.ParsedSection, sectionIdx, startIndex int) []domain.Chunk {
	content := strings.TrimSpace(section.Content)
	if content == "" {
		return nil
	}

	parentSectionID := fmt.Sprintf("section_%d", sectionIdx)

	if c.tok.CountTokens(content) <= c.opts.MaxTokens {
		return []domain.Chunk{c.newChunk(doc, content, startIndex, section, parentSectionID)}
	}

	textChunks := c.tok.SplitByTokenLimit(content, c.opts.MaxTokens, c.opts.Overlap)
	out := make([]domain.Chunk, len(textChunks))
	for i, text := range textChunks {
		out[i] = c.newChunk(doc, text, startIndex+i, section, parentSectionID)
	}
	return out
}

func (c *Chunker) newChunk(doc domain.Document, content string, index int, section domain.ParsedSection, parentSectionID string) domain.Chunk {
	return domain.Chunk{
		DocumentID:      doc.ID,
		TenantID:        doc.TenantID,
		ChunkIndex:      index,
		Content:         content,
		ContentHash:     contentHash(content),
		TokenCount:      c.tok.CountTokens(content),
		SectionTitle:    section.SectionTitle,
		PageNumber:      section.PageNumber,
		ParentSectionID: parentSectionID,
	}
}

// mergeSmallSections accumulates consecutive sections under MinChunkTokens
// into a single merged section (losing its title, as no one title applies to
// the merged run) and leaves larger sections untouched. Alongside the output
// sections it returns, per output section, the index in sections of the
// first section it came from, and the number of runs of two or more small
// sections that were merged.
func (c *Chunker) mergeSmallSections(sections []domain.ParsedSection) ([]domain.ParsedSection, []int, int) {
	if len(sections) == 0 {
		return nil, nil, 0
	}

	var merged []domain.ParsedSection
	var origins []int
	mergeCount := 0
	var acc []string
	var accPage *int
	accStart := 0

	flush := func() {
		if len(acc) == 0 {
			return
		}
		if len(acc) > 1 {
			mergeCount++
		}
		merged = append(merged, domain.ParsedSection{
			SectionTitle: "",
			Content:      strings.Join(acc, "\n\n"),
			PageNumber:   accPage,
			Metadata:     map[string]string{"merged": "true"},
		})
		origins = append(origins, accStart)
		acc = nil
		accPage = nil
	}

	for i, section := range sections {
		if c.tok.CountTokens(section.Content) >= c.opts.MinChunkTokens {
			flush()
			merged = append(merged, section)
			origins = append(origins, i)
			continue
		}
		if len(acc) == 0 {
			accStart = i
		}
		acc = append(acc, section.Content)
		if accPage == nil {
			accPage = section.PageNumber
		}
	}
	flush()

	return merged, origins, mergeCount
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}
