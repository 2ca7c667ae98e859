package chunking

import (
	"strings"
	"testing"

	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/tokenizer"
)

func newTestChunker(t *testing.T, opts Options) *Chunker {
	t.Helper()
	tok, err := tokenizer.New("")
	if err != nil {
		t.Fatalf("tokenizer.New: %v", err)
	}
	return New(tok, opts)
}

func TestChunkDocument_SmallSectionFitsOneChunk(t *testing.T) {
	c := newTestChunker(t, DefaultOptions())
	doc := domain.Document{ID: "doc-1", TenantID: "tenant-a"}
	sections := []domain.ParsedSection{
		{SectionTitle: "Intro", Content: "This document covers warranty terms."},
	}

	chunks, err := c.ChunkDocument(doc, sections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ContentHash == "" {
		t.Error("expected a content hash")
	}
	if chunks[0].TenantID != "tenant-a" {
		t.Errorf("expected chunk to inherit tenant id, got %s", chunks[0].TenantID)
	}
}

func TestChunkDocument_LargeSectionSplits(t *testing.T) {
	c := newTestChunker(t, Options{MaxTokens: 30, Overlap: 5, MinChunkTokens: 10})
	doc := domain.Document{ID: "doc-2", TenantID: "tenant-b"}
	sections := []domain.ParsedSection{
		{SectionTitle: "Terms", Content: strings.Repeat("clause text here. ", 40)},
	}

	chunks, err := c.ChunkDocument(doc, sections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the large section to split into multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("expected sequential chunk index %d, got %d", i, ch.ChunkIndex)
		}
	}
}

func TestChunkDocument_MergesSmallSections(t *testing.T) {
	c := newTestChunker(t, Options{MaxTokens: 500, Overlap: 100, MinChunkTokens: 50})
	doc := domain.Document{ID: "doc-3", TenantID: "tenant-c"}
	sections := []domain.ParsedSection{
		{SectionTitle: "A", Content: "one"},
		{SectionTitle: "B", Content: "two"},
		{SectionTitle: "C", Content: "three"},
	}

	chunks, err := c.ChunkDocument(doc, sections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected the three small sections to merge into 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "one") || !strings.Contains(chunks[0].Content, "three") {
		t.Errorf("expected merged chunk to contain all section content, got %q", chunks[0].Content)
	}
}

func TestChunkDocument_SkipsEmptySections(t *testing.T) {
	c := newTestChunker(t, DefaultOptions())
	doc := domain.Document{ID: "doc-4", TenantID: "tenant-d"}
	sections := []domain.ParsedSection{
		{SectionTitle: "Empty", Content: "   "},
		{SectionTitle: "Real", Content: "Actual content worth keeping."},
	}

	chunks, err := c.ChunkDocument(doc, sections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected empty section to be dropped, got %d chunks", len(chunks))
	}
}

func TestChunkDocument_StatsTracksMergesSplitsAndCounts(t *testing.T) {
	c := newTestChunker(t, Options{MaxTokens: 30, Overlap: 5, MinChunkTokens: 10})
	doc := domain.Document{ID: "doc-5", TenantID: "tenant-e"}
	sections := []domain.ParsedSection{
		{SectionTitle: "A", Content: "one"},
		{SectionTitle: "B", Content: "two"},
		{SectionTitle: "Terms", Content: strings.Repeat("clause text here. ", 40)},
	}

	chunks, err := c.ChunkDocument(doc, sections)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := c.Stats()
	if stats.SectionsIn != 3 {
		t.Errorf("SectionsIn = %d, want 3", stats.SectionsIn)
	}
	if stats.SectionsMerged != 1 {
		t.Errorf("SectionsMerged = %d, want 1", stats.SectionsMerged)
	}
	if stats.SectionsSplit != 1 {
		t.Errorf("SectionsSplit = %d, want 1", stats.SectionsSplit)
	}
	if stats.ChunksOut != len(chunks) {
		t.Errorf("ChunksOut = %d, want %d", stats.ChunksOut, len(chunks))
	}
}

func TestChunkDocument_StatsResetsEachCall(t *testing.T) {
	c := newTestChunker(t, DefaultOptions())
	doc := domain.Document{ID: "doc-6", TenantID: "tenant-f"}

	if _, err := c.ChunkDocument(doc, []domain.ParsedSection{
		{SectionTitle: "A", Content: "one"},
		{SectionTitle: "B", Content: "two"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Stats().SectionsMerged; got != 1 {
		t.Fatalf("first call SectionsMerged = %d, want 1", got)
	}

	if _, err := c.ChunkDocument(doc, []domain.ParsedSection{
		{SectionTitle: "Solo", Content: "Plenty of standalone content that clears the merge threshold easily."},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.Stats().SectionsMerged; got != 0 {
		t.Errorf("second call SectionsMerged = %d, want 0 (stats should reflect only the most recent call)", got)
	}
}

func TestContentHash_Stable(t *testing.T) {
	if contentHash("  hello  ") != contentHash("hello") {
		t.Error("expected content hash to be stable across surrounding whitespace")
	}
	if contentHash("hello") == contentHash("world") {
		t.Error("expected different content to hash differently")
	}
}
