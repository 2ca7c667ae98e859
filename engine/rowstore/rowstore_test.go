package rowstore

import (
	"strings"
	"testing"
	"time"
)

func TestNullString(t *testing.T) {
	if got := nullString(""); got != nil {
		t.Errorf("expected nil for empty string, got %v", got)
	}
	if got := nullString("warranty"); got != "warranty" {
		t.Errorf("expected passthrough, got %v", got)
	}
}

func TestUTCMidnight(t *testing.T) {
	in := time.Date(2026, 7, 30, 14, 35, 12, 0, time.FixedZone("EST", -5*3600))
	got := utcMidnight(in)
	want := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) // 14:35 EST == 19:35 UTC, truncated to midnight UTC
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Errorf("expected midnight, got %v", got)
	}
}

func TestFindIndexGaps_NoGaps(t *testing.T) {
	gaps := findIndexGaps([]int{0, 1, 2, 3})
	if len(gaps) != 0 {
		t.Errorf("expected no gaps, got %v", gaps)
	}
}

func TestFindIndexGaps_SingleGap(t *testing.T) {
	gaps := findIndexGaps([]int{0, 1, 3, 4})
	if len(gaps) != 1 || gaps[0] != 2 {
		t.Errorf("expected [2], got %v", gaps)
	}
}

func TestFindIndexGaps_MissingHead(t *testing.T) {
	gaps := findIndexGaps([]int{1, 2, 3})
	if len(gaps) != 1 || gaps[0] != 0 {
		t.Errorf("expected [0], got %v", gaps)
	}
}

func TestFindIndexGaps_Empty(t *testing.T) {
	gaps := findIndexGaps(nil)
	if len(gaps) != 0 {
		t.Errorf("expected no gaps, got %v", gaps)
	}
}

func TestLexicalSearchQuery_WithoutDocumentFilter(t *testing.T) {
	sql, hasFilter := lexicalSearchQuery("")
	if hasFilter {
		t.Error("expected no document filter")
	}
	if strings.Contains(sql, "document_id = $3") {
		t.Error("unexpected document filter in sql")
	}
	if !strings.Contains(sql, "LIMIT $3") {
		t.Errorf("expected limit placeholder $3, got %s", sql)
	}
}

func TestLexicalSearchQuery_WithDocumentFilter(t *testing.T) {
	sql, hasFilter := lexicalSearchQuery("doc-1")
	if !hasFilter {
		t.Error("expected a document filter")
	}
	if !strings.Contains(sql, "document_id = $3") {
		t.Errorf("expected document filter placeholder, got %s", sql)
	}
	if !strings.Contains(sql, "LIMIT $4") {
		t.Errorf("expected limit placeholder $4, got %s", sql)
	}
}

func TestSchemaSQL_DeclaresExpectedTables(t *testing.T) {
	for _, table := range []string{"documents", "chunks", "chat_interactions", "chat_feedbacks", "chunk_embedding_audit"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected schema to declare table %s", table)
		}
	}
}

func TestSchemaSQL_WeightsTitleAboveContent(t *testing.T) {
	if !strings.Contains(lexicalVectorUpdateSQL, "'A'") || !strings.Contains(lexicalVectorUpdateSQL, "'B'") {
		t.Error("expected weighted tsvector composition with weights A and B")
	}
	if !strings.Contains(lexicalVectorUpdateSQL, "section_title") {
		t.Error("expected section_title in lexical vector update")
	}
}

func TestSchemaSQL_UniqueChunkIndex(t *testing.T) {
	if !strings.Contains(schemaSQL, "UNIQUE (document_id, chunk_index)") {
		t.Error("expected unique constraint on (document_id, chunk_index)")
	}
}

func TestSchemaSQL_GINIndexOnLexicalVector(t *testing.T) {
	if !strings.Contains(schemaSQL, "USING GIN (lexical_vector)") {
		t.Error("expected GIN index on lexical_vector")
	}
}
