// Package domain defines the core entities, status enumerations, and
// validation rules shared by the ingestion and query pipelines. It acts as
// the validation gate at pipeline entry points.
package domain

import (
	"strconv"
	"time"
)

// DocType enumerates the document formats the parser contract supports.
type DocType string

const (
	DocPDF  DocType = "pdf"
	DocDOCX DocType = "docx"
	DocPPTX DocType = "pptx"
	DocTXT  DocType = "txt"
)

// ValidDocTypes is the set of recognised document types.
var ValidDocTypes = map[DocType]bool{
	DocPDF: true, DocDOCX: true, DocPPTX: true, DocTXT: true,
}

// Status is a document's position in the ingestion state machine.
type Status string

const (
	StatusUploaded   Status = "UPLOADED"
	StatusProcessing Status = "PROCESSING"
	StatusParsed     Status = "PARSED"
	StatusChunked    Status = "CHUNKED"
	StatusEmbedded   Status = "EMBEDDED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Document is a tenant-owned upload tracked through the ingestion FSM.
type Document struct {
	ID          string
	TenantID    string
	Filename    string
	StoragePath string
	Type        DocType
	Version     int
	IsActive    bool
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParsedSection is a transient value emitted by the parser contract; it is
// never persisted as-is, only consumed by the chunker.
type ParsedSection struct {
	SectionTitle string
	Content      string
	PageNumber   *int
	Metadata     map[string]string
}

// SectionParser is the pluggable producer of a parsed-section stream. Its
// concrete implementation (PDF/DOCX/PPTX/TXT extraction) is out of scope;
// only the contract lives here.
type SectionParser interface {
	Parse(doc Document, raw []byte) ([]ParsedSection, error)
}

// Chunk is an immutable slice of a parsed document, the unit of embedding
// and retrieval.
type Chunk struct {
	ID              string
	DocumentID      string
	TenantID        string
	ChunkIndex      int
	Content         string
	ContentHash     string
	TokenCount      int
	SectionTitle    string
	PageNumber      *int
	ParentSectionID string
	CreatedAt       time.Time
}

// VectorRecord mirrors a Chunk inside the dense index's per-tenant namespace.
// Its ID is "<document_id>#<chunk_index>".
type VectorRecord struct {
	ID        string
	TenantID  string
	Embedding []float32
	Payload   map[string]any
}

// VectorRecordID builds the canonical "<document_id>#<chunk_index>" id.
func VectorRecordID(documentID string, chunkIndex int) string {
	return documentID + "#" + strconv.Itoa(chunkIndex)
}

// LatencyBreakdown records per-stage timing for a single chat request.
type LatencyBreakdown struct {
	TotalMS      int64
	RetrievalMS  int64
	GenerationMS int64
}

// TokenUsage records prompt/completion/total token counts for a generation.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatInteraction is the append-only record of a successful chat request.
type ChatInteraction struct {
	ID            string
	TenantID      string
	Query         string
	Answer        string
	Confidence    float64
	CitationCount int
	Latency       LatencyBreakdown
	Usage         TokenUsage
	ModelName     string
	CostEstimate  float64
	CreatedAt     time.Time
}

// ChatFeedback is zero-or-one per interaction; resubmission replaces it.
type ChatFeedback struct {
	ID            string
	InteractionID string
	Rating        int
	Comment       string
	CreatedAt     time.Time
}
