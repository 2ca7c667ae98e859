package ingest

import (
	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/embedding"
)

// Message is the NATS payload carrying one document through the pipeline.
// RetryCount travels with the message instead of a header so the whole
// retry history survives a JSON round-trip through any subject.
type Message struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	RetryCount int    `json:"retry_count"`
}

// dlqMessage is published to the DLQ subject once retries are exhausted.
type dlqMessage struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// State accumulates everything one FSM run produces, one field per stage,
// so every stage after the first can see its predecessors' output without
// widening the stage's own signature.
type State struct {
	Doc      domain.Document
	Sections []domain.ParsedSection
	Chunks   []domain.Chunk
	Embedded []embedding.EmbeddedChunk
}
