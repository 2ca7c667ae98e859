package rowstore

import (
	"context"
	"fmt"
)

// schemaSQL is applied on every startup; every statement is idempotent so
// repeated application across worker replicas is safe. %[1]d is the
// configured dense-embedding dimension, used only by the audit table —
// the live dense index lives in Qdrant, not here.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	type TEXT NOT NULL,
	version INT NOT NULL DEFAULT 1,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS documents_tenant_idx ON documents (tenant_id);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	tenant_id TEXT NOT NULL,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	token_count INT NOT NULL,
	section_title TEXT,
	page_number INT,
	parent_section_id TEXT NOT NULL,
	lexical_vector tsvector,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS chunks_doc_chunk_idx ON chunks (document_id, chunk_index);
CREATE INDEX IF NOT EXISTS chunks_tenant_doc_idx ON chunks (tenant_id, document_id);
CREATE INDEX IF NOT EXISTS chunks_lexical_idx ON chunks USING GIN (lexical_vector);

CREATE TABLE IF NOT EXISTS chat_interactions (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	citation_count INT NOT NULL,
	latency_total_ms BIGINT NOT NULL,
	latency_retrieval_ms BIGINT NOT NULL,
	latency_generation_ms BIGINT NOT NULL,
	prompt_tokens INT NOT NULL,
	completion_tokens INT NOT NULL,
	total_tokens INT NOT NULL,
	model_name TEXT NOT NULL,
	cost_estimate DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS chat_interactions_tenant_created_idx ON chat_interactions (tenant_id, created_at);

CREATE TABLE IF NOT EXISTS chat_feedbacks (
	id TEXT PRIMARY KEY,
	interaction_id TEXT NOT NULL REFERENCES chat_interactions(id) ON DELETE CASCADE,
	rating INT NOT NULL,
	comment TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (interaction_id)
);

CREATE TABLE IF NOT EXISTS chunk_embedding_audit (
	chunk_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func (s *Store) ensureSchema(ctx context.Context, vectorDim int) error {
	if vectorDim <= 0 {
		vectorDim = 768
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(schemaSQL, vectorDim)); err != nil {
		return fmt.Errorf("rowstore: ensure schema: %w", err)
	}
	return nil
}
