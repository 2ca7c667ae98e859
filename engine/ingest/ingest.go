// Package ingest drives the ingestion state machine: a document moves
// UPLOADED → PROCESSING → PARSED → CHUNKED → EMBEDDED → COMPLETED (or FAILED after its
// retry budget is exhausted), with every transition durable before the next
// stage begins.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/northlane/ragvault/engine/chunking"
	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/embedding"
	"github.com/northlane/ragvault/engine/rowstore"
	"github.com/northlane/ragvault/engine/semantic"
	"github.com/northlane/ragvault/pkg/fn"
	"github.com/northlane/ragvault/pkg/natsutil"
)

// RowStore is the subset of engine/rowstore.Store the pipeline needs,
// narrowed so tests can fake it without a live Postgres.
type RowStore interface {
	GetDocument(ctx context.Context, tenantID, documentID string) (domain.Document, error)
	UpdateDocumentStatus(ctx context.Context, tenantID, documentID string, status domain.Status) error
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error
}

// DenseStore is the subset of engine/semantic.VectorStore the pipeline
// needs to land embeddings in the tenant's namespace.
type DenseStore interface {
	EnsureCollection(ctx context.Context, tenantID string, dims int) error
	Upsert(ctx context.Context, tenantID string, records []domain.VectorRecord) error
}

var (
	_ RowStore   = (*rowstore.Store)(nil)
	_ DenseStore = (*semantic.VectorStore)(nil)
)

const (
	// IngestSubject is the NATS subject carrying documents awaiting ingestion.
	IngestSubject = "ragvault.ingest.document"
	// DLQSubject is where documents land once their retry budget is spent.
	DLQSubject = "ragvault.ingest.document.dlq"
	// MaxRetries bounds how many times a failed run is redelivered before
	// the document is marked FAILED.
	MaxRetries = 3
	// baseBackoff and capBackoff bound the exponential-with-jitter delay
	// between redeliveries (spec: base 1s, cap 8s).
	baseBackoff = time.Second
	capBackoff  = 8 * time.Second
	// denseBatchSize is the max vector records per upsert call.
	denseBatchSize = 100
)

// BlobFetcher retrieves the raw bytes a document was uploaded with. Its
// concrete backing store (object storage, local disk, ...) is out of scope;
// only the contract the parser needs lives here.
type BlobFetcher interface {
	FetchRaw(ctx context.Context, storagePath string) ([]byte, error)
}

// Deps holds the external dependencies the ingestion pipeline wires
// together. Every field is an interface or a narrow struct so tests can
// substitute fakes without a live Postgres/Qdrant/NATS stack.
type Deps struct {
	RowStore    RowStore
	VectorStore DenseStore
	Parser      domain.SectionParser
	Chunker     *chunking.Chunker
	Embedder    *embedding.Service
	Fetcher     BlobFetcher
	Logger      *slog.Logger
}

// Pipeline runs the FSM stages for one document at a time. It is safe for
// concurrent use; each Run call owns its own State value.
type Pipeline struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
	run  fn.Stage[State, State]
}

// NewPipeline wires the FSM stages in order, each wrapped with a traced
// span so stage boundaries show up in spans the same way the teacher's
// logged taps did for the scraper pipeline.
func NewPipeline(deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{deps: deps, log: log, now: time.Now}
	p.run = fn.Pipeline(
		fn.TracedStage("ingest.parse", p.parseStage),
		fn.TracedStage("ingest.chunk", p.chunkStage),
		fn.TracedStage("ingest.embed", p.embedStage),
		fn.TracedStage("ingest.index", p.indexStage),
	)
	return p
}

// Run advances doc through every FSM stage, returning the document id on
// success. Each stage persists its own status transition before returning.
// A retried run starts again at the parse stage and does not skip stages
// already recorded; chunk inserts ignore existing (document_id, chunk_index)
// rows and vectors are upserted by id, so a rerun does not duplicate them.
func (p *Pipeline) Run(ctx context.Context, doc domain.Document) (string, error) {
	result := p.run(ctx, State{Doc: doc})
	final, err := result.Unwrap()
	if err != nil {
		return "", err
	}
	return final.Doc.ID, nil
}

func (p *Pipeline) parseStage(ctx context.Context, st State) fn.Result[State] {
	raw, err := p.deps.Fetcher.FetchRaw(ctx, st.Doc.StoragePath)
	if err != nil {
		return fn.Err[State](fmt.Errorf("ingest: fetch %s: %w", st.Doc.StoragePath, err))
	}
	sections, err := p.deps.Parser.Parse(st.Doc, raw)
	if err != nil {
		return fn.Err[State](fmt.Errorf("ingest: parse %s: %w", st.Doc.ID, err))
	}
	if err := p.advance(ctx, st.Doc, domain.StatusParsed); err != nil {
		return fn.Err[State](err)
	}
	st.Doc.Status = domain.StatusParsed
	st.Sections = sections
	return fn.Ok(st)
}

func (p *Pipeline) chunkStage(ctx context.Context, st State) fn.Result[State] {
	chunks, err := p.deps.Chunker.ChunkDocument(st.Doc, st.Sections)
	if err != nil {
		return fn.Err[State](fmt.Errorf("ingest: chunk %s: %w", st.Doc.ID, err))
	}
	now := p.now()
	for i := range chunks {
		chunks[i].ID = domain.VectorRecordID(chunks[i].DocumentID, chunks[i].ChunkIndex)
		chunks[i].CreatedAt = now
	}
	if err := p.deps.RowStore.UpsertChunks(ctx, chunks); err != nil {
		return fn.Err[State](fmt.Errorf("ingest: persist chunks %s: %w", st.Doc.ID, err))
	}
	if err := p.advance(ctx, st.Doc, domain.StatusChunked); err != nil {
		return fn.Err[State](err)
	}
	st.Doc.Status = domain.StatusChunked
	st.Chunks = chunks
	return fn.Ok(st)
}

func (p *Pipeline) embedStage(ctx context.Context, st State) fn.Result[State] {
	embedded, err := p.deps.Embedder.EmbedChunks(ctx, st.Chunks)
	if err != nil {
		return fn.Err[State](fmt.Errorf("ingest: embed %s: %w", st.Doc.ID, err))
	}
	if len(embedded) != len(st.Chunks) {
		return fn.Err[State](domain.NewFailure(domain.KindIntegrity,
			fmt.Sprintf("ingest: %s produced %d embeddings for %d chunks", st.Doc.ID, len(embedded), len(st.Chunks)), nil))
	}
	if err := p.advance(ctx, st.Doc, domain.StatusEmbedded); err != nil {
		return fn.Err[State](err)
	}
	st.Doc.Status = domain.StatusEmbedded
	st.Embedded = embedded
	return fn.Ok(st)
}

func (p *Pipeline) indexStage(ctx context.Context, st State) fn.Result[State] {
	if len(st.Embedded) == 0 {
		if err := p.advance(ctx, st.Doc, domain.StatusCompleted); err != nil {
			return fn.Err[State](err)
		}
		st.Doc.Status = domain.StatusCompleted
		return fn.Ok(st)
	}

	dims := len(st.Embedded[0].Embedding)
	if err := p.deps.VectorStore.EnsureCollection(ctx, st.Doc.TenantID, dims); err != nil {
		return fn.Err[State](fmt.Errorf("ingest: ensure collection %s: %w", st.Doc.TenantID, err))
	}

	records := make([]domain.VectorRecord, len(st.Embedded))
	for i, ec := range st.Embedded {
		records[i] = domain.VectorRecord{
			ID:        ec.Chunk.ID,
			TenantID:  ec.Chunk.TenantID,
			Embedding: ec.Embedding,
			Payload: map[string]any{
				"document_id":   ec.Chunk.DocumentID,
				"chunk_index":   ec.Chunk.ChunkIndex,
				"section_title": ec.Chunk.SectionTitle,
				"created_at":    ec.Chunk.CreatedAt,
			},
		}
	}

	for _, batch := range fn.Chunk(records, denseBatchSize) {
		if err := p.deps.VectorStore.Upsert(ctx, st.Doc.TenantID, batch); err != nil {
			return fn.Err[State](fmt.Errorf("ingest: upsert vectors %s: %w", st.Doc.ID, err))
		}
	}

	if err := p.advance(ctx, st.Doc, domain.StatusCompleted); err != nil {
		return fn.Err[State](err)
	}
	st.Doc.Status = domain.StatusCompleted
	return fn.Ok(st)
}

func (p *Pipeline) advance(ctx context.Context, doc domain.Document, status domain.Status) error {
	if err := p.deps.RowStore.UpdateDocumentStatus(ctx, doc.TenantID, doc.ID, status); err != nil {
		return fmt.Errorf("ingest: advance %s to %s: %w", doc.ID, status, err)
	}
	p.log.Info("ingest.stage", "document_id", doc.ID, "tenant_id", doc.TenantID, "status", string(status))
	return nil
}

// fail marks a document FAILED once its retry budget is exhausted. Failure
// to persist the terminal state is logged but not retried further; the
// document is left in its last durable stage for manual recovery.
func (p *Pipeline) fail(ctx context.Context, tenantID, documentID string, cause error) {
	if err := p.deps.RowStore.UpdateDocumentStatus(ctx, tenantID, documentID, domain.StatusFailed); err != nil {
		p.log.Error("ingest.fail.persist", "document_id", documentID, "error", err)
	}
	p.log.Error("ingest.failed", "document_id", documentID, "tenant_id", tenantID, "cause", cause)
}

// Enqueue publishes a newly-uploaded document for ingestion.
func Enqueue(ctx context.Context, nc *nats.Conn, tenantID, documentID string) error {
	return natsutil.Publish(ctx, nc, IngestSubject, Message{TenantID: tenantID, DocumentID: documentID})
}

// StartConsumer subscribes to IngestSubject and runs every message through
// the FSM pipeline, retrying transient failures with capped exponential
// backoff and jitter before giving up to the DLQ.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return natsutil.Subscribe(nc, IngestSubject, func(ctx context.Context, msg Message) {
		doc, err := deps.RowStore.GetDocument(ctx, msg.TenantID, msg.DocumentID)
		if err != nil {
			log.Error("ingest.lookup_failed", "document_id", msg.DocumentID, "error", err)
			return
		}
		if doc.Status == domain.StatusCompleted {
			log.Info("ingest.skip_completed", "document_id", msg.DocumentID)
			return
		}
		if err := pipeline.advance(ctx, doc, domain.StatusProcessing); err != nil {
			log.Error("ingest.mark_processing_failed", "document_id", msg.DocumentID, "error", err)
			return
		}
		doc.Status = domain.StatusProcessing

		if _, runErr := pipeline.Run(ctx, doc); runErr != nil {
			retryOrFail(nc, pipeline, log, msg, runErr)
			return
		}
		log.Info("ingest.success", "document_id", msg.DocumentID)
	})
}

func retryOrFail(nc *nats.Conn, pipeline *Pipeline, log *slog.Logger, msg Message, cause error) {
	if msg.RetryCount >= MaxRetries {
		pipeline.fail(context.Background(), msg.TenantID, msg.DocumentID, cause)
		dlq := dlqMessage{Message: msg, Error: cause.Error()}
		if err := natsutil.Publish(context.Background(), nc, DLQSubject, dlq); err != nil {
			log.Error("ingest.dlq_publish_failed", "document_id", msg.DocumentID, "error", err)
		}
		return
	}

	retry := msg
	retry.RetryCount++
	delay := backoffWithJitter(retry.RetryCount)
	log.Warn("ingest.retry_scheduled", "document_id", msg.DocumentID, "attempt", retry.RetryCount, "delay", delay, "error", cause)
	time.AfterFunc(delay, func() {
		if err := natsutil.Publish(context.Background(), nc, IngestSubject, retry); err != nil {
			log.Error("ingest.retry_publish_failed", "document_id", msg.DocumentID, "error", err)
		}
	})
}

// backoffWithJitter doubles the base delay per attempt, caps it, and returns
// a random delay between half of that step and the full step, so retries
// from a failed batch don't thunder back in lockstep.
func backoffWithJitter(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > capBackoff {
		d = capBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}
