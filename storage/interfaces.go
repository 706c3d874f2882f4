package storage

import (
	"context"
	"iter"

	"github.com/poiesic/corpus/core"
)

// DedupIndex is the content-hash lookup used to prevent re-ingestion of
// identical content. Pure read; no side effects.
type DedupIndex interface {
	// Lookup returns the parent-level document ID recorded for
	// (collection, contentHash), if any.
	Lookup(ctx context.Context, collection, contentHash string) (core.ID, bool, error)
}

// LexicalHit is one ranked full-text match from the staging store.
type LexicalHit struct {
	Doc   *core.StagedDocument
	Score float64 // BM25 score, kept raw for tie-breaking after fusion
}

// StatusCounts holds per-collection document counts by embedding status,
// emitted for monitoring.
type StatusCounts struct {
	Pending   int
	Embedding int
	Completed int
	Failed    int
}

// StagingStore is the durable buffer between ingestion and embedding.
// Implementations must be thread-safe; the claim primitive must be atomic at
// the storage layer so that no two concurrent callers ever receive the same
// row.
type StagingStore interface {
	DedupIndex

	// Insert stores the given documents, all chunks of one logical document
	// per call. Insertion is idempotent at the parent level: if the
	// (collection, contentHash) pair already exists, the stored rows are
	// returned unchanged. New rows always start as StatusPending.
	Insert(ctx context.Context, docs ...*core.StagedDocument) ([]*core.StagedDocument, error)

	// Get retrieves a single staged document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.StagedDocument, error)

	// ClaimBatch atomically selects up to limit claimable documents, marks
	// them StatusEmbedding with claimedBy=workerToken, and returns them.
	// Claimable means Pending with the backoff timestamp elapsed, or
	// Embedding with a claim older than the store's claim TTL (a worker that
	// crashed mid-batch). Claimed rows are invisible to other claimers.
	ClaimBatch(ctx context.Context, limit int, workerToken string) ([]*core.StagedDocument, error)

	// Complete marks a claimed document StatusCompleted, records the vector
	// reference and clears the claim fields. Completed is terminal; calling
	// Complete on an already completed document is a no-op.
	Complete(ctx context.Context, id core.ID, vectorRef string) error

	// Fail records a processing failure. Permanent errors (core.IsPermanent)
	// mark the document terminally failed immediately. Otherwise the retry
	// count is incremented and, while below the store's retry limit, the
	// document returns to StatusPending with an exponential backoff
	// timestamp (a longer base for rate-limited errors); at the limit it
	// becomes terminally StatusFailed.
	Fail(ctx context.Context, id core.ID, cause error) error

	// QueryByStatus yields documents in the given status, optionally
	// restricted to one collection (empty string means all). Used by the
	// downstream publisher (StatusCompleted only) and by monitoring.
	QueryByStatus(ctx context.Context, status core.EmbeddingStatus, collection string) iter.Seq2[*core.StagedDocument, error]

	// CountByStatus returns per-collection status counts for monitoring.
	CountByStatus(ctx context.Context) (map[string]StatusCounts, error)

	// SearchText performs ranked BM25-style full-text search over the
	// normalized text of staged documents, restricted to the given
	// collections (nil means all) and audience. Results are ordered by
	// score descending, up to limit.
	SearchText(ctx context.Context, query string, collections []string, audience core.Audience, limit int) ([]LexicalHit, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
