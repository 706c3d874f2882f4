package ingest

import (
	"context"
	"log/slog"

	"github.com/poiesic/corpus/chunk"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// Document is the ingestion input: raw content plus routing metadata.
type Document struct {
	// Collection names the corpus this document belongs to.
	Collection string

	// Content is the raw document text.
	Content string

	// Audience restricts search visibility. Empty means visible to all
	// consumer classes.
	Audience []core.Audience

	// Capabilities are free-form render classifiers carried through to
	// search results, e.g. "interactive".
	Capabilities []string
}

// Result reports what one Ingest call did.
type Result struct {
	// DocumentID is the stable parent-level identity of the content.
	DocumentID core.ID

	// IDs are the staged row IDs, one per chunk.
	IDs []core.ID

	// Deduplicated is true when the content was already staged and no new
	// rows were written.
	Deduplicated bool
}

// Ingestor normalizes, deduplicates, chunks and stages documents. Staging is
// synchronous; embedding happens later when a scheduler claims the rows.
type Ingestor struct {
	store   storage.StagingStore
	chunker *chunk.Chunker
	logger  *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// NewIngestor creates an ingestor writing to the given staging store.
func NewIngestor(store storage.StagingStore, chunker *chunk.Chunker, opts ...Option) (*Ingestor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}

	i := &Ingestor{
		store:   store,
		chunker: chunker,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}

	return i, nil
}

// Ingest stages one document. Identical content in the same collection is
// detected before chunking and returns the original identity; the staged
// rows are never reset by a duplicate submission.
func (i *Ingestor) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if doc.Collection == "" {
		return nil, core.ErrEmptyCollection
	}
	if err := core.ValidateAudience(doc.Audience); err != nil {
		return nil, err
	}

	normalized := NormalizeText(doc.Content)
	if normalized == "" {
		return nil, core.ErrEmptyContent
	}

	contentHash := core.HashContent(normalized)

	// Dedup check before paying for chunking.
	docID, exists, err := i.store.Lookup(ctx, doc.Collection, contentHash)
	if err != nil {
		return nil, err
	}
	if exists {
		i.logger.Debug("duplicate content skipped",
			"collection", doc.Collection, "doc_id", docID)
		return &Result{DocumentID: docID, Deduplicated: true}, nil
	}

	pieces := i.chunker.Split(normalized)
	if len(pieces) == 0 {
		return nil, core.ErrEmptyContent
	}

	audience := doc.Audience
	if len(audience) == 0 {
		audience = core.DefaultAudience()
	}

	rows := make([]*core.StagedDocument, len(pieces))
	for idx, piece := range pieces {
		rows[idx] = &core.StagedDocument{
			Collection:     doc.Collection,
			ContentHash:    contentHash,
			RawContent:     doc.Content,
			NormalizedText: piece,
			ChunkIndex:     idx,
			ChunkCount:     len(pieces),
			Audience:       audience,
			Capabilities:   doc.Capabilities,
		}
	}

	inserted, err := i.store.Insert(ctx, rows...)
	if err != nil {
		return nil, err
	}

	ids := make([]core.ID, len(inserted))
	for idx, row := range inserted {
		ids[idx] = row.Id
	}

	i.logger.Info("document staged",
		"collection", doc.Collection,
		"chunks", len(ids),
		"doc_id", core.DocumentID(doc.Collection, contentHash))

	return &Result{
		DocumentID: core.DocumentID(doc.Collection, contentHash),
		IDs:        ids,
	}, nil
}
