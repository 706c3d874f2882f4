package badger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

const (
	// claimConflictRetries bounds how often a claim transaction is retried
	// after losing an SSI conflict to a concurrent claimer.
	claimConflictRetries = 5
)

// StagingStore implements storage.StagingStore on BadgerDB.
type StagingStore struct {
	backend *Backend
	logger  *slog.Logger

	maxRetries    int
	retryBase     time.Duration
	rateLimitBase time.Duration
	maxBackoff    time.Duration
	claimTTL      time.Duration
}

var _ storage.StagingStore = (*StagingStore)(nil)

// Option configures a StagingStore.
type Option func(*StagingStore) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *StagingStore) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMaxRetries sets how many failures a document may accumulate before it
// becomes terminally failed. Default is 5.
func WithMaxRetries(n int) Option {
	return func(s *StagingStore) error {
		if n < 1 {
			return fmt.Errorf("max retries must be at least 1")
		}
		s.maxRetries = n
		return nil
	}
}

// WithRetryBackoff sets the exponential backoff schedule applied when a
// document fails with a transient error: base*2^(retryCount-1), capped at max.
// Defaults are 2s base and 5m cap.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(s *StagingStore) error {
		if base <= 0 || max < base {
			return fmt.Errorf("invalid backoff schedule")
		}
		s.retryBase = base
		s.maxBackoff = max
		return nil
	}
}

// WithRateLimitBackoff sets the (longer) backoff base used when the failure
// was a rate-limit rejection. Default is 30s.
func WithRateLimitBackoff(base time.Duration) Option {
	return func(s *StagingStore) error {
		if base <= 0 {
			return fmt.Errorf("invalid rate limit backoff")
		}
		s.rateLimitBase = base
		return nil
	}
}

// WithClaimTTL sets how long a claim may be held before another worker is
// allowed to reclaim the document (covers workers that crashed mid-batch).
// Default is 10m.
func WithClaimTTL(ttl time.Duration) Option {
	return func(s *StagingStore) error {
		if ttl <= 0 {
			return fmt.Errorf("invalid claim TTL")
		}
		s.claimTTL = ttl
		return nil
	}
}

// NewStagingStore creates a staging store on the given backend.
//
// Returns storage.StagingStore interface to enforce abstraction.
func NewStagingStore(backend *Backend, opts ...Option) (storage.StagingStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}

	s := &StagingStore{
		backend:       backend,
		logger:        slog.Default(),
		maxRetries:    5,
		retryBase:     2 * time.Second,
		rateLimitBase: 30 * time.Second,
		maxBackoff:    5 * time.Minute,
		claimTTL:      10 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Close releases store resources. The backend is owned by the caller.
func (s *StagingStore) Close() error {
	return nil
}

// Lookup returns the parent-level document ID for (collection, contentHash).
func (s *StagingStore) Lookup(ctx context.Context, collection, contentHash string) (core.ID, bool, error) {
	var found bool
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeHashKey(collection, contentHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	if err != nil {
		return 0, false, core.Transient(err)
	}
	if !found {
		return 0, false, nil
	}
	return core.DocumentID(collection, contentHash), true, nil
}

// Insert stores all chunks of one logical document. Idempotent at the parent
// level: an existing (collection, contentHash) pair returns the stored rows
// unchanged.
func (s *StagingStore) Insert(ctx context.Context, docs ...*core.StagedDocument) ([]*core.StagedDocument, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	collection := docs[0].Collection
	contentHash := docs[0].ContentHash
	for _, doc := range docs {
		if err := core.ValidateStagedDocument(doc); err != nil {
			return nil, err
		}
		if doc.Collection != collection || doc.ContentHash != contentHash {
			return nil, fmt.Errorf("%w: chunks of different documents in one insert", storage.ErrInvalidQuery)
		}
	}

	hashKey := makeHashKey(collection, contentHash)
	var result []*core.StagedDocument

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(hashKey)
		if err == nil {
			// Idempotent ingestion: return the stored rows unchanged.
			var ids []core.ID
			if verr := item.Value(func(val []byte) error {
				var uerr error
				ids, uerr = storage.UnmarshalIDList(val)
				return uerr
			}); verr != nil {
				return verr
			}
			existing, gerr := s.readDocs(tx, ids)
			if gerr != nil {
				return gerr
			}
			result = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		now := time.Now().UTC()
		ids := make([]core.ID, len(docs))
		for i, doc := range docs {
			if doc.Id == 0 {
				if doc.ChunkCount == 1 {
					doc.Id = core.DocumentID(collection, contentHash)
				} else {
					doc.Id = core.ChunkID(collection, contentHash, doc.ChunkIndex)
					doc.ParentId = core.DocumentID(collection, contentHash)
				}
			}
			if len(doc.Audience) == 0 {
				doc.Audience = core.DefaultAudience()
			}
			doc.Status = core.StatusPending
			doc.VectorRef = ""
			doc.RetryCount = 0
			doc.LastError = ""
			doc.ClaimedBy = ""
			doc.ClaimedAt = time.Time{}
			doc.NextAttemptAt = time.Time{}
			doc.CreatedAt = now
			doc.UpdatedAt = now

			if werr := s.writeDoc(tx, doc); werr != nil {
				return werr
			}
			if serr := tx.Set(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id), storage.MarshalID(doc.Id)); serr != nil {
				return serr
			}
			ids[i] = doc.Id
		}

		idList, merr := storage.MarshalIDList(ids)
		if merr != nil {
			return merr
		}
		if serr := tx.Set(hashKey, idList); serr != nil {
			return serr
		}

		result = docs
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get retrieves a single staged document by ID.
func (s *StagingStore) Get(ctx context.Context, id core.ID) (*core.StagedDocument, error) {
	var result *core.StagedDocument
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		doc, rerr := s.readDoc(tx, id)
		if rerr != nil {
			return rerr
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		result = doc
		return nil
	}, false)
	return result, err
}

// ClaimBatch atomically claims up to limit documents for workerToken.
// Concurrent claimers racing over the same rows are serialized by Badger's
// transaction conflict detection: the loser retries against the remaining
// pending set, so no row is ever handed to two workers.
func (s *StagingStore) ClaimBatch(ctx context.Context, limit int, workerToken string) ([]*core.StagedDocument, error) {
	if limit <= 0 {
		return nil, nil
	}

	for attempt := 0; attempt < claimConflictRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var claimed []*core.StagedDocument
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			now := time.Now().UTC()
			ids := s.scanClaimable(tx, now, limit)
			if len(ids) == 0 {
				return nil
			}

			for _, id := range ids {
				doc, rerr := s.readDoc(tx, id)
				if rerr != nil {
					return rerr
				}
				if doc == nil || !s.claimable(doc, now) {
					continue // index lagged behind the row; skip
				}

				if derr := tx.Delete(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id)); derr != nil {
					return derr
				}

				doc.Status = core.StatusEmbedding
				doc.ClaimedBy = workerToken
				doc.ClaimedAt = now
				doc.UpdatedAt = now

				if werr := s.writeDoc(tx, doc); werr != nil {
					return werr
				}
				if serr := tx.Set(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id), storage.MarshalID(doc.Id)); serr != nil {
					return serr
				}
				claimed = append(claimed, doc)
			}

			if len(claimed) == 0 {
				return nil
			}
			return tx.Commit()
		}, true)

		if err == nil {
			return claimed, nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return nil, core.Transient(err)
		}
		s.logger.Debug("claim conflict, retrying", "attempt", attempt+1, "worker", workerToken)
	}

	// Persistent contention: let the caller's next tick try again.
	return nil, nil
}

// Complete marks a claimed document as successfully embedded.
func (s *StagingStore) Complete(ctx context.Context, id core.ID, vectorRef string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := s.readDoc(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Status == core.StatusCompleted {
			return nil // terminal; duplicate completion after crash-restart
		}
		if doc.Status != core.StatusEmbedding {
			return storage.ErrNotClaimed
		}

		if derr := tx.Delete(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id)); derr != nil {
			return derr
		}

		now := time.Now().UTC()
		doc.Status = core.StatusCompleted
		doc.VectorRef = vectorRef
		doc.LastError = ""
		doc.ClaimedBy = ""
		doc.ClaimedAt = time.Time{}
		doc.NextAttemptAt = time.Time{}
		doc.UpdatedAt = now

		if werr := s.writeDoc(tx, doc); werr != nil {
			return werr
		}
		if serr := tx.Set(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id), storage.MarshalID(doc.Id)); serr != nil {
			return serr
		}
		return tx.Commit()
	}, true)
}

// Fail records a processing failure and drives the retry state machine.
func (s *StagingStore) Fail(ctx context.Context, id core.ID, cause error) error {
	if cause == nil {
		cause = errors.New("unspecified failure")
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := s.readDoc(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.Status == core.StatusCompleted || doc.Status == core.StatusFailed {
			return nil // terminal states stay terminal
		}
		if doc.Status != core.StatusEmbedding {
			return storage.ErrNotClaimed
		}

		if derr := tx.Delete(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id)); derr != nil {
			return derr
		}

		now := time.Now().UTC()
		doc.ClaimedBy = ""
		doc.ClaimedAt = time.Time{}
		doc.UpdatedAt = now

		switch {
		case core.IsPermanent(cause):
			doc.Status = core.StatusFailed
			doc.LastError = cause.Error()
			doc.NextAttemptAt = time.Time{}

		default:
			doc.RetryCount++
			doc.LastError = cause.Error()
			if doc.RetryCount >= s.maxRetries {
				doc.Status = core.StatusFailed
				doc.LastError = fmt.Sprintf("%v: %v", core.ErrRetriesExhausted, cause)
				doc.NextAttemptAt = time.Time{}
			} else {
				doc.Status = core.StatusPending
				doc.NextAttemptAt = now.Add(s.backoffDelay(doc.RetryCount, core.IsRateLimited(cause)))
			}
		}

		if werr := s.writeDoc(tx, doc); werr != nil {
			return werr
		}
		if serr := tx.Set(makeStatusKey(doc.Status, indexTimestamp(doc), doc.Id), storage.MarshalID(doc.Id)); serr != nil {
			return serr
		}
		return tx.Commit()
	}, true)
}

// QueryByStatus yields documents in the given status, optionally restricted
// to one collection.
func (s *StagingStore) QueryByStatus(ctx context.Context, status core.EmbeddingStatus, collection string) iter.Seq2[*core.StagedDocument, error] {
	return func(yield func(*core.StagedDocument, error) bool) {
		var docs []*core.StagedDocument
		err := s.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeStatusPrefix(status)
			it := tx.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				var id core.ID
				if verr := it.Item().Value(func(val []byte) error {
					var uerr error
					id, uerr = storage.UnmarshalID(val)
					return uerr
				}); verr != nil {
					return verr
				}
				doc, rerr := s.readDoc(tx, id)
				if rerr != nil {
					return rerr
				}
				if doc == nil || doc.Status != status {
					continue
				}
				if collection != "" && doc.Collection != collection {
					continue
				}
				docs = append(docs, doc)
			}
			return nil
		}, false)

		if err != nil {
			yield(nil, core.Transient(err))
			return
		}
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// CountByStatus returns per-collection status counts in one scan.
func (s *StagingStore) CountByStatus(ctx context.Context) (map[string]storage.StatusCounts, error) {
	counts := make(map[string]storage.StatusCounts)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var doc *core.StagedDocument
			if verr := it.Item().Value(func(val []byte) error {
				var uerr error
				doc, uerr = storage.UnmarshalDocument(val)
				return uerr
			}); verr != nil {
				return verr
			}
			c := counts[doc.Collection]
			switch doc.Status {
			case core.StatusPending:
				c.Pending++
			case core.StatusEmbedding:
				c.Embedding++
			case core.StatusCompleted:
				c.Completed++
			case core.StatusFailed:
				c.Failed++
			}
			counts[doc.Collection] = c
		}
		return nil
	}, false)
	if err != nil {
		return nil, core.Transient(err)
	}
	return counts, nil
}

// claimable reports whether a document may be handed to a worker right now.
func (s *StagingStore) claimable(doc *core.StagedDocument, now time.Time) bool {
	switch doc.Status {
	case core.StatusPending:
		return !doc.NextAttemptAt.After(now)
	case core.StatusEmbedding:
		return doc.ClaimedAt.Add(s.claimTTL).Before(now)
	default:
		return false
	}
}

// scanClaimable collects up to limit candidate IDs: pending rows whose
// backoff has elapsed, then embedding rows with expired claims. Both index
// scans stop early because keys sort by the relevant timestamp.
func (s *StagingStore) scanClaimable(tx *badger.Txn, now time.Time, limit int) []core.ID {
	var ids []core.ID

	collect := func(status core.EmbeddingStatus, cutoff time.Time) {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeStatusPrefix(status)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(ids) < limit; it.Next() {
			ts := statusKeyTime(status, it.Item().Key())
			if ts.After(cutoff) {
				return
			}
			var id core.ID
			if err := it.Item().Value(func(val []byte) error {
				var uerr error
				id, uerr = storage.UnmarshalID(val)
				return uerr
			}); err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}

	collect(core.StatusPending, now)
	if len(ids) < limit {
		collect(core.StatusEmbedding, now.Add(-s.claimTTL))
	}
	return ids
}

// backoffDelay computes base*2^(retryCount-1) capped at the configured max.
func (s *StagingStore) backoffDelay(retryCount int, rateLimited bool) time.Duration {
	base := s.retryBase
	if rateLimited {
		base = s.rateLimitBase
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	if delay > s.maxBackoff {
		return s.maxBackoff
	}
	return delay
}

// readDoc reads a document by ID, returning nil when absent.
func (s *StagingStore) readDoc(tx *badger.Txn, id core.ID) (*core.StagedDocument, error) {
	item, err := tx.Get(makeDocKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc *core.StagedDocument
	err = item.Value(func(val []byte) error {
		var uerr error
		doc, uerr = storage.UnmarshalDocument(val)
		return uerr
	})
	return doc, err
}

// readDocs reads documents in ID order, skipping missing rows.
func (s *StagingStore) readDocs(tx *badger.Txn, ids []core.ID) ([]*core.StagedDocument, error) {
	docs := make([]*core.StagedDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := s.readDoc(tx, id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *StagingStore) writeDoc(tx *badger.Txn, doc *core.StagedDocument) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocKey(doc.Id), value)
}
