// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler drains the staging store: it claims pending documents,
// embeds their text in batches, writes the vectors and drives each row to a
// terminal status. Multiple scheduler instances may run against the same
// store; the store's claim primitive guarantees each document is processed
// by exactly one of them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
	"github.com/poiesic/corpus/vector"
)

// Scheduler polls the staging store and processes claimed batches on a
// worker pool.
type Scheduler struct {
	store    storage.StagingStore
	embedder ai.Embedder
	vectors  vector.Store
	pool     *ants.Pool
	logger   *slog.Logger

	workerToken string
	interval    time.Duration
	batchSize   int

	stats counters

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithInterval sets the poll interval. Default is 15s.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive")
		}
		s.interval = d
		return nil
	}
}

// WithBatchSize sets how many documents one claim takes. Default is 32.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive")
		}
		s.batchSize = n
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent batch processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Scheduler) error {
		if size < 1 {
			size = 1
		}
		if s.pool != nil {
			s.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		s.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a scheduler. Each instance carries a unique worker token so
// claims are attributable in the staging store.
func New(store storage.StagingStore, embedder ai.Embedder, vectors vector.Store, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		store:       store,
		embedder:    embedder,
		vectors:     vectors,
		pool:        pool,
		logger:      slog.Default(),
		workerToken: uuid.NewString(),
		interval:    15 * time.Second,
		batchSize:   32,
	}

	for _, opt := range opts {
		if optErr := opt(s); optErr != nil {
			s.pool.Release()
			return nil, optErr
		}
	}

	s.logger = s.logger.With("component", "scheduler", "worker", s.workerToken)
	return s, nil
}

// Start launches the poll loop. Returns ErrAlreadyRunning if already started.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(runCtx)

	s.logger.Info("scheduler started", "interval", s.interval, "batch_size", s.batchSize)
	return nil
}

// Stop halts the poll loop and waits for in-flight batches to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Release stops the scheduler and frees the worker pool. The scheduler must
// not be used after Release.
func (s *Scheduler) Release() {
	s.Stop()
	s.pool.Release()
}

// Stats returns a snapshot of the processing counters.
func (s *Scheduler) Stats() Stats {
	return s.stats.snapshot()
}

// WorkerToken returns this instance's claim token.
func (s *Scheduler) WorkerToken() string {
	return s.workerToken
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Drain immediately on start rather than waiting a full interval.
	s.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stats.ticks.Add(1)
			s.drain(ctx)
		}
	}
}

// drain claims and processes batches until the claimable set is empty,
// fanning batches out to the worker pool.
func (s *Scheduler) drain(ctx context.Context) {
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		docs, err := s.store.ClaimBatch(ctx, s.batchSize, s.workerToken)
		if err != nil {
			s.logger.Error("claim failed", "err", err)
			break
		}
		if len(docs) == 0 {
			break
		}
		s.stats.claimed.Add(uint64(len(docs)))

		batch := docs
		wg.Add(1)
		if submitErr := s.pool.Submit(func() {
			defer wg.Done()
			s.processBatch(ctx, batch)
		}); submitErr != nil {
			wg.Done()
			s.logger.Error("pool submit failed", "err", submitErr)
			s.failBatch(ctx, batch, core.Transient(submitErr))
			break
		}
	}
	wg.Wait()
}

// RunOnce claims one batch and processes it synchronously. Returns the
// number of documents claimed. Useful for tests and one-shot CLI runs;
// callers loop until it returns zero to fully drain the store.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	docs, err := s.store.ClaimBatch(ctx, s.batchSize, s.workerToken)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	s.stats.claimed.Add(uint64(len(docs)))
	s.processBatch(ctx, docs)
	return len(docs), nil
}

// processBatch embeds a claimed batch and writes the vectors. Every claimed
// document ends the call either completed or failed; rows are never left in
// StatusEmbedding past an orderly return.
func (s *Scheduler) processBatch(ctx context.Context, docs []*core.StagedDocument) {
	// Reject rows that can no longer be embedded before spending API calls.
	valid := docs[:0:len(docs)]
	for _, doc := range docs {
		if err := core.ValidateStagedDocument(doc); err != nil {
			s.fail(ctx, doc.Id, core.Permanent(err))
			continue
		}
		valid = append(valid, doc)
	}
	if len(valid) == 0 {
		return
	}

	texts := make([]string, len(valid))
	for i, doc := range valid {
		texts[i] = doc.NormalizedText
	}

	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.failBatch(ctx, valid, classify(err))
		return
	}
	if len(vectors) != len(valid) {
		s.failBatch(ctx, valid, core.Transient(
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(valid))))
		return
	}

	// Group by collection so each vector backend write is one upsert.
	groups := make(map[string][]int)
	for i, doc := range valid {
		groups[doc.Collection] = append(groups[doc.Collection], i)
	}

	for collection, indices := range groups {
		entries := make([]vector.Entry, len(indices))
		for j, i := range indices {
			doc := valid[i]
			entries[j] = vector.Entry{
				ID:     doc.Id,
				Vector: vectors[i],
				Payload: vector.Payload{
					DocID:      fmt.Sprintf("%d", doc.Id),
					ParentID:   parentRef(doc),
					Collection: doc.Collection,
					Audience:   doc.Audience,
					ChunkIndex: doc.ChunkIndex,
					Text:       doc.NormalizedText,
					UpdatedAt:  doc.UpdatedAt,
				},
			}
		}

		upsert := func() error {
			if err := s.vectors.EnsureCollection(ctx, collection, s.embedder.Dimensions()); err != nil {
				return err
			}
			return s.vectors.Upsert(ctx, collection, entries)
		}

		if err := RetryWithBackoff(ctx, upsert, 3, 250*time.Millisecond); err != nil {
			batch := make([]*core.StagedDocument, len(indices))
			for j, i := range indices {
				batch[j] = valid[i]
			}
			s.failBatch(ctx, batch, classify(err))
			continue
		}

		for _, i := range indices {
			doc := valid[i]
			ref := fmt.Sprintf("%s/%d", collection, doc.Id)
			if err := s.store.Complete(ctx, doc.Id, ref); err != nil {
				s.logger.Error("complete failed", "doc_id", doc.Id, "err", err)
				continue
			}
			s.stats.completed.Add(1)
		}
	}
}

func (s *Scheduler) failBatch(ctx context.Context, docs []*core.StagedDocument, cause error) {
	for _, doc := range docs {
		s.fail(ctx, doc.Id, cause)
	}
}

func (s *Scheduler) fail(ctx context.Context, id core.ID, cause error) {
	if err := s.store.Fail(ctx, id, cause); err != nil {
		s.logger.Error("fail transition failed", "doc_id", id, "err", err)
		return
	}
	if core.IsPermanent(cause) {
		s.stats.failed.Add(1)
		s.logger.Warn("document failed permanently", "doc_id", id, "cause", cause)
	} else {
		s.stats.retried.Add(1)
		s.logger.Debug("document scheduled for retry", "doc_id", id, "cause", cause)
	}
}

// classify maps raw backend errors onto the retry taxonomy. Errors already
// wrapped by the callee pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if core.IsPermanent(err) || core.IsRateLimited(err) || core.IsTransient(err) {
		return err
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return core.RateLimited(err)
	}
	return core.Transient(err)
}

func parentRef(doc *core.StagedDocument) string {
	if doc.ParentId == 0 {
		return ""
	}
	return fmt.Sprintf("%d", doc.ParentId)
}
