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

package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
	"github.com/poiesic/corpus/vector"
)

// ReindexConfig holds configuration for a reindex run.
type ReindexConfig struct {
	// Collection restricts the run to one collection; empty means all.
	Collection string

	// BatchSize is the number of documents embedded per API call.
	BatchSize int

	// ReportInterval is how often to report progress (number of documents).
	ReportInterval int

	// MaxRetries is the retry limit for each vector write.
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay time.Duration
}

// DefaultReindexConfig returns a ReindexConfig with sensible defaults.
func DefaultReindexConfig() *ReindexConfig {
	return &ReindexConfig{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer re-embeds already completed documents, typically after an
// embedding model change. Vectors are keyed by the document's stable ID, so
// each write overwrites the previous embedding and the run converges on one
// entry per document regardless of how often it is repeated.
type Reindexer struct {
	store    storage.StagingStore
	embedder ai.Embedder
	vectors  vector.Store
	config   *ReindexConfig
	progress io.Writer
}

// NewReindexer creates a reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(store storage.StagingStore, embedder ai.Embedder, vectors vector.Store, config *ReindexConfig, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultReindexConfig()
	}
	return &Reindexer{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		config:   config,
		progress: progress,
	}
}

// Run re-embeds every completed document in scope and reports progress.
func (r *Reindexer) Run(ctx context.Context) error {
	var docs []*core.StagedDocument
	for doc, err := range r.store.QueryByStatus(ctx, core.StatusCompleted, r.config.Collection) {
		if err != nil {
			return fmt.Errorf("querying completed documents: %w", err)
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No completed documents found (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		len(docs), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, len(docs), r.config.ReportInterval)
	tracker.Start()

	processed := 0
	for start := 0; start < len(docs); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		if err := r.processBatch(ctx, docs[start:end]); err != nil {
			return err
		}

		processed += end - start
		tracker.Update(processed)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents in %v (%.1f documents/sec)\n",
		len(docs), elapsed.Round(time.Second), float64(len(docs))/elapsed.Seconds())

	return nil
}

func (r *Reindexer) processBatch(ctx context.Context, docs []*core.StagedDocument) error {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.NormalizedText
	}

	var vectors [][]float32
	embed := func() error {
		var err error
		vectors, err = r.embedder.EmbedTexts(ctx, texts)
		return err
	}
	if err := RetryWithBackoff(ctx, embed, r.config.MaxRetries, r.config.RetryDelay); err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	groups := make(map[string][]vector.Entry)
	for i, doc := range docs {
		groups[doc.Collection] = append(groups[doc.Collection], vector.Entry{
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
		})
	}

	for collection, entries := range groups {
		batch := entries
		upsert := func() error {
			if err := r.vectors.EnsureCollection(ctx, collection, r.embedder.Dimensions()); err != nil {
				return err
			}
			return r.vectors.Upsert(ctx, collection, batch)
		}
		if err := RetryWithBackoff(ctx, upsert, r.config.MaxRetries, r.config.RetryDelay); err != nil {
			return fmt.Errorf("writing vectors for %s: %w", collection, err)
		}
	}

	return nil
}
