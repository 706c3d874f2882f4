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

// Package vector defines the vector database abstraction for corpus.
//
// Entries are keyed by the staged document's content-derived ID, so writing
// an embedding for the same document twice overwrites rather than duplicates:
// re-embedding after a model change converges on one entry per document.
package vector

import (
	"context"
	"time"

	"github.com/poiesic/corpus/core"
)

// Payload is the metadata stored alongside each vector, used for filtered
// retrieval and for rendering results without a staging-store round trip.
type Payload struct {
	DocID      string          `json:"doc_id"`
	ParentID   string          `json:"parent_id,omitempty"`
	Collection string          `json:"collection"`
	Audience   []core.Audience `json:"audience"`
	ChunkIndex int             `json:"chunk_index"`
	Text       string          `json:"text"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Entry is one vector to upsert.
type Entry struct {
	ID      core.ID
	Vector  []float32
	Payload Payload
}

// Hit is one scored result from a similarity search.
type Hit struct {
	ID      core.ID
	Score   float64
	Payload Payload
}

// Query describes a similarity search.
type Query struct {
	Vector      []float32
	Collections []string // nil means all collections
	Audience    core.Audience
	Limit       int
}

// Store is the vector database the embedding pipeline writes to and the
// search gateway reads from. Implementations must be thread-safe.
type Store interface {
	// EnsureCollection provisions a named collection for vectors of the
	// given width. Idempotent.
	EnsureCollection(ctx context.Context, name string, dimensions int) error

	// Upsert writes entries into a collection. Existing IDs are overwritten.
	Upsert(ctx context.Context, collection string, entries []Entry) error

	// Search returns the closest entries by cosine similarity, filtered by
	// the query's collections and audience, ordered by score descending.
	Search(ctx context.Context, q Query) ([]Hit, error)

	// Delete removes entries by ID from a collection. Missing IDs are
	// ignored.
	Delete(ctx context.Context, collection string, ids []core.ID) error

	// Close releases client resources.
	Close() error
}
