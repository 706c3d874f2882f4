// Package memory provides an in-process vector.Store for tests and
// single-node deployments without a Qdrant instance.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/vector"
)

// Store keeps vectors in maps guarded by a RWMutex. Search is a linear scan
// with exact cosine similarity.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimensions int
	entries    map[core.ID]vector.Entry
}

var _ vector.Store = (*Store)(nil)

// NewStore creates an empty in-memory vector store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// EnsureCollection provisions a collection. Re-ensuring with a different
// dimension is rejected.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dimensions != dimensions {
			return fmt.Errorf("collection %s exists with dimension %d, requested %d", name, c.dimensions, dimensions)
		}
		return nil
	}
	s.collections[name] = &collection{
		dimensions: dimensions,
		entries:    make(map[core.ID]vector.Entry),
	}
	return nil
}

// Upsert writes entries, overwriting existing IDs.
func (s *Store) Upsert(ctx context.Context, name string, entries []vector.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s does not exist", name)
	}
	for _, e := range entries {
		if len(e.Vector) != c.dimensions {
			return fmt.Errorf("entry %d has dimension %d, collection %s expects %d", e.ID, len(e.Vector), name, c.dimensions)
		}
		c.entries[e.ID] = e
	}
	return nil
}

// Search scans the requested collections and returns hits by cosine
// similarity descending.
func (s *Store) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := q.Collections
	if len(names) == 0 {
		for name := range s.collections {
			names = append(names, name)
		}
	}

	var hits []vector.Hit
	for _, name := range names {
		c, ok := s.collections[name]
		if !ok {
			continue
		}
		for _, e := range c.entries {
			if q.Audience != "" && !audienceContains(e.Payload.Audience, q.Audience) {
				continue
			}
			hits = append(hits, vector.Hit{
				ID:      e.ID,
				Score:   cosine(q.Vector, e.Vector),
				Payload: e.Payload,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

// Delete removes entries by ID. Missing IDs are ignored.
func (s *Store) Delete(ctx context.Context, name string, ids []core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Count returns the number of entries in a collection. Test helper.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0
	}
	return len(c.entries)
}

func audienceContains(tags []core.Audience, want core.Audience) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
