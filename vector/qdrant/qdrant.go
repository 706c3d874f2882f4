package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/vector"
)

// Store implements vector.Store against the Qdrant REST API. Each corpus
// collection maps to one Qdrant collection; a multi-collection search fans
// out and merges by score.
type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger

	mu      sync.RWMutex
	ensured map[string]bool
}

var _ vector.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithAPIKey sets the api-key header sent on every request.
func WithAPIKey(key string) Option {
	return func(s *Store) { s.apiKey = key }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Qdrant-backed vector store.
//
// Returns vector.Store interface to enforce abstraction.
func NewStore(baseURL string, opts ...Option) (vector.Store, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant base URL required")
	}

	s := &Store{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default().With("component", "qdrant"),
		ensured: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type collectionSpec struct {
	Vectors vectorParams `json:"vectors"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// EnsureCollection creates the collection if it does not exist. A conflict
// response means another writer got there first, which is fine.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	s.mu.RLock()
	done := s.ensured[name]
	s.mu.RUnlock()
	if done {
		return nil
	}

	spec := collectionSpec{Vectors: vectorParams{Size: dimensions, Distance: "Cosine"}}
	status, body, err := s.do(ctx, http.MethodPut, "/collections/"+name, spec)
	if err != nil {
		return core.Transient(fmt.Errorf("qdrant create collection %s: %w", name, err))
	}
	if status != http.StatusOK && status != http.StatusConflict {
		return core.Transient(fmt.Errorf("qdrant create collection %s: status %d: %s", name, status, body))
	}

	s.mu.Lock()
	s.ensured[name] = true
	s.mu.Unlock()

	s.logger.Debug("collection ensured", "collection", name, "dimensions", dimensions)
	return nil
}

type point struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload vector.Payload `json:"payload"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

// Upsert writes entries, overwriting existing point IDs. wait=true blocks
// until the write is durable so a Complete recorded afterwards is truthful.
func (s *Store) Upsert(ctx context.Context, collection string, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	req := upsertRequest{Points: make([]point, len(entries))}
	for i, e := range entries {
		req.Points[i] = point{ID: uint64(e.ID), Vector: e.Vector, Payload: e.Payload}
	}

	status, body, err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", req)
	if err != nil {
		return core.Transient(fmt.Errorf("qdrant upsert: %w", err))
	}
	if status == http.StatusTooManyRequests {
		return core.RateLimited(fmt.Errorf("qdrant upsert: status %d", status))
	}
	if status != http.StatusOK {
		return core.Transient(fmt.Errorf("qdrant upsert: status %d: %s", status, body))
	}
	return nil
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	Filter      *filter   `json:"filter,omitempty"`
}

type filter struct {
	Must []condition `json:"must"`
}

type condition struct {
	Key   string `json:"key"`
	Match match  `json:"match"`
}

type match struct {
	Value any `json:"value"`
}

type searchResponse struct {
	Result []searchResult `json:"result"`
}

type searchResult struct {
	ID      uint64         `json:"id"`
	Score   float64        `json:"score"`
	Payload vector.Payload `json:"payload"`
}

// Search queries each requested collection and merges hits by score. An
// empty collections filter means all collections the server holds, which is
// resolved against the server itself so restarted or search-only processes
// still see data written by other writers.
func (s *Store) Search(ctx context.Context, q vector.Query) ([]vector.Hit, error) {
	collections := q.Collections
	if len(collections) == 0 {
		var err error
		collections, err = s.listCollections(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(collections) == 0 {
		return nil, nil
	}

	req := searchRequest{
		Vector:      q.Vector,
		Limit:       q.Limit,
		WithPayload: true,
	}
	if q.Audience != "" {
		req.Filter = &filter{Must: []condition{
			{Key: "audience", Match: match{Value: string(q.Audience)}},
		}}
	}

	var hits []vector.Hit
	for _, collection := range collections {
		status, body, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", req)
		if err != nil {
			return nil, core.Transient(fmt.Errorf("qdrant search %s: %w", collection, err))
		}
		if status == http.StatusNotFound {
			continue // collection not provisioned yet; nothing indexed
		}
		if status != http.StatusOK {
			return nil, core.Transient(fmt.Errorf("qdrant search %s: status %d: %s", collection, status, body))
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("qdrant search %s: decoding response: %w", collection, err)
		}
		for _, r := range resp.Result {
			hits = append(hits, vector.Hit{ID: core.ID(r.ID), Score: r.Score, Payload: r.Payload})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

type deleteRequest struct {
	Points []uint64 `json:"points"`
}

// Delete removes points by ID.
func (s *Store) Delete(ctx context.Context, collection string, ids []core.ID) error {
	if len(ids) == 0 {
		return nil
	}

	req := deleteRequest{Points: make([]uint64, len(ids))}
	for i, id := range ids {
		req.Points[i] = uint64(id)
	}

	status, body, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", req)
	if err != nil {
		return core.Transient(fmt.Errorf("qdrant delete: %w", err))
	}
	if status != http.StatusOK {
		return core.Transient(fmt.Errorf("qdrant delete: status %d: %s", status, body))
	}
	return nil
}

// Close releases client resources.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type collectionsResponse struct {
	Result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	} `json:"result"`
}

// listCollections returns every collection name the server holds.
func (s *Store) listCollections(ctx context.Context) ([]string, error) {
	status, body, err := s.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("qdrant list collections: %w", err))
	}
	if status != http.StatusOK {
		return nil, core.Transient(fmt.Errorf("qdrant list collections: status %d: %s", status, body))
	}

	var resp collectionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("qdrant list collections: decoding response: %w", err)
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

// do sends one JSON request and returns the status and raw body. A nil
// payload sends no body (GET endpoints).
func (s *Store) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
