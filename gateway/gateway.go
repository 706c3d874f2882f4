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

// Package gateway serves hybrid search: a semantic backend (vector store)
// and a lexical backend (staging store full-text) are queried concurrently
// and their ranked lists merged with reciprocal rank fusion. The gateway is
// strictly read-only; it never mutates staged documents or vectors.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
	"github.com/poiesic/corpus/vector"
)

// StagingReader is the read-only slice of the staging store the gateway
// needs. storage.StagingStore satisfies it.
type StagingReader interface {
	Get(ctx context.Context, id core.ID) (*core.StagedDocument, error)
	SearchText(ctx context.Context, query string, collections []string, audience core.Audience, limit int) ([]storage.LexicalHit, error)
}

// Gateway answers search requests against both backends.
type Gateway struct {
	staging  StagingReader
	vectors  vector.Store
	embedder ai.Embedder
	logger   *slog.Logger

	fusionK        int
	backendTimeout time.Duration
	cache          *lru.Cache[string, Response]

	// overfetch widens backend queries beyond the requested limit so that
	// chunk collapsing still leaves enough distinct documents.
	overfetch int
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithFusionConstant sets the k in the 1/(k+rank) fusion formula.
// Default is DefaultFusionConstant.
func WithFusionConstant(k int) Option {
	return func(g *Gateway) error {
		if k < 1 {
			return fmt.Errorf("fusion constant must be positive")
		}
		g.fusionK = k
		return nil
	}
}

// WithBackendTimeout bounds each backend query independently, so one slow
// backend cannot consume the whole request deadline. Default is 3s.
func WithBackendTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		if d <= 0 {
			return fmt.Errorf("backend timeout must be positive")
		}
		g.backendTimeout = d
		return nil
	}
}

// WithCacheSize enables an LRU response cache with the given capacity.
// Degraded responses are never cached. Zero disables caching.
func WithCacheSize(size int) Option {
	return func(g *Gateway) error {
		if size == 0 {
			g.cache = nil
			return nil
		}
		cache, err := lru.New[string, Response](size)
		if err != nil {
			return err
		}
		g.cache = cache
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// New creates a gateway over the given backends.
func New(staging StagingReader, vectors vector.Store, embedder ai.Embedder, opts ...Option) (*Gateway, error) {
	if staging == nil {
		return nil, ErrStagingRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	g := &Gateway{
		staging:        staging,
		vectors:        vectors,
		embedder:       embedder,
		logger:         slog.Default(),
		fusionK:        DefaultFusionConstant,
		backendTimeout: 3 * time.Second,
		overfetch:      3,
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Search answers a search request.
func (g *Gateway) Search(ctx context.Context, req Request) (*Response, error) {
	return g.SearchWithMonitor(ctx, req, nil)
}

// backendResult carries one backend's outcome through the fan-out channel.
type backendResult struct {
	name       string
	candidates []candidate
	err        error
}

// SearchWithMonitor answers a search request with observation hooks. Both
// backends are queried concurrently under independent timeouts; if one
// fails, the response is served from the survivor with Degraded set, and
// only when both fail does the call error with core.ErrSearchUnavailable.
func (g *Gateway) SearchWithMonitor(ctx context.Context, req Request, monitor Monitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, core.ErrEmptyQuery
	}
	if req.Audience == "" {
		req.Audience = core.AudienceHuman
	}
	if err := core.ValidateAudience([]core.Audience{req.Audience}); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	monitor.Start(req.Query)

	cacheKey := g.cacheKey(req)
	if g.cache != nil {
		if resp, ok := g.cache.Get(cacheKey); ok {
			g.logger.Debug("cache hit", "query", req.Query)
			monitor.Finish(resp.Results, resp.Degraded)
			return &resp, nil
		}
	}

	fetch := req.Limit * g.overfetch

	ch := make(chan backendResult, 2)
	go func() { ch <- g.semanticSearch(ctx, req, fetch) }()
	go func() { ch <- g.lexicalSearch(ctx, req, fetch) }()

	var semantic, lexical backendResult
	received := 0
collect:
	for received < 2 {
		select {
		case r := <-ch:
			received++
			if r.name == "semantic" {
				semantic = r
			} else {
				lexical = r
			}
		case <-ctx.Done():
			// Request deadline: whatever has not arrived counts as failed
			// and the response is built from the partials in hand.
			if semantic.name == "" {
				semantic = backendResult{name: "semantic", err: ctx.Err()}
			}
			if lexical.name == "" {
				lexical = backendResult{name: "lexical", err: ctx.Err()}
			}
			break collect
		}
	}

	if semantic.err != nil {
		g.logger.Warn("semantic backend failed", "err", semantic.err)
		monitor.BackendFailed("semantic", semantic.err)
	} else {
		monitor.AfterSemanticSearch(candidateIDs(semantic.candidates))
	}
	if lexical.err != nil {
		g.logger.Warn("lexical backend failed", "err", lexical.err)
		monitor.BackendFailed("lexical", lexical.err)
	} else {
		monitor.AfterLexicalSearch(candidateIDs(lexical.candidates))
	}

	if semantic.err != nil && lexical.err != nil {
		return nil, fmt.Errorf("%w: semantic: %v; lexical: %v",
			core.ErrSearchUnavailable, semantic.err, lexical.err)
	}
	degraded := semantic.err != nil || lexical.err != nil

	hits := reciprocalRankFusion(g.fusionK, semantic.candidates, lexical.candidates)
	hits = filterAudience(hits, req.Audience)
	results := collapse(hits, req.Limit)
	g.hydrate(ctx, results)

	resp := &Response{Results: results, Degraded: degraded}
	if g.cache != nil && !degraded {
		g.cache.Add(cacheKey, *resp)
	}

	monitor.Finish(resp.Results, resp.Degraded)
	return resp, nil
}

// semanticSearch embeds the query and searches the vector store.
func (g *Gateway) semanticSearch(ctx context.Context, req Request, limit int) backendResult {
	ctx, cancel := context.WithTimeout(ctx, g.backendTimeout)
	defer cancel()

	embedding, err := g.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		return backendResult{name: "semantic", err: fmt.Errorf("embedding query: %w", err)}
	}

	hits, err := g.vectors.Search(ctx, vector.Query{
		Vector:      embedding,
		Collections: req.Collections,
		Audience:    req.Audience,
		Limit:       limit,
	})
	if err != nil {
		return backendResult{name: "semantic", err: err}
	}

	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, candidate{
			id:          h.ID,
			collapseKey: collapseKeyFromPayload(h),
			collection:  h.Payload.Collection,
			audience:    h.Payload.Audience,
			chunkIndex:  h.Payload.ChunkIndex,
			text:        h.Payload.Text,
			rawScore:    h.Score,
			source:      SourceSemantic,
			updatedAt:   h.Payload.UpdatedAt,
		})
	}
	return backendResult{name: "semantic", candidates: candidates}
}

// lexicalSearch runs ranked full-text search over the staging store.
func (g *Gateway) lexicalSearch(ctx context.Context, req Request, limit int) backendResult {
	ctx, cancel := context.WithTimeout(ctx, g.backendTimeout)
	defer cancel()

	hits, err := g.staging.SearchText(ctx, req.Query, req.Collections, req.Audience, limit)
	if err != nil {
		return backendResult{name: "lexical", err: err}
	}

	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, candidate{
			id:           h.Doc.Id,
			collapseKey:  h.Doc.CollapseKey(),
			collection:   h.Doc.Collection,
			audience:     h.Doc.Audience,
			capabilities: h.Doc.Capabilities,
			chunkIndex:   h.Doc.ChunkIndex,
			text:         h.Doc.NormalizedText,
			rawScore:     h.Score,
			source:       SourceLexical,
			updatedAt:    h.Doc.UpdatedAt,
		})
	}
	return backendResult{name: "lexical", candidates: candidates}
}

// hydrate backfills capabilities for results that came from the vector
// backend alone, whose payload does not carry them. Best effort; a staging
// miss leaves the result as is.
func (g *Gateway) hydrate(ctx context.Context, results []Result) {
	for i := range results {
		if results[i].Capabilities != nil {
			continue
		}
		doc, err := g.staging.Get(ctx, results[i].ID)
		if err != nil || doc == nil {
			continue
		}
		results[i].Capabilities = doc.Capabilities
		if len(results[i].Audience) == 0 {
			results[i].Audience = doc.Audience
		}
	}
}

func (g *Gateway) cacheKey(req Request) string {
	collections := append([]string(nil), req.Collections...)
	sort.Strings(collections)

	var sb strings.Builder
	sb.WriteString(req.Query)
	sb.WriteByte('\x00')
	sb.WriteString(string(req.Audience))
	sb.WriteByte('\x00')
	sb.WriteString(strconv.Itoa(req.Limit))
	for _, c := range collections {
		sb.WriteByte('\x00')
		sb.WriteString(c)
	}
	return sb.String()
}

// filterAudience drops candidates not visible to the requesting class.
// Backends filter too; entries carrying no tags at all are never visible.
func filterAudience(hits []fused, audience core.Audience) []fused {
	out := hits[:0]
	for _, h := range hits {
		if visibleTo(h.audience, audience) {
			out = append(out, h)
		}
	}
	return out
}

func visibleTo(tags []core.Audience, want core.Audience) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func candidateIDs(candidates []candidate) []core.ID {
	ids := make([]core.ID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

func collapseKeyFromPayload(h vector.Hit) core.ID {
	if h.Payload.ParentID == "" {
		return h.ID
	}
	parent, err := strconv.ParseUint(h.Payload.ParentID, 10, 64)
	if err != nil {
		return h.ID
	}
	return core.ID(parent)
}
