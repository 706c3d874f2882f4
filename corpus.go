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

// Package corpus wires the document staging pipeline together: ingestion
// into a durable staging store, asynchronous embedding into a vector store,
// and a hybrid search gateway over both.
package corpus

import (
	"context"
	"fmt"
	"io"

	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/ai/openai"
	"github.com/poiesic/corpus/chunk"
	"github.com/poiesic/corpus/config"
	"github.com/poiesic/corpus/gateway"
	"github.com/poiesic/corpus/ingest"
	"github.com/poiesic/corpus/scheduler"
	"github.com/poiesic/corpus/storage"
	badgerstore "github.com/poiesic/corpus/storage/badger"
	"github.com/poiesic/corpus/vector"
	"github.com/poiesic/corpus/vector/qdrant"
)

// Service owns every component of a corpus node. Construct with New, start
// background processing with Start, and always Close when done.
type Service struct {
	cfg *config.AppConfig

	backend  *badgerstore.Backend
	staging  storage.StagingStore
	vectors  vector.Store
	embedder ai.Embedder
	chunker  *chunk.Chunker

	Ingestor  *ingest.Ingestor
	Scheduler *scheduler.Scheduler
	Gateway   *gateway.Gateway
}

// Option overrides a component during assembly, mainly for tests and
// alternative deployments.
type Option func(*Service)

// WithEmbedder replaces the OpenAI-compatible embedding client.
func WithEmbedder(e ai.Embedder) Option {
	return func(s *Service) { s.embedder = e }
}

// WithVectorStore replaces the Qdrant vector store.
func WithVectorStore(v vector.Store) Option {
	return func(s *Service) { s.vectors = v }
}

// WithChunker replaces the default tiktoken-based chunker.
func WithChunker(c *chunk.Chunker) Option {
	return func(s *Service) { s.chunker = c }
}

// New assembles a service from configuration.
func New(cfg *config.AppConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	backend, err := badgerstore.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, fmt.Errorf("opening staging backend: %w", err)
	}
	s.backend = backend

	staging, err := badgerstore.NewStagingStore(backend,
		badgerstore.WithMaxRetries(cfg.Scheduler.MaxRetries),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.staging = staging

	if s.embedder == nil {
		embedder, err := openai.NewEmbedder(ai.NewConfig(
			ai.WithHost(cfg.Embedding.Host),
			ai.WithToken(cfg.Embedding.Token),
			ai.WithModel(cfg.Embedding.Model),
			ai.WithDimensions(cfg.Embedding.Dimensions),
			ai.WithBatchSize(cfg.Embedding.BatchSize),
		))
		if err != nil {
			s.closePartial()
			return nil, err
		}
		s.embedder = embedder
	}

	if s.vectors == nil {
		var qopts []qdrant.Option
		if cfg.Vector.APIKey != "" {
			qopts = append(qopts, qdrant.WithAPIKey(cfg.Vector.APIKey))
		}
		vectors, err := qdrant.NewStore(cfg.Vector.URL, qopts...)
		if err != nil {
			s.closePartial()
			return nil, err
		}
		s.vectors = vectors
	}

	if s.chunker == nil {
		chunker, err := chunk.New()
		if err != nil {
			s.closePartial()
			return nil, fmt.Errorf("creating chunker: %w", err)
		}
		s.chunker = chunker
	}

	s.Ingestor, err = ingest.NewIngestor(staging, s.chunker)
	if err != nil {
		s.closePartial()
		return nil, err
	}

	schedOpts := []scheduler.Option{
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
	}
	if cfg.Scheduler.PoolSize > 0 {
		schedOpts = append(schedOpts, scheduler.WithPoolSize(cfg.Scheduler.PoolSize))
	}
	s.Scheduler, err = scheduler.New(staging, s.embedder, s.vectors, schedOpts...)
	if err != nil {
		s.closePartial()
		return nil, err
	}

	s.Gateway, err = gateway.New(staging, s.vectors, s.embedder,
		gateway.WithFusionConstant(cfg.Gateway.FusionConstant),
		gateway.WithBackendTimeout(cfg.Gateway.BackendTimeout),
		gateway.WithCacheSize(cfg.Gateway.CacheSize),
	)
	if err != nil {
		s.closePartial()
		return nil, err
	}

	return s, nil
}

// Start launches background embedding.
func (s *Service) Start(ctx context.Context) error {
	return s.Scheduler.Start(ctx)
}

// StatusCounts reports per-collection document counts by embedding status.
func (s *Service) StatusCounts(ctx context.Context) (map[string]storage.StatusCounts, error) {
	return s.staging.CountByStatus(ctx)
}

// Staging exposes the staging store for read access and tests.
func (s *Service) Staging() storage.StagingStore {
	return s.staging
}

// NewReindexer builds a reindexer over this service's components. Progress
// output goes to w.
func (s *Service) NewReindexer(cfg *scheduler.ReindexConfig, w io.Writer) *scheduler.Reindexer {
	return scheduler.NewReindexer(s.staging, s.embedder, s.vectors, cfg, w)
}

// Close stops background work and releases every component.
func (s *Service) Close() error {
	if s.Scheduler != nil {
		s.Scheduler.Release()
	}
	return s.closePartial()
}

func (s *Service) closePartial() error {
	var firstErr error
	if s.staging != nil {
		if err := s.staging.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
