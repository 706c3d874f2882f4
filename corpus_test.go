package corpus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/ai/mock"
	"github.com/poiesic/corpus/chunk"
	"github.com/poiesic/corpus/config"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/gateway"
	"github.com/poiesic/corpus/ingest"
	"github.com/poiesic/corpus/vector/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Path = ""
	cfg.Storage.InMemory = true
	cfg.Scheduler.Interval = 10 * time.Millisecond
	cfg.Gateway.CacheSize = 0

	chunker, err := chunk.New(
		chunk.WithTokenizer(chunk.WordTokenizer{}),
		chunk.WithMaxTokens(512),
	)
	require.NoError(t, err)

	svc, err := New(cfg,
		WithEmbedder(mock.NewEmbedder()),
		WithVectorStore(memory.NewStore()),
		WithChunker(chunker),
	)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func drain(t *testing.T, svc *Service) {
	t.Helper()
	for {
		n, err := svc.Scheduler.RunOnce(context.Background())
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
}

func TestEndToEndIngestEmbedSearch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	docs := []ingest.Document{
		{Collection: "rss", Content: "Kubernetes upgrade guide: always drain worker nodes before upgrading the kubelet, and upgrade the control plane first."},
		{Collection: "rss", Content: "Postgres point-in-time recovery walkthrough with WAL archiving."},
		{Collection: "rss", Content: "A review of mechanical keyboards for programmers."},
	}
	for _, doc := range docs {
		res, err := svc.Ingestor.Ingest(ctx, doc)
		require.NoError(t, err)
		assert.False(t, res.Deduplicated)
	}

	// Everything is pending until the scheduler runs.
	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["rss"].Pending)

	drain(t, svc)

	counts, err = svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts["rss"].Completed)
	assert.Equal(t, 0, counts["rss"].Pending)

	resp, err := svc.Gateway.Search(ctx, gateway.Request{
		Query:    "kubernetes upgrade guide",
		Audience: core.AudienceHuman,
		Limit:    5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Degraded)
	assert.Positive(t, resp.Results[0].Score)
	assert.Contains(t, resp.Results[0].Snippet, "Kubernetes upgrade guide")
}

func TestEndToEndDeduplication(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	doc := ingest.Document{Collection: "rss", Content: "identical article body"}

	first, err := svc.Ingestor.Ingest(ctx, doc)
	require.NoError(t, err)
	drain(t, svc)

	second, err := svc.Ingestor.Ingest(ctx, doc)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["rss"].Completed, "re-ingestion leaves the completed row untouched")
}

func TestEndToEndAudienceVisibility(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingestor.Ingest(ctx, ingest.Document{
		Collection: "internal",
		Content:    "agent runbook for automated remediation",
		Audience:   []core.Audience{core.AudienceAgent},
	})
	require.NoError(t, err)
	drain(t, svc)

	human, err := svc.Gateway.Search(ctx, gateway.Request{
		Query:    "automated remediation runbook",
		Audience: core.AudienceHuman,
	})
	require.NoError(t, err)
	assert.Empty(t, human.Results, "agent-only content hidden from humans")

	agent, err := svc.Gateway.Search(ctx, gateway.Request{
		Query:    "automated remediation runbook",
		Audience: core.AudienceAgent,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, agent.Results)
}

func TestEndToEndBackgroundScheduler(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingestor.Ingest(ctx, ingest.Document{
		Collection: "docs",
		Content:    "document processed by the background loop",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx))

	require.Eventually(t, func() bool {
		counts, err := svc.StatusCounts(ctx)
		return err == nil && counts["docs"].Completed == 1
	}, 5*time.Second, 20*time.Millisecond)
}
