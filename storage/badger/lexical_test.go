package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// insertCompleted stages a document and drives it to StatusCompleted so the
// lexical index sees it.
func insertCompleted(t *testing.T, store storage.StagingStore, doc *core.StagedDocument) *core.StagedDocument {
	t.Helper()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, doc)
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	claimed, err := store.ClaimBatch(ctx, 1, "test-worker")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.Complete(ctx, claimed[0].Id, "vec"))

	return inserted[0]
}

func TestSearchTextRanksByRelevance(t *testing.T) {
	store := newTestStore(t)

	target := insertCompleted(t, store, newTestDoc("docs",
		"kubernetes upgrade guide: upgrade the kubernetes control plane before worker nodes"))
	insertCompleted(t, store, newTestDoc("docs",
		"postgres backup procedures and restore verification steps"))
	insertCompleted(t, store, newTestDoc("docs",
		"kubernetes networking overview for cluster operators"))

	hits, err := store.SearchText(context.Background(), "kubernetes upgrade", nil, core.AudienceHuman, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, target.Id, hits[0].Doc.Id, "document matching both terms ranks first")
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i].Score, hits[i-1].Score)
	}
	for _, h := range hits {
		assert.NotEqual(t, "postgres backup procedures and restore verification steps", h.Doc.NormalizedText)
	}
}

func TestSearchTextIncludesUnembeddedDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertCompleted(t, store, newTestDoc("docs", "searchable completed document about caching"))
	_, err := store.Insert(ctx, newTestDoc("docs", "pending document about caching strategies"))
	require.NoError(t, err)

	// Staged content stays lexically reachable before the embedding backend
	// ever sees it.
	hits, err := store.SearchText(ctx, "caching", nil, core.AudienceHuman, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	statuses := map[core.EmbeddingStatus]bool{}
	for _, h := range hits {
		statuses[h.Doc.Status] = true
	}
	assert.True(t, statuses[core.StatusPending])
	assert.True(t, statuses[core.StatusCompleted])
}

func TestSearchTextExcludesFailedDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, newTestDoc("docs", "caching document with invalid content"))
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	claimed, err := store.ClaimBatch(ctx, 1, "test-worker")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, store.Fail(ctx, claimed[0].Id, core.Permanent(core.ErrEmptyContent)))

	hits, err := store.SearchText(ctx, "caching", nil, core.AudienceHuman, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "terminally failed documents never surface")
}

func TestSearchTextFiltersByCollection(t *testing.T) {
	store := newTestStore(t)

	insertCompleted(t, store, newTestDoc("runbooks", "database failover runbook"))
	insertCompleted(t, store, newTestDoc("wiki", "database schema conventions"))

	hits, err := store.SearchText(context.Background(), "database", []string{"runbooks"}, core.AudienceHuman, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "runbooks", hits[0].Doc.Collection)
}

func TestSearchTextFiltersByAudience(t *testing.T) {
	store := newTestStore(t)

	agentOnly := newTestDoc("docs", "internal tooling reference for deployment")
	agentOnly.Audience = []core.Audience{core.AudienceAgent}
	insertCompleted(t, store, agentOnly)

	hits, err := store.SearchText(context.Background(), "deployment tooling", nil, core.AudienceHuman, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "agent-only content is invisible to human searches")

	hits, err = store.SearchText(context.Background(), "deployment tooling", nil, core.AudienceAgent, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchTextRespectsLimit(t *testing.T) {
	store := newTestStore(t)

	for _, text := range []string{
		"golang concurrency patterns with channels",
		"golang error handling conventions",
		"golang module versioning rules",
	} {
		insertCompleted(t, store, newTestDoc("docs", text))
	}

	hits, err := store.SearchText(context.Background(), "golang", nil, core.AudienceHuman, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchTextEmptyQuery(t *testing.T) {
	store := newTestStore(t)
	insertCompleted(t, store, newTestDoc("docs", "some indexed content"))

	// Stopword-only queries tokenize to nothing.
	hits, err := store.SearchText(context.Background(), "the and of", nil, core.AudienceHuman, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("The Quick-Brown Fox, jumps OVER the lazy dog!")
	assert.Equal(t, []string{"quick", "brown", "fox", "jumps", "over", "lazy", "dog"}, tokens)
}
