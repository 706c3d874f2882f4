package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/chunk"
	"github.com/poiesic/corpus/core"
	badgerstore "github.com/poiesic/corpus/storage/badger"
)

func newTestIngestor(t *testing.T, maxTokens int) *Ingestor {
	t.Helper()

	store, err := badgerstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	chunker, err := chunk.New(
		chunk.WithTokenizer(chunk.WordTokenizer{}),
		chunk.WithMaxTokens(maxTokens),
		chunk.WithOverlapSentences(0),
	)
	require.NoError(t, err)

	ing, err := NewIngestor(store, chunker)
	require.NoError(t, err)
	return ing
}

func TestIngestStagesSingleChunk(t *testing.T) {
	ing := newTestIngestor(t, 100)

	res, err := ing.Ingest(context.Background(), Document{
		Collection: "notes",
		Content:    "A short note that fits in one chunk.",
	})
	require.NoError(t, err)

	assert.False(t, res.Deduplicated)
	require.Len(t, res.IDs, 1)
	assert.Equal(t, res.DocumentID, res.IDs[0], "single-chunk document is its own parent")
}

func TestIngestSplitsLongContent(t *testing.T) {
	ing := newTestIngestor(t, 8)

	res, err := ing.Ingest(context.Background(), Document{
		Collection: "docs",
		Content:    "Alpha one two three four. Bravo five six seven eight. Charlie nine ten eleven twelve.",
	})
	require.NoError(t, err)

	assert.Greater(t, len(res.IDs), 1)
	for _, id := range res.IDs {
		assert.NotEqual(t, res.DocumentID, id, "chunk rows carry distinct IDs")
	}
}

func TestIngestDeduplicatesIdenticalContent(t *testing.T) {
	ing := newTestIngestor(t, 100)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, Document{Collection: "notes", Content: "same text"})
	require.NoError(t, err)

	second, err := ing.Ingest(ctx, Document{Collection: "notes", Content: "same text"})
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Empty(t, second.IDs, "no new rows staged")
}

func TestIngestWhitespaceVariantsDeduplicate(t *testing.T) {
	ing := newTestIngestor(t, 100)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, Document{Collection: "notes", Content: "hello   world\n"})
	require.NoError(t, err)

	second, err := ing.Ingest(ctx, Document{Collection: "notes", Content: "hello world"})
	require.NoError(t, err)

	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)
}

func TestIngestSameContentDifferentCollections(t *testing.T) {
	ing := newTestIngestor(t, 100)
	ctx := context.Background()

	a, err := ing.Ingest(ctx, Document{Collection: "alpha", Content: "shared"})
	require.NoError(t, err)
	b, err := ing.Ingest(ctx, Document{Collection: "beta", Content: "shared"})
	require.NoError(t, err)

	assert.False(t, b.Deduplicated)
	assert.NotEqual(t, a.DocumentID, b.DocumentID)
}

func TestIngestValidation(t *testing.T) {
	ing := newTestIngestor(t, 100)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, Document{Collection: "", Content: "text"})
	assert.ErrorIs(t, err, core.ErrEmptyCollection)

	_, err = ing.Ingest(ctx, Document{Collection: "notes", Content: "  \n  "})
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = ing.Ingest(ctx, Document{
		Collection: "notes",
		Content:    "text",
		Audience:   []core.Audience{"martian"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidAudience)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb", "a\nb"},
		{"trailing spaces", "a   \nb", "a\nb"},
		{"interior runs", "a \t  b", "a b"},
		{"blank line collapse", "a\n\n\n\nb", "a\n\nb"},
		{"leading blank dropped", "\n\na", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}
