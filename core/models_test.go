package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent_Deterministic(t *testing.T) {
	id1 := IDFromContent("kubernetes upgrade guide")
	id2 := IDFromContent("kubernetes upgrade guide")
	assert.Equal(t, id1, id2)

	other := IDFromContent("kubernetes upgrade guides")
	assert.NotEqual(t, id1, other)
}

func TestHashContent(t *testing.T) {
	h1 := HashContent("some normalized text")
	h2 := HashContent("some normalized text")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "BLAKE2b-256 hex digest")

	assert.NotEqual(t, h1, HashContent("other text"))
}

func TestDocumentAndChunkIDs(t *testing.T) {
	hash := HashContent("long document body")

	docID := DocumentID("rss", hash)
	assert.Equal(t, docID, DocumentID("rss", hash))
	assert.NotEqual(t, docID, DocumentID("docs", hash), "collection participates in identity")

	c0 := ChunkID("rss", hash, 0)
	c1 := ChunkID("rss", hash, 1)
	assert.NotEqual(t, c0, c1)
	assert.NotEqual(t, docID, c0)
	assert.Equal(t, c1, ChunkID("rss", hash, 1))
}

func TestEmbeddingStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "embedding", StatusEmbedding.String())
	assert.Equal(t, "completed", StatusCompleted.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", EmbeddingStatus(0).String())
}

func TestCollapseKey(t *testing.T) {
	single := &StagedDocument{Id: 42}
	assert.Equal(t, ID(42), single.CollapseKey())

	chunk := &StagedDocument{Id: 43, ParentId: 42}
	assert.Equal(t, ID(42), chunk.CollapseKey())
}

func TestVisibleTo(t *testing.T) {
	doc := &StagedDocument{Audience: []Audience{AudienceAgent}}
	assert.True(t, doc.VisibleTo(AudienceAgent))
	assert.False(t, doc.VisibleTo(AudienceHuman))

	both := &StagedDocument{Audience: DefaultAudience()}
	assert.True(t, both.VisibleTo(AudienceHuman))
	assert.True(t, both.VisibleTo(AudienceAgent))
}

func TestValidateStagedDocument(t *testing.T) {
	valid := func() *StagedDocument {
		return &StagedDocument{
			Collection:     "rss",
			ContentHash:    HashContent("text"),
			NormalizedText: "text",
			ChunkIndex:     0,
			ChunkCount:     1,
			Audience:       DefaultAudience(),
		}
	}

	require.NoError(t, ValidateStagedDocument(valid()))

	t.Run("nil document", func(t *testing.T) {
		assert.ErrorIs(t, ValidateStagedDocument(nil), ErrInvalidDocument)
	})

	t.Run("empty collection", func(t *testing.T) {
		doc := valid()
		doc.Collection = ""
		assert.ErrorIs(t, ValidateStagedDocument(doc), ErrEmptyCollection)
	})

	t.Run("blank text", func(t *testing.T) {
		doc := valid()
		doc.NormalizedText = "  \n\t"
		assert.ErrorIs(t, ValidateStagedDocument(doc), ErrEmptyContent)
	})

	t.Run("missing hash", func(t *testing.T) {
		doc := valid()
		doc.ContentHash = ""
		assert.ErrorIs(t, ValidateStagedDocument(doc), ErrInvalidDocument)
	})

	t.Run("chunk index out of range", func(t *testing.T) {
		doc := valid()
		doc.ChunkIndex = 1
		assert.ErrorIs(t, ValidateStagedDocument(doc), ErrInvalidDocument)
	})

	t.Run("unknown audience tag", func(t *testing.T) {
		doc := valid()
		doc.Audience = []Audience{"robot"}
		assert.ErrorIs(t, ValidateStagedDocument(doc), ErrInvalidAudience)
	})
}

func TestErrorClassification(t *testing.T) {
	base := assert.AnError

	assert.True(t, IsTransient(Transient(base)))
	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient(nil))

	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(ErrEmptyContent), "validation errors are permanent without the wrapper")
	assert.False(t, IsPermanent(Transient(base)))

	assert.True(t, IsRateLimited(RateLimited(base)))
	assert.False(t, IsRateLimited(Transient(base)))
}
