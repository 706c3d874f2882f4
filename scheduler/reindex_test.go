package scheduler

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindexerRewritesCompletedVectors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stage(t, f.store, "docs", "first completed document")
	stage(t, f.store, "docs", "second completed document")
	stage(t, f.store, "docs", "still pending document")

	// Complete only the first two.
	for i := 0; i < 2; i++ {
		claimed, err := f.store.ClaimBatch(ctx, 1, "setup")
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, f.store.Complete(ctx, claimed[0].Id, "old-ref"))
	}

	var out bytes.Buffer
	reindexer := NewReindexer(f.store, f.embedder, f.vectors, nil, &out)
	require.NoError(t, reindexer.Run(ctx))

	assert.Equal(t, 2, f.vectors.Count("docs"), "one entry per completed document")
	assert.Contains(t, out.String(), "Reindex complete")

	// A second run overwrites in place rather than duplicating.
	require.NoError(t, reindexer.Run(ctx))
	assert.Equal(t, 2, f.vectors.Count("docs"))
}

func TestReindexerEmptyScope(t *testing.T) {
	f := newFixture(t, nil)

	var out bytes.Buffer
	reindexer := NewReindexer(f.store, f.embedder, f.vectors, nil, &out)
	require.NoError(t, reindexer.Run(context.Background()))
	assert.Contains(t, out.String(), "No completed documents")
}

func TestProgressTracker(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTracker(&out, 10, 5)

	// Updates before Start are ignored.
	tracker.Update(3)
	assert.Empty(t, out.String())

	tracker.Start()
	tracker.Update(5)
	assert.Contains(t, out.String(), "5/10")

	tracker.Finish()
	assert.Contains(t, out.String(), "10/10")
	assert.Positive(t, tracker.Elapsed())
}
