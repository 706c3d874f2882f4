package gateway

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/corpus/core"
)

func cand(id core.ID, raw float64) candidate {
	return candidate{id: id, collapseKey: id, collection: "docs", rawScore: raw}
}

func TestReciprocalRankFusionSumsContributions(t *testing.T) {
	semantic := []candidate{cand(1, 0.9), cand(2, 0.8)}
	lexical := []candidate{cand(2, 7.0), cand(3, 6.0)}

	out := reciprocalRankFusion(60, semantic, lexical)
	require.Len(t, out, 3)

	// 2 appears in both lists: 1/62 + 1/61.
	assert.Equal(t, core.ID(2), out[0].id)
	assert.InDelta(t, 1.0/62+1.0/61, out[0].score, 1e-12)

	// 1 and 3 each hold a single rank-1-equivalent contribution; 1 ranked
	// first in its list, 3 second in its list.
	assert.Equal(t, core.ID(1), out[1].id)
	assert.InDelta(t, 1.0/61, out[1].score, 1e-12)
	assert.Equal(t, core.ID(3), out[2].id)
	assert.InDelta(t, 1.0/62, out[2].score, 1e-12)
}

func TestReciprocalRankFusionTieBreaksOnRawScore(t *testing.T) {
	// Same rank in one list each: identical fused scores.
	listA := []candidate{cand(1, 0.3)}
	listB := []candidate{cand(2, 0.7)}

	out := reciprocalRankFusion(60, listA, listB)
	require.Len(t, out, 2)
	assert.Equal(t, core.ID(2), out[0].id, "higher backend-native score wins the tie")
}

func TestReciprocalRankFusionTieBreaksOnRecency(t *testing.T) {
	older := cand(1, 0.9)
	older.updatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := cand(2, 0.1)
	newer.updatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	out := reciprocalRankFusion(60, []candidate{older}, []candidate{newer})
	require.Len(t, out, 2)
	assert.Equal(t, core.ID(2), out[0].id, "recency outranks backend-native score on ties")
}

func TestFusionConstantFlattensRankGaps(t *testing.T) {
	listA := []candidate{cand(1, 0), cand(2, 0)}

	small := reciprocalRankFusion(1, listA)
	large := reciprocalRankFusion(1000, listA)

	gapSmall := small[0].score - small[1].score
	gapLarge := large[0].score - large[1].score
	assert.Greater(t, gapSmall, gapLarge)
}

func TestCollapseKeepsBestChunkFirst(t *testing.T) {
	hits := []fused{
		{candidate: candidate{id: 11, collapseKey: 10, chunkIndex: 1, text: "best"}, score: 0.5},
		{candidate: candidate{id: 12, collapseKey: 10, chunkIndex: 2, text: "second"}, score: 0.4},
		{candidate: candidate{id: 20, collapseKey: 20, text: "other"}, score: 0.3},
	}

	results := collapse(hits, 10)
	require.Len(t, results, 2)
	assert.Equal(t, core.ID(10), results[0].ID)
	assert.Equal(t, 0.5, results[0].Score)
	require.Len(t, results[0].Chunks, 1)
	assert.Equal(t, core.ID(12), results[0].Chunks[0].ID)
}

func TestCollapseHonorsLimit(t *testing.T) {
	hits := []fused{
		{candidate: candidate{id: 1, collapseKey: 1}, score: 0.3},
		{candidate: candidate{id: 2, collapseKey: 2}, score: 0.2},
		{candidate: candidate{id: 3, collapseKey: 3}, score: 0.1},
	}

	results := collapse(hits, 2)
	assert.Len(t, results, 2)
}

func TestMakeSnippet(t *testing.T) {
	short := "a short text"
	assert.Equal(t, short, makeSnippet(short))

	long := strings.Repeat("word ", 100)
	snippet := makeSnippet(long)
	assert.LessOrEqual(t, len([]rune(snippet)), snippetRunes+1)
	assert.True(t, strings.HasSuffix(snippet, "…"))
}

func TestMakeSnippetMultibyteText(t *testing.T) {
	// Each word is 7 runes but more bytes; the word-boundary trim must not
	// cut inside a rune or misjudge the boundary position.
	long := strings.TrimSpace(strings.Repeat("héllö wörld ", 50))
	snippet := makeSnippet(long)

	assert.LessOrEqual(t, len([]rune(snippet)), snippetRunes+1)
	assert.True(t, strings.HasSuffix(snippet, "…"))

	trimmed := strings.TrimSuffix(snippet, "…")
	assert.False(t, strings.HasSuffix(trimmed, " "))
	for _, w := range strings.Fields(trimmed) {
		if w != "héllö" && w != "wörld" {
			t.Fatalf("snippet cut mid-word: %q", w)
		}
	}
}
