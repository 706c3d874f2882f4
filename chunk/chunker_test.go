package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWordChunker(t *testing.T, maxTokens, overlap int) *Chunker {
	t.Helper()
	c, err := New(
		WithTokenizer(WordTokenizer{}),
		WithMaxTokens(maxTokens),
		WithOverlapSentences(overlap),
	)
	require.NoError(t, err)
	return c
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c := newWordChunker(t, 100, 1)

	chunks := c.Split("A short document. It fits in one chunk.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short document. It fits in one chunk.", chunks[0])
}

func TestSplitBlankText(t *testing.T) {
	c := newWordChunker(t, 100, 1)

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestSplitRespectsTokenCeiling(t *testing.T) {
	c := newWordChunker(t, 10, 0)

	var sb strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "Sentence number %d has five words. ", i)
	}

	chunks := c.Split(sb.String())
	require.Greater(t, len(chunks), 1)

	tok := WordTokenizer{}
	for i, chunk := range chunks {
		assert.LessOrEqual(t, tok.CountTokens(chunk), 10, "chunk %d over ceiling", i)
	}
}

func TestSplitOverlapCarriesSentenceForward(t *testing.T) {
	c := newWordChunker(t, 12, 1)

	text := "First sentence with several words here. Second sentence also has words. Third sentence closes it out."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// The last sentence of chunk N opens chunk N+1.
	assert.True(t, strings.HasPrefix(chunks[1], "Second sentence also has words."),
		"chunk 1 = %q", chunks[1])
}

func TestSplitNoOverlapPreservesAllContent(t *testing.T) {
	c := newWordChunker(t, 8, 0)

	text := "Alpha one two three. Bravo four five six. Charlie seven eight nine."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	joined := strings.Join(chunks, " ")
	for _, word := range strings.Fields(text) {
		assert.Contains(t, joined, strings.Trim(word, "."))
	}
}

func TestSplitForceBreaksOversizedSentence(t *testing.T) {
	c := newWordChunker(t, 5, 0)

	// One "sentence" with no terminator, three times the ceiling.
	words := make([]string, 15)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	chunks := c.Split(strings.Join(words, " "))

	require.Len(t, chunks, 3)
	tok := WordTokenizer{}
	for _, chunk := range chunks {
		assert.LessOrEqual(t, tok.CountTokens(chunk), 5)
	}
	assert.Equal(t, "w0 w1 w2 w3 w4", chunks[0])
	assert.Equal(t, "w10 w11 w12 w13 w14", chunks[2])
}

func TestSplitNewlinesTerminateSentences(t *testing.T) {
	c := newWordChunker(t, 6, 0)

	text := "heading line without period\nanother line of text here\nfinal line"
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.Contains(t, chunks[0], "heading line without period")
}

func TestOptionValidation(t *testing.T) {
	_, err := New(WithTokenizer(nil))
	assert.Error(t, err)

	_, err = New(WithTokenizer(WordTokenizer{}), WithMaxTokens(0))
	assert.Error(t, err)

	_, err = New(WithTokenizer(WordTokenizer{}), WithOverlapSentences(-1))
	assert.Error(t, err)
}
