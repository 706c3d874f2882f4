package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer measures text in model tokens. The chunker only needs counts,
// not the token stream itself.
type Tokenizer interface {
	CountTokens(text string) int
}

// tiktokenTokenizer counts tokens with a BPE encoding matching the embedding
// model family.
type tiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

var _ Tokenizer = (*tiktokenTokenizer)(nil)

// NewTiktokenTokenizer loads the named BPE encoding. "cl100k_base" covers the
// OpenAI embedding models.
func NewTiktokenTokenizer(encodingName string) (Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encodingName, err)
	}
	return &tiktokenTokenizer{encoding: enc}, nil
}

func (t *tiktokenTokenizer) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// WordTokenizer approximates token counts by whitespace-separated words.
// Used in tests and as a fallback when BPE tables are unavailable.
type WordTokenizer struct{}

var _ Tokenizer = WordTokenizer{}

func (WordTokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}
