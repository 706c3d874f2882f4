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

// Package chunk splits normalized document text into embedder-sized pieces.
//
// Splitting is sentence-first: a chunk accumulates whole sentences until the
// next sentence would push it over the token ceiling, then the chunk is cut
// and the tail sentences are carried into the next chunk as overlap so that
// meaning spanning a boundary survives in at least one chunk. Sentences that
// alone exceed the ceiling are force-split on word boundaries.
package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

// sentencePattern ends a sentence at ., !, ? or a newline, keeping the
// terminator with the sentence.
var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?\n]?`)

// Chunker splits text into token-bounded chunks with sentence overlap.
type Chunker struct {
	tokenizer        Tokenizer
	maxTokens        int
	overlapSentences int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithTokenizer replaces the token counter. Default is the cl100k_base BPE
// encoding.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) error {
		if t == nil {
			return fmt.Errorf("tokenizer cannot be nil")
		}
		c.tokenizer = t
		return nil
	}
}

// WithMaxTokens sets the per-chunk token ceiling. Default is 7936, the
// 8192-token embedder window minus headroom for model-side special tokens.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) error {
		if n < 1 {
			return fmt.Errorf("max tokens must be positive")
		}
		c.maxTokens = n
		return nil
	}
}

// WithOverlapSentences sets how many trailing sentences repeat at the start
// of the following chunk. Default is 1.
func WithOverlapSentences(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return fmt.Errorf("overlap cannot be negative")
		}
		c.overlapSentences = n
		return nil
	}
}

// New creates a Chunker. Without WithTokenizer this loads the cl100k_base
// encoding, which may fetch BPE tables on first use.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		maxTokens:        7936,
		overlapSentences: 1,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.tokenizer == nil {
		tok, err := NewTiktokenTokenizer("cl100k_base")
		if err != nil {
			return nil, err
		}
		c.tokenizer = tok
	}

	return c, nil
}

// Split divides text into chunks that each fit the token ceiling. Text that
// fits whole comes back as a single chunk. Blank input yields nil.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if c.tokenizer.CountTokens(text) <= c.maxTokens {
		return []string{text}
	}

	sentences := c.splitSentences(text)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))

		// Carry the tail sentences into the next chunk.
		overlap := c.overlapSentences
		if overlap > len(current) {
			overlap = len(current)
		}
		tail := current[len(current)-overlap:]
		current = nil
		currentTokens = 0
		for _, s := range tail {
			current = append(current, s)
			currentTokens += c.tokenizer.CountTokens(s)
		}
	}

	for _, sentence := range sentences {
		tokens := c.tokenizer.CountTokens(sentence)
		if currentTokens+tokens > c.maxTokens && len(current) > 0 {
			flush()
			// Overlap alone may already exceed the ceiling with the new
			// sentence; drop the overlap rather than loop.
			if currentTokens+tokens > c.maxTokens {
				current = nil
				currentTokens = 0
			}
		}
		current = append(current, sentence)
		currentTokens += tokens
	}
	if len(current) > 0 {
		// Avoid emitting a final chunk that is nothing but the overlap of
		// the previous one.
		last := strings.TrimSpace(strings.Join(current, " "))
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], last) {
			chunks = append(chunks, last)
		}
	}

	return chunks
}

// splitSentences returns trimmed sentences, force-splitting any sentence
// whose token count alone exceeds the ceiling.
func (c *Chunker) splitSentences(text string) []string {
	raw := sentencePattern.FindAllString(text, -1)

	var sentences []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if c.tokenizer.CountTokens(s) <= c.maxTokens {
			sentences = append(sentences, s)
			continue
		}
		sentences = append(sentences, c.splitWords(s)...)
	}
	return sentences
}

// splitWords breaks an oversized sentence on word boundaries.
func (c *Chunker) splitWords(sentence string) []string {
	words := strings.Fields(sentence)

	var parts []string
	var current []string
	currentTokens := 0

	for _, word := range words {
		tokens := c.tokenizer.CountTokens(word)
		if currentTokens+tokens > c.maxTokens && len(current) > 0 {
			parts = append(parts, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
		current = append(current, word)
		currentTokens += tokens
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, " "))
	}
	return parts
}
