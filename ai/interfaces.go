package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one batch call.
	// The returned slice matches the input order. Batch calls are how the
	// scheduler amortizes round trips; a failed batch fails as a whole and
	// the caller decides retry per document.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the width of the vectors this embedder produces,
	// used to provision vector collections before the first upsert.
	Dimensions() int
}
