package gateway

import "errors"

var (
	// ErrStagingRequired indicates a nil staging reader was passed to New.
	ErrStagingRequired = errors.New("staging reader is required")

	// ErrVectorStoreRequired indicates a nil vector store was passed to New.
	ErrVectorStoreRequired = errors.New("vector store is required")

	// ErrEmbedderRequired indicates a nil embedder was passed to New.
	ErrEmbedderRequired = errors.New("embedder is required")
)
