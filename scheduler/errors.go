package scheduler

import "errors"

var (
	// ErrStoreRequired indicates a nil staging store was passed to New.
	ErrStoreRequired = errors.New("staging store is required")

	// ErrEmbedderRequired indicates a nil embedder was passed to New.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrVectorStoreRequired indicates a nil vector store was passed to New.
	ErrVectorStoreRequired = errors.New("vector store is required")

	// ErrAlreadyRunning indicates Start was called on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler is already running")

	// ErrInvalidMaxAttempts indicates RetryWithBackoff was called with a
	// non-positive attempt limit.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")
)
