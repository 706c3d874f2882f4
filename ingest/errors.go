package ingest

import "errors"

var (
	// ErrStoreRequired indicates a nil staging store was passed to NewIngestor.
	ErrStoreRequired = errors.New("staging store is required")

	// ErrChunkerRequired indicates a nil chunker was passed to NewIngestor.
	ErrChunkerRequired = errors.New("chunker is required")
)
