// Package mock provides a deterministic in-process ai.Embedder for tests.
// The default behavior derives a unit vector from the text itself, so tests
// get stable similarity relationships without a running embedding service.
package mock
