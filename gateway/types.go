package gateway

import (
	"github.com/poiesic/corpus/core"
)

// Request describes one search.
type Request struct {
	// Query is the free-text query. Must be non-blank.
	Query string `json:"query"`

	// Collections restricts the search; nil means all collections.
	Collections []string `json:"collections,omitempty"`

	// Audience identifies the requesting consumer class. Empty defaults to
	// AudienceHuman.
	Audience core.Audience `json:"audience,omitempty"`

	// Limit caps the number of results. Zero defaults to 10.
	Limit int `json:"limit,omitempty"`
}

// ChunkMatch is one chunk-level hit folded into a document result.
type ChunkMatch struct {
	ID         core.ID `json:"id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// Result is one collapsed document-level search result.
type Result struct {
	// ID is the document identity hits were collapsed under.
	ID core.ID `json:"id"`

	Collection   string          `json:"collection"`
	Score        float64         `json:"score"`
	Snippet      string          `json:"snippet"`
	Audience     []core.Audience `json:"audience,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`

	// Source names the backend(s) that produced the hit: "semantic",
	// "lexical", or "hybrid" when both agreed.
	Source string `json:"source"`

	// Chunks lists additional matching chunks beyond the best one, ordered
	// by score descending.
	Chunks []ChunkMatch `json:"chunks,omitempty"`
}

// Response is the outcome of one search.
type Response struct {
	Results []Result `json:"results"`

	// Degraded is true when one backend failed and the results come from
	// the surviving backend alone.
	Degraded bool `json:"degraded"`
}
