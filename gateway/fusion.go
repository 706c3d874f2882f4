package gateway

import (
	"sort"
	"time"

	"github.com/poiesic/corpus/core"
)

// DefaultFusionConstant is the k in the reciprocal rank fusion formula
// 1/(k+rank). 60 is the value from the original RRF paper; larger values
// flatten the difference between ranks.
const DefaultFusionConstant = 60

// Result sources.
const (
	SourceSemantic = "semantic"
	SourceLexical  = "lexical"
	SourceHybrid   = "hybrid"
)

// candidate is one chunk-level hit from either backend, normalized into a
// common shape before fusion.
type candidate struct {
	id           core.ID
	collapseKey  core.ID
	collection   string
	audience     []core.Audience
	capabilities []string
	chunkIndex   int
	text         string
	rawScore     float64   // backend-native score, kept for tie-breaking
	source       string    // SourceSemantic or SourceLexical
	updatedAt    time.Time
}

// fused is a candidate with its accumulated RRF score.
type fused struct {
	candidate
	score float64
}

// reciprocalRankFusion merges ranked candidate lists. Each list contributes
// 1/(k+rank) per candidate, rank starting at 1; a candidate appearing in
// both lists sums both contributions, which is what pushes results agreed
// on by both backends above single-backend hits.
func reciprocalRankFusion(k int, lists ...[]candidate) []fused {
	scores := make(map[core.ID]*fused)

	for _, list := range lists {
		for rank, c := range list {
			contribution := 1.0 / float64(k+rank+1)
			if f, ok := scores[c.id]; ok {
				f.score += contribution
				if c.rawScore > f.rawScore {
					f.rawScore = c.rawScore
				}
				if f.text == "" {
					f.text = c.text
				}
				if c.source != "" && f.source != c.source {
					f.source = SourceHybrid
				}
				if c.updatedAt.After(f.updatedAt) {
					f.updatedAt = c.updatedAt
				}
				continue
			}
			f := &fused{candidate: c, score: contribution}
			scores[c.id] = f
		}
	}

	out := make([]fused, 0, len(scores))
	for _, f := range scores {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if !out[i].updatedAt.Equal(out[j].updatedAt) {
			return out[i].updatedAt.After(out[j].updatedAt)
		}
		if out[i].rawScore != out[j].rawScore {
			return out[i].rawScore > out[j].rawScore
		}
		return out[i].id < out[j].id
	})
	return out
}

// collapse folds chunk-level fused hits into document-level results. The
// best chunk represents the document; further chunks of the same document
// are listed as supplementary matches.
func collapse(hits []fused, limit int) []Result {
	byDoc := make(map[core.ID]*Result)
	order := make([]core.ID, 0, len(hits))

	for _, h := range hits {
		key := h.collapseKey
		if r, ok := byDoc[key]; ok {
			r.Chunks = append(r.Chunks, ChunkMatch{
				ID:         h.id,
				ChunkIndex: h.chunkIndex,
				Score:      h.score,
				Snippet:    makeSnippet(h.text),
			})
			if h.source != "" && r.Source != h.source {
				r.Source = SourceHybrid
			}
			continue
		}
		byDoc[key] = &Result{
			ID:           key,
			Collection:   h.collection,
			Score:        h.score,
			Snippet:      makeSnippet(h.text),
			Audience:     h.audience,
			Capabilities: h.capabilities,
			Source:       h.source,
		}
		order = append(order, key)
	}

	results := make([]Result, 0, len(order))
	for _, key := range order {
		results = append(results, *byDoc[key])
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results
}
