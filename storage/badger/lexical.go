package badger

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/storage"
)

// BM25 parameters. Standard values from the literature; not worth tuning
// until the corpus outgrows a full scan.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// stopwords are dropped from both queries and documents before scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"i": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"their": true, "they": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true, "you": true, "your": true,
}

// tokenize lowercases, splits on non-alphanumeric runes and drops stopwords
// and single-character tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// termFrequencies counts token occurrences.
func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// lexicalCandidate holds a tokenized document during scoring.
type lexicalCandidate struct {
	doc    *core.StagedDocument
	tf     map[string]int
	length int
}

// SearchText scores staged documents against the query with BM25 and returns
// the top hits. The scan covers every non-failed document in the requested
// collections, so content staged but not yet embedded stays reachable while
// the embedding backend is down. Acceptable at staging-store scale, where the
// vector backend carries the bulk of retrieval.
func (s *StagingStore) SearchText(ctx context.Context, query string, collections []string, audience core.Audience, limit int) ([]storage.LexicalHit, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 || limit <= 0 {
		return nil, nil
	}

	wantCollection := make(map[string]bool, len(collections))
	for _, c := range collections {
		wantCollection[c] = true
	}

	var candidates []lexicalCandidate
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix + ":")
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var doc *core.StagedDocument
			if verr := it.Item().Value(func(val []byte) error {
				var uerr error
				doc, uerr = storage.UnmarshalDocument(val)
				return uerr
			}); verr != nil {
				return verr
			}

			if doc.Status == core.StatusFailed {
				continue
			}
			if len(wantCollection) > 0 && !wantCollection[doc.Collection] {
				continue
			}
			if audience != "" && !doc.VisibleTo(audience) {
				continue
			}

			tokens := tokenize(doc.NormalizedText)
			if len(tokens) == 0 {
				continue
			}
			candidates = append(candidates, lexicalCandidate{
				doc:    doc,
				tf:     termFrequencies(tokens),
				length: len(tokens),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, core.Transient(err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	hits := scoreBM25(queryTokens, candidates)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scoreBM25 ranks candidates against the query tokens, dropping zero scores.
func scoreBM25(queryTokens []string, candidates []lexicalCandidate) []storage.LexicalHit {
	n := float64(len(candidates))

	var totalLength int
	for _, c := range candidates {
		totalLength += c.length
	}
	avgLength := float64(totalLength) / n

	// Document frequency per distinct query term.
	df := make(map[string]int)
	seen := make(map[string]bool, len(queryTokens))
	for _, term := range queryTokens {
		if seen[term] {
			continue
		}
		seen[term] = true
		for _, c := range candidates {
			if c.tf[term] > 0 {
				df[term]++
			}
		}
	}

	hits := make([]storage.LexicalHit, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		for term := range seen {
			freq := float64(c.tf[term])
			if freq == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			norm := freq * (bm25K1 + 1) / (freq + bm25K1*(1-bm25B+bm25B*float64(c.length)/avgLength))
			score += idf * norm
		}
		if score > 0 {
			hits = append(hits, storage.LexicalHit{Doc: c.doc, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc.Id < hits[j].Doc.Id
	})
	return hits
}
