package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for staged documents and vector entries.
// It is generated deterministically from content so that re-ingesting
// the same document always yields the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// HashContent returns the content hash of normalized document text as a
// BLAKE2b-256 hex digest. Uniqueness per collection is enforced by the
// staging store's dedup index.
func HashContent(normalizedText string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(normalizedText))
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentID derives the stable ID of a logical document within a collection.
func DocumentID(collection, contentHash string) ID {
	return IDFromContent(collection + "\x00" + contentHash)
}

// ChunkID derives the stable ID of one chunk of a logical document.
// Chunk IDs are a pure function of (collection, contentHash, index) so
// re-ingestion is idempotent down to the chunk level.
func ChunkID(collection, contentHash string, index int) ID {
	return IDFromContent(collection + "\x00" + contentHash + "\x00" + strconv.Itoa(index))
}

// EmbeddingStatus tracks a staged document through the embedding lifecycle.
// Legal transitions are Pending -> Embedding -> {Completed, Failed}.
// A failure below the retry limit resets the document to Pending with a
// backoff timestamp; Completed is terminal.
type EmbeddingStatus int

const (
	// StatusPending means the document is waiting to be claimed by a scheduler.
	StatusPending EmbeddingStatus = iota + 1
	// StatusEmbedding means a worker currently holds a claim on the document.
	StatusEmbedding
	// StatusCompleted means the vector write succeeded. Terminal.
	StatusCompleted
	// StatusFailed means retries were exhausted or the content is invalid. Terminal.
	StatusFailed
)

// String returns the lowercase name of the status, used in index keys and logs.
func (s EmbeddingStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEmbedding:
		return "embedding"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Audience identifies a consumer class for search visibility filtering.
// The set is closed so the gateway's filtering stays exhaustive and testable.
type Audience string

const (
	// AudienceHuman marks content visible to interactive human clients.
	AudienceHuman Audience = "human"
	// AudienceAgent marks content visible to autonomous LLM agents.
	AudienceAgent Audience = "agent"
)

// DefaultAudience returns the tag set applied when ingestion supplies none.
func DefaultAudience() []Audience {
	return []Audience{AudienceHuman, AudienceAgent}
}

// StagedDocument is the durable record of a document (or one chunk of a
// document) moving through the embedding pipeline. Fetchers write
// RawContent/NormalizedText at creation time; the scheduler is the sole
// writer of Status and VectorRef afterwards.
type StagedDocument struct {
	Id             ID
	ParentId       ID // 0 when the document is its own parent (single chunk)
	Collection     string
	ContentHash    string
	RawContent     string
	NormalizedText string
	ChunkIndex     int
	ChunkCount     int
	Status         EmbeddingStatus
	VectorRef      string // set once the vector write succeeded, never reused
	Audience       []Audience
	Capabilities   []string // free-form render classifiers, e.g. "interactive"
	RetryCount     int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClaimedAt      time.Time
	ClaimedBy      string
	NextAttemptAt  time.Time // earliest time the document may be claimed again
}

// CollapseKey returns the identity under which chunk hits are merged into a
// single search result: the parent for chunks, the document itself otherwise.
func (d *StagedDocument) CollapseKey() ID {
	if d.ParentId != 0 {
		return d.ParentId
	}
	return d.Id
}

// VisibleTo reports whether the document's audience tags include the
// requesting consumer class.
func (d *StagedDocument) VisibleTo(audience Audience) bool {
	for _, a := range d.Audience {
		if a == audience {
			return true
		}
	}
	return false
}
