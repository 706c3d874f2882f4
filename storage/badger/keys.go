package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/corpus/core"
)

// Key prefixes for different data types
const (
	docPrefix    = "stgdoc"
	hashPrefix   = "stghash"
	statusPrefix = "stgsts"
)

// makeDocKey generates the primary key for a staged document.
// Format: prefix:BE(id)
func makeDocKey(id core.ID) []byte {
	prefix := docPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeHashKey generates the dedup index key for a (collection, contentHash)
// pair. The value stores the row IDs of every chunk inserted for the pair.
func makeHashKey(collection, contentHash string) []byte {
	prefix := hashPrefix + ":"
	buf := make([]byte, 0, len(prefix)+len(collection)+1+len(contentHash))
	buf = append(buf, prefix...)
	buf = append(buf, collection...)
	buf = append(buf, ':')
	buf = append(buf, contentHash...)
	return buf
}

// makeStatusKey generates a composite key for the status index.
// Format: prefix:status:BE(timestamp)BE(id)
//
// The timestamp field holds whichever instant ordering matters for the
// status: NextAttemptAt for pending rows (so claim scans stop at the first
// row whose backoff has not elapsed), ClaimedAt for embedding rows (so
// stale-claim scans find the oldest claims first), and UpdatedAt otherwise.
func makeStatusKey(status core.EmbeddingStatus, ts time.Time, id core.ID) []byte {
	prefix := makeStatusPrefix(status)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	// BigEndian so lexicographic sort equals chronological sort
	binary.BigEndian.PutUint64(buf[offset:], timestampMicros(ts))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeStatusPrefix generates the scan prefix for one status.
func makeStatusPrefix(status core.EmbeddingStatus) []byte {
	return []byte(statusPrefix + ":" + status.String() + ":")
}

// statusKeyTime extracts the timestamp component from a status index key.
func statusKeyTime(status core.EmbeddingStatus, key []byte) time.Time {
	offset := len(makeStatusPrefix(status))
	if len(key) < offset+8 {
		return time.Time{}
	}
	micros := binary.BigEndian.Uint64(key[offset:])
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(micros)).UTC()
}

// timestampMicros converts a time to the index representation. The zero time
// maps to 0 so freshly inserted pending rows sort ahead of backed-off ones.
func timestampMicros(ts time.Time) uint64 {
	if ts.IsZero() {
		return 0
	}
	return uint64(ts.UnixMicro())
}

// indexTimestamp returns the instant a document should be indexed under for
// its current status. Must stay in sync with statusKeyTime readers.
func indexTimestamp(doc *core.StagedDocument) time.Time {
	switch doc.Status {
	case core.StatusPending:
		return doc.NextAttemptAt
	case core.StatusEmbedding:
		return doc.ClaimedAt
	default:
		return doc.UpdatedAt
	}
}
