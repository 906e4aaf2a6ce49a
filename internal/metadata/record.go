package metadata

import (
	"encoding/hex"
	"time"
)

// FileRecord is the persisted metadata for one filesystem path. Hash is nil
// until a digest has been computed for the current size/mod time combination;
// a record with a nil hash never participates in duplicate grouping.
//
// A genuinely empty file still carries the digest of zero bytes, which is a
// full-length, non-nil value. "No hash yet" and "hash of empty content" are
// therefore distinct states.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Hash    []byte
}

// Hashed reports whether the record carries a digest valid for its current
// size and mod time.
func (r FileRecord) Hashed() bool {
	return len(r.Hash) > 0
}

// HashKey returns the canonical string encoding of the digest, used as the
// grouping key. Empty string when no digest is present.
func (r FileRecord) HashKey() string {
	if len(r.Hash) == 0 {
		return ""
	}
	return hex.EncodeToString(r.Hash)
}
