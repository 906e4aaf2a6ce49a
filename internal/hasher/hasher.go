// Package hasher computes content digests for files on disk.
//
// The strong digest is SHA-256 over the full content, streamed in pooled
// buffers so arbitrarily large files never need to fit in memory. A cheap
// xxhash over the first block is available as a pre-filter so the engine can
// avoid full digests for files that cannot possibly match.
package hasher

import (
	"crypto/sha256"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// BlockSize is the read chunk used while streaming file content.
const BlockSize = 32 * 1024

// QuickHashSize is how much of the file the quick pre-filter hash reads.
const QuickHashSize = 4 * 1024

// DigestSize is the length in bytes of a full content digest.
const DigestSize = sha256.Size

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, BlockSize)
		return &b
	},
}

// ReadError marks a hashing failure caused by the file itself: it vanished,
// was truncated or grew mid-read, or the read faulted. Such files are skipped
// with a warning rather than aborting the run.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return "hash " + e.Path + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Hash computes the SHA-256 digest of the file content at path.
//
// The byte count is checked against the size reported by the open descriptor
// before and after the read, so a file that is truncated, replaced, or
// appended to while being hashed yields a ReadError instead of a digest of
// content that never existed in that form on disk.
func Hash(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	return hashOpen(file, info)
}

// hashOpen streams the content of an already-open file and verifies it
// against info, which was captured before reading started.
func hashOpen(file *os.File, info os.FileInfo) ([]byte, error) {
	path := file.Name()
	expected := info.Size()

	h := sha256.New()

	bufPtr := bufferPool.Get().(*[]byte)
	buf := *bufPtr
	defer bufferPool.Put(bufPtr)

	read, err := io.CopyBuffer(h, file, buf)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	if read != expected {
		return nil, &ReadError{Path: path, Err: errors.Errorf("read %d bytes, expected %d", read, expected)}
	}

	after, err := file.Stat()
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	if after.Size() != expected || !after.ModTime().Equal(info.ModTime()) {
		return nil, &ReadError{Path: path, Err: errors.New("file changed while hashing")}
	}

	return h.Sum(nil), nil
}

// QuickHash returns an xxhash of the first QuickHashSize bytes of the file.
// It is a pre-filter only and is never persisted or used as proof of
// equality: two files with equal quick hashes still need full digests.
func QuickHash(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, &ReadError{Path: path, Err: err}
	}
	defer file.Close()

	buf := make([]byte, QuickHashSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, &ReadError{Path: path, Err: err}
	}

	return xxhash.Sum64(buf[:n]), nil
}
