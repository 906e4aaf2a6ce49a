package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"relink/internal/hasher"
	"relink/internal/metadata"
)

// VerifiedGroup is a set of files confirmed byte-identical. The canonical
// member is kept as-is; every redundant member is a candidate for relinking.
type VerifiedGroup struct {
	Hash      string
	Canonical metadata.FileRecord
	Redundant []metadata.FileRecord
}

// Size returns the number of members including the canonical one.
func (g VerifiedGroup) Size() int {
	return len(g.Redundant) + 1
}

// Verify confirms byte equality across a set of records sharing a digest.
//
// Equal digests are only a pre-filter; the authoritative check is a full
// byte-for-byte comparison, so even an engineered hash collision can never
// merge distinct content. Members that fail to open or read drop out with a
// warning. A real collision partitions the members by actual equality and
// each partition of two or more becomes its own group.
func Verify(members []metadata.FileRecord) ([]VerifiedGroup, []string) {
	if len(members) < 2 {
		return nil, nil
	}

	var (
		groups   []VerifiedGroup
		warnings []string
	)

	remaining := make([]metadata.FileRecord, len(members))
	copy(remaining, members)

	for len(remaining) > 0 {
		reference := remaining[0]

		// An unreadable reference excludes only itself; the rest of the
		// members still get a chance to form a group with each other.
		ref, err := os.Open(reference.Path)
		if err != nil {
			warnings = append(warnings,
				fmt.Sprintf("excluded %s from group: %v", reference.Path, err))
			remaining = remaining[1:]
			continue
		}

		equal := []metadata.FileRecord{reference}
		var unequal []metadata.FileRecord

		for _, candidate := range remaining[1:] {
			same, err := matchesReference(ref, candidate.Path)
			if err != nil {
				warnings = append(warnings,
					fmt.Sprintf("excluded %s from group: %v", candidate.Path, err))
				continue
			}
			if same {
				equal = append(equal, candidate)
			} else {
				unequal = append(unequal, candidate)
			}
		}
		ref.Close()

		if len(equal) >= 2 {
			groups = append(groups, newVerifiedGroup(reference.HashKey(), equal))
		}
		remaining = unequal
	}

	return groups, warnings
}

// newVerifiedGroup picks the canonical member deterministically: earliest
// modification time first, lexicographically smallest path on ties. Re-runs
// over the same input therefore make the same linking decisions.
func newVerifiedGroup(hash string, members []metadata.FileRecord) VerifiedGroup {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].ModTime.Equal(members[j].ModTime) {
			return members[i].ModTime.Before(members[j].ModTime)
		}
		return members[i].Path < members[j].Path
	})

	return VerifiedGroup{
		Hash:      hash,
		Canonical: members[0],
		Redundant: members[1:],
	}
}

// matchesReference compares the candidate at path against the already-open
// reference, rewinding the reference first so it can be reused across the
// whole group.
func matchesReference(ref *os.File, path string) (bool, error) {
	if _, err := ref.Seek(0, io.SeekStart); err != nil {
		return false, err
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	return equalReaders(ref, f)
}

// equalReaders compares two streams byte for byte, short-circuiting on the
// first differing chunk. A genuine read fault surfaces as an error, never as
// a content mismatch: a short read caused by an I/O fault must not classify
// the member as "different content".
func equalReaders(a, b io.Reader) (bool, error) {
	bufA := make([]byte, hasher.BlockSize)
	bufB := make([]byte, hasher.BlockSize)

	for {
		na, errA := io.ReadFull(a, bufA)
		nb, errB := io.ReadFull(b, bufB)

		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF

		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}

		switch {
		case doneA && doneB:
			return true, nil
		case doneA != doneB:
			return false, nil
		}
	}
}
