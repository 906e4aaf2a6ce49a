package engine

import (
	"sort"
	"sync"

	"relink/internal/metadata"
)

// Index maps a content digest (hex encoded) to the set of records sharing it.
// It is safe for concurrent insertion: the map and each bucket serialize
// writes, and membership is exactly-once per (hash, path) pair regardless of
// insertion order. Once built, the index is treated as immutable for the rest
// of the run.
type Index struct {
	mu     sync.Mutex
	groups map[string][]metadata.FileRecord
	seen   map[string]map[string]struct{}
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		groups: make(map[string][]metadata.FileRecord),
		seen:   make(map[string]map[string]struct{}),
	}
}

// Add inserts a record into the bucket for its digest. Records without a
// digest are skipped entirely; files with unknown content must never group,
// not even with each other. Re-adding a (hash, path) pair is a no-op.
func (ix *Index) Add(record metadata.FileRecord) {
	key := record.HashKey()
	if key == "" {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	members, ok := ix.seen[key]
	if !ok {
		members = make(map[string]struct{})
		ix.seen[key] = members
	}
	if _, dup := members[record.Path]; dup {
		return
	}
	members[record.Path] = struct{}{}
	ix.groups[key] = append(ix.groups[key], record)
}

// Len returns the number of distinct digests in the index.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.groups)
}

// Files returns the total number of records held across all buckets.
func (ix *Index) Files() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	total := 0
	for _, group := range ix.groups {
		total += len(group)
	}
	return total
}

// Group returns a copy of the bucket for a digest key.
func (ix *Index) Group(key string) []metadata.FileRecord {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	group := ix.groups[key]
	out := make([]metadata.FileRecord, len(group))
	copy(out, group)
	return out
}

// NonUnique returns the digests shared by at least two records, mapped to
// copies of their buckets. The full index is left intact so single-member
// groups stay available to later incremental passes.
func (ix *Index) NonUnique() map[string][]metadata.FileRecord {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make(map[string][]metadata.FileRecord)
	for key, group := range ix.groups {
		if len(group) < 2 {
			continue
		}
		members := make([]metadata.FileRecord, len(group))
		copy(members, group)
		out[key] = members
	}
	return out
}

// Candidates returns every record that shares its digest with at least one
// other record, ordered by path.
func (ix *Index) Candidates() []metadata.FileRecord {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var out []metadata.FileRecord
	for _, group := range ix.groups {
		if len(group) > 1 {
			out = append(out, group...)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SortedKeys returns digest keys in lexicographic order so iteration over
// groups is reproducible across runs.
func SortedKeys(groups map[string][]metadata.FileRecord) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
