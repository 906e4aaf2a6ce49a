package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relink/internal/metadata"
)

func fileRecord(t *testing.T, dir, name string, content []byte, modTime time.Time, hash byte) metadata.FileRecord {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))

	return metadata.FileRecord{
		Path:    path,
		Size:    int64(len(content)),
		ModTime: modTime,
		Hash:    []byte{hash},
	}
}

func TestVerify_IdenticalContentFormsOneGroup(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	members := []metadata.FileRecord{
		fileRecord(t, dir, "b.txt", []byte("hello"), base.Add(time.Hour), 0x01),
		fileRecord(t, dir, "a.txt", []byte("hello"), base, 0x01),
		fileRecord(t, dir, "c.txt", []byte("hello"), base.Add(2*time.Hour), 0x01),
	}

	groups, warnings := Verify(members)
	require.Empty(t, warnings)
	require.Len(t, groups, 1)

	// Earliest mod time wins.
	assert.Equal(t, filepath.Join(dir, "a.txt"), groups[0].Canonical.Path)
	assert.Len(t, groups[0].Redundant, 2)
}

func TestVerify_CanonicalTieBreaksOnPath(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	members := []metadata.FileRecord{
		fileRecord(t, dir, "zz.txt", []byte("hello"), base, 0x01),
		fileRecord(t, dir, "aa.txt", []byte("hello"), base, 0x01),
	}

	groups, _ := Verify(members)
	require.Len(t, groups, 1)
	assert.Equal(t, filepath.Join(dir, "aa.txt"), groups[0].Canonical.Path)
}

func TestVerify_DeterministicAcrossInputOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	a := fileRecord(t, dir, "a.txt", []byte("hello"), base.Add(time.Hour), 0x01)
	b := fileRecord(t, dir, "b.txt", []byte("hello"), base, 0x01)
	c := fileRecord(t, dir, "c.txt", []byte("hello"), base.Add(2*time.Hour), 0x01)

	first, _ := Verify([]metadata.FileRecord{a, b, c})
	second, _ := Verify([]metadata.FileRecord{c, a, b})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Canonical.Path, second[0].Canonical.Path)
}

func TestVerify_HashCollisionSplitsGroup(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	// Same size, same recorded hash, different bytes: an engineered
	// collision. Verification must split, never merge.
	members := []metadata.FileRecord{
		fileRecord(t, dir, "x1.bin", []byte("xxxxx"), base, 0x01),
		fileRecord(t, dir, "x2.bin", []byte("xxxxx"), base, 0x01),
		fileRecord(t, dir, "y1.bin", []byte("yyyyy"), base, 0x01),
		fileRecord(t, dir, "y2.bin", []byte("yyyyy"), base, 0x01),
	}

	groups, warnings := Verify(members)
	require.Empty(t, warnings)
	require.Len(t, groups, 2)

	for _, group := range groups {
		assert.Equal(t, 2, group.Size())
	}
}

func TestVerify_CollisionWithSingleOddMemberDropsIt(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	members := []metadata.FileRecord{
		fileRecord(t, dir, "x1.bin", []byte("xxxxx"), base, 0x01),
		fileRecord(t, dir, "x2.bin", []byte("xxxxx"), base, 0x01),
		fileRecord(t, dir, "odd.bin", []byte("zzzzz"), base, 0x01),
	}

	groups, _ := Verify(members)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Size())
	for _, member := range append(groups[0].Redundant, groups[0].Canonical) {
		assert.NotEqual(t, filepath.Join(dir, "odd.bin"), member.Path)
	}
}

func TestVerify_UnreadableMemberExcludedWithWarning(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	a := fileRecord(t, dir, "a.txt", []byte("hello"), base, 0x01)
	b := fileRecord(t, dir, "b.txt", []byte("hello"), base.Add(time.Hour), 0x01)
	gone := fileRecord(t, dir, "gone.txt", []byte("hello"), base.Add(2*time.Hour), 0x01)
	require.NoError(t, os.Remove(gone.Path))

	groups, warnings := Verify([]metadata.FileRecord{a, b, gone})
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Size())
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "gone.txt")
}

func TestVerify_UnreadableReferenceDoesNotDropGroup(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	// The vanished file comes first, so it is picked as the comparison
	// reference. Only it may drop out; the readable members must still
	// form a group with each other.
	gone := fileRecord(t, dir, "aaa-gone.txt", []byte("hello"), base, 0x01)
	b := fileRecord(t, dir, "bbb.txt", []byte("hello"), base.Add(time.Hour), 0x01)
	c := fileRecord(t, dir, "ccc.txt", []byte("hello"), base.Add(2*time.Hour), 0x01)
	require.NoError(t, os.Remove(gone.Path))

	groups, warnings := Verify([]metadata.FileRecord{gone, b, c})

	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Size())
	assert.Equal(t, b.Path, groups[0].Canonical.Path)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "aaa-gone.txt")
}

func TestVerify_FewerThanTwoMembersNoGroup(t *testing.T) {
	dir := t.TempDir()
	a := fileRecord(t, dir, "a.txt", []byte("hello"), time.Unix(1000, 0), 0x01)

	groups, warnings := Verify([]metadata.FileRecord{a})
	assert.Empty(t, groups)
	assert.Empty(t, warnings)
}

func TestVerify_DifferentLengthSameHashNotMerged(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1000, 0)

	short := fileRecord(t, dir, "short.bin", []byte("abc"), base, 0x01)
	long := fileRecord(t, dir, "long.bin", []byte("abcdef"), base, 0x01)

	groups, _ := Verify([]metadata.FileRecord{short, long})
	assert.Empty(t, groups)
}

type faultReader struct {
	data []byte
	err  error
}

func (r *faultReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestEqualReaders_ReadFaultIsAnErrorNotAMismatch(t *testing.T) {
	fault := errors.New("device fault")

	// The faulty side returns a short read with a real I/O error; that must
	// surface as an error, not as "different content".
	same, err := equalReaders(
		&faultReader{data: []byte("hel"), err: fault},
		strings.NewReader("hello"),
	)
	assert.False(t, same)
	assert.ErrorIs(t, err, fault)

	same, err = equalReaders(
		strings.NewReader("hello"),
		&faultReader{data: []byte("hel"), err: fault},
	)
	assert.False(t, same)
	assert.ErrorIs(t, err, fault)
}

func TestEqualReaders_ShortContentIsAMismatch(t *testing.T) {
	same, err := equalReaders(strings.NewReader("hel"), strings.NewReader("hello"))
	require.NoError(t, err)
	assert.False(t, same)
}
