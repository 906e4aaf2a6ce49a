package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func paths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Path)
	}
	return out
}

func TestScan_ReportsSizeAndModTime(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "a.txt", "hello")

	entries, err := New(Options{}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, path, entries[0].Path)
	assert.Equal(t, int64(5), entries[0].Size)
	assert.True(t, entries[0].ModTime.Equal(info.ModTime()))
}

func TestScan_WalksNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "top.txt", "hello")
	write(t, dir, filepath.Join("sub", "deep", "nested.txt"), "world")

	entries, err := New(Options{}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestScan_SkipsFilesBelowMinSize(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "tiny.txt", "ab")
	big := write(t, dir, "big.txt", "large enough")

	entries, err := New(Options{MinSize: 5}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{big}, paths(entries))
}

func TestScan_AlwaysSkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "empty.txt", "")
	kept := write(t, dir, "kept.txt", "x")

	entries, err := New(Options{}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{kept}, paths(entries))
}

func TestScan_ExcludesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "notes.txt", "hello")
	write(t, dir, "backup.bak", "hello")

	entries, err := New(Options{Excludes: []string{"*.bak"}}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), entries[0].Path)
}

func TestScan_ExcludesMatchingDirectories(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "kept.txt", "hello")
	write(t, dir, filepath.Join(".git", "objects", "blob.txt"), "hello")

	entries, err := New(Options{Excludes: []string{".git"}}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(dir, "kept.txt"), entries[0].Path)
}

func TestScan_IgnoresSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := write(t, dir, "target.txt", "hello")
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "alias.txt")))

	entries, err := New(Options{}).Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{target}, paths(entries))
}

func TestScan_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.txt", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Scan(ctx, []string{dir})
	assert.Error(t, err)
}
