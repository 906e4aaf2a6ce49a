package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, []string{wd}, cfg.Roots)
	assert.Equal(t, filepath.Join(wd, "relink.db"), cfg.Database)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, int64(1), cfg.MinFileSize)
	assert.False(t, cfg.DryRun)
}

func TestLoad_YamlFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "media")
	require.NoError(t, os.Mkdir(root, 0o755))

	configPath := filepath.Join(dir, "relink.yaml")
	content := `
roots:
  - ` + root + `
database: ` + filepath.Join(dir, "meta.db") + `
workers: 4
min_file_size: 4096
excludes:
  - "*.tmp"
  - ".git"
dry_run: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, []string{root}, cfg.Roots)
	assert.Equal(t, filepath.Join(dir, "meta.db"), cfg.Database)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, int64(4096), cfg.MinFileSize)
	assert.Equal(t, []string{"*.tmp", ".git"}, cfg.Excludes)
	assert.True(t, cfg.DryRun)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_RootMustExist(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "relink.yaml")
	require.NoError(t, os.WriteFile(configPath,
		[]byte("roots:\n  - "+filepath.Join(dir, "missing")+"\n"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_RootMustBeDirectory(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "not-a-dir.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	configPath := filepath.Join(dir, "relink.yaml")
	require.NoError(t, os.WriteFile(configPath,
		[]byte("roots:\n  - "+filePath+"\n"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NegativeWorkersRejected(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "relink.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("workers: -1\n"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_MinFileSizeFloorsAtOne(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "relink.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("min_file_size: 0\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.MinFileSize)
}
