package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

// Config captures runtime configuration for the relink application.
type Config struct {
	// Roots are the directories scanned for duplicate files.
	Roots []string `koanf:"roots"`

	// Database is the path of the SQLite metadata store.
	Database string `koanf:"database"`

	// Workers bounds the hashing worker pool. Zero means one per CPU.
	Workers int `koanf:"workers"`

	// MinFileSize skips files smaller than this many bytes.
	MinFileSize int64 `koanf:"min_file_size"`

	// Excludes are base-name patterns for files and directories to skip.
	Excludes []string `koanf:"excludes"`

	// DryRun reports linking decisions without modifying the filesystem.
	DryRun bool `koanf:"dry_run"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"roots":         []string{"."},
		"database":      "relink.db",
		"workers":       0,
		"min_file_size": 1,
		"excludes":      []string{},
		"dry_run":       false,
	}
}

// Load builds a Config from defaults overlaid with an optional yaml file.
// An empty path loads defaults only; a missing file at an explicit path is
// an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, errors.Wrap(err, "load default config")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "load config file %s", path)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if len(c.Roots) == 0 {
		c.Roots = []string{"."}
	}

	normalized := make([]string, 0, len(c.Roots))
	for _, root := range c.Roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return errors.Wrapf(err, "resolve root %q", root)
		}
		abs = filepath.Clean(abs)

		info, err := os.Stat(abs)
		if err != nil {
			return errors.Wrapf(err, "root %q", root)
		}
		if !info.IsDir() {
			return errors.Errorf("root %q is not a directory", root)
		}
		normalized = append(normalized, abs)
	}
	if len(normalized) == 0 {
		return errors.New("at least one scan root is required")
	}
	c.Roots = normalized

	if c.Database == "" {
		return errors.New("database path cannot be empty")
	}
	abs, err := filepath.Abs(c.Database)
	if err != nil {
		return errors.Wrapf(err, "resolve database path %q", c.Database)
	}
	c.Database = abs

	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MinFileSize < 1 {
		c.MinFileSize = 1
	}

	return nil
}
