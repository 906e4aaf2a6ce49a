// Package scanner discovers candidate files and reports their observed
// metadata. The engine only consumes the resulting (path, size, mod time)
// tuples; the walk strategy is a detail of this package.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relink/internal/logger"
)

// Entry is one observed file.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Options controls which files a walk reports.
type Options struct {
	// MinSize skips files smaller than this many bytes. Zero-byte files are
	// always skipped: linking empty files together saves nothing.
	MinSize int64

	// Excludes are patterns matched against the base name of files and
	// directories (filepath.Match syntax). A matching directory is skipped
	// entirely.
	Excludes []string
}

// Walker walks filesystem trees and collects entries for regular files.
type Walker struct {
	opts Options
	log  *logrus.Entry
}

// New constructs a Walker.
func New(opts Options) *Walker {
	if opts.MinSize < 1 {
		opts.MinSize = 1
	}
	return &Walker{opts: opts, log: logger.GetLogger("scanner")}
}

// Scan walks each root and returns the entries found. Unreadable entries are
// logged and skipped; only a bad root aborts the walk. The walk runs
// concurrently across directories, so entry order is not significant.
func (w *Walker) Scan(ctx context.Context, roots []string) ([]Entry, error) {
	var (
		mu      sync.Mutex
		entries []Entry
	)

	conf := fastwalk.Config{Follow: false}

	for _, root := range roots {
		root = filepath.Clean(root)

		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				w.log.WithError(err).Warnf("skipping %s", path)
				return nil
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			if w.excluded(filepath.Base(path)) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				return nil
			}

			info, infoErr := d.Info()
			if infoErr != nil {
				w.log.WithError(infoErr).Warnf("skipping %s", path)
				return nil
			}

			if info.Size() < w.opts.MinSize {
				return nil
			}

			mu.Lock()
			entries = append(entries, Entry{
				Path:    filepath.Clean(path),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", root)
		}
	}

	return entries, nil
}

func (w *Walker) excluded(name string) bool {
	for _, pattern := range w.opts.Excludes {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
