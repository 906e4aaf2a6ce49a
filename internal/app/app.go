// Package app wires configuration, the metadata store, the scanner, and the
// engine together for the CLI commands.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relink/internal/config"
	"relink/internal/engine"
	"relink/internal/logger"
	"relink/internal/metadata"
	"relink/internal/scanner"
)

// App ties together configuration, the store, and the engine.
type App struct {
	cfg    config.Config
	store  *metadata.Store
	engine *engine.Engine
	log    *logrus.Entry
}

// New constructs an App using the provided configuration.
func New(cfg config.Config) (*App, error) {
	store, err := metadata.Open(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "open metadata store")
	}

	eng := engine.New(store, engine.Options{
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
		Roots:   cfg.Roots,
	})

	return &App{
		cfg:    cfg,
		store:  store,
		engine: eng,
		log:    logger.GetLogger("app"),
	}, nil
}

// Close releases the metadata store.
func (a *App) Close() error {
	return a.store.Close()
}

func (a *App) scan(ctx context.Context) ([]scanner.Entry, error) {
	walker := scanner.New(scanner.Options{
		MinSize:  a.cfg.MinFileSize,
		Excludes: a.cfg.Excludes,
	})

	a.log.Infof("scanning %d roots", len(a.cfg.Roots))
	entries, err := walker.Scan(ctx, a.cfg.Roots)
	if err != nil {
		return nil, errors.Wrap(err, "scan roots")
	}
	a.log.Infof("discovered %d files", len(entries))
	return entries, nil
}

// Run performs a full deduplication pass over the configured roots.
func (a *App) Run(ctx context.Context) (*engine.Summary, error) {
	entries, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.Run(ctx, entries)
}

// Scan refreshes the metadata store (including stale hashes) without any
// verification or linking.
func (a *App) Scan(ctx context.Context) (*engine.Summary, error) {
	entries, err := a.scan(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.Refresh(ctx, entries)
}

// Duplicates returns the candidate duplicate groups recorded by the last
// scan, keyed by digest, without touching the scanned trees.
func (a *App) Duplicates(ctx context.Context) (map[string][]metadata.FileRecord, error) {
	return a.engine.Duplicates(ctx)
}

// Candidates returns every member of a candidate duplicate group as one
// flat, path-sorted slice.
func (a *App) Candidates(ctx context.Context) ([]metadata.FileRecord, error) {
	return a.engine.DuplicateCandidates(ctx)
}
