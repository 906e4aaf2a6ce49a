// Package engine implements the duplicate detection and consolidation core:
// grouping hashed records, verifying byte equality, and relinking verified
// duplicates to a single canonical copy.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relink/internal/hasher"
	"relink/internal/logger"
	"relink/internal/metadata"
	"relink/internal/scanner"
)

// Options configures an Engine.
type Options struct {
	// Workers bounds the hashing worker pool. Defaults to runtime.NumCPU().
	Workers int

	// DryRun reports consolidation decisions without touching the filesystem.
	DryRun bool

	// Roots limits the stale-record sweep to paths under these directories.
	// Empty means every stored path not seen by the scanner is a sweep
	// candidate.
	Roots []string
}

// Engine wires the metadata store, hasher, grouping, verification, and
// consolidation stages into a single run.
type Engine struct {
	store *metadata.Store
	opts  Options
	log   *logrus.Entry
}

// New constructs an Engine over the given store.
func New(store *metadata.Store, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Engine{
		store: store,
		opts:  opts,
		log:   logger.GetLogger("engine"),
	}
}

// Summary is the reportable outcome of a run. The engine returns it as a
// value; formatting is the caller's concern.
type Summary struct {
	FilesScanned   int
	RecordsRemoved int
	HashesComputed int
	GroupsFound    int
	Linked         int
	AlreadyLinked  int
	Failed         int
	BytesReclaimed int64
	DryRun         bool
	Duration       time.Duration
	Groups         []GroupResult
	Warnings       []string
}

// Run executes a full pass: ingest scanner entries, sweep vanished paths,
// hash stale records, group, verify, and consolidate. Individual file and
// group failures become warnings or per-member results; only an unreachable
// store aborts the run.
func (e *Engine) Run(ctx context.Context, entries []scanner.Entry) (*Summary, error) {
	start := time.Now()

	summary := &Summary{DryRun: e.opts.DryRun}

	if err := e.refresh(ctx, entries, summary); err != nil {
		return nil, err
	}

	index, err := e.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Infof("mapped %d files to %d unique hashes", index.Files(), index.Len())

	e.consolidateAll(ctx, index, summary)

	summary.Duration = time.Since(start)
	return summary, nil
}

// Refresh ingests scanner entries and recomputes stale hashes without any
// grouping or linking. Used by the scan-only command.
func (e *Engine) Refresh(ctx context.Context, entries []scanner.Entry) (*Summary, error) {
	start := time.Now()

	summary := &Summary{DryRun: e.opts.DryRun}
	if err := e.refresh(ctx, entries, summary); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// Duplicates rebuilds the group index from the store snapshot and returns the
// candidate groups with two or more members, keyed by digest. No hashing or
// filesystem mutation happens; the result reflects the last refresh.
func (e *Engine) Duplicates(ctx context.Context) (map[string][]metadata.FileRecord, error) {
	index, err := e.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index.NonUnique(), nil
}

// DuplicateCandidates returns every file that belongs to a duplicate group,
// as one flat slice sorted by path.
func (e *Engine) DuplicateCandidates(ctx context.Context) ([]metadata.FileRecord, error) {
	index, err := e.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index.Candidates(), nil
}

func (e *Engine) refresh(ctx context.Context, entries []scanner.Entry, summary *Summary) error {
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Clean(entry.Path)
		seen[path] = struct{}{}
		summary.FilesScanned++

		if _, err := e.store.Upsert(ctx, path, entry.Size, entry.ModTime); err != nil {
			summary.Warnings = append(summary.Warnings, err.Error())
			e.log.WithError(err).Warnf("failed to record %s", path)
		}
	}

	removed, err := e.sweep(ctx, seen)
	if err != nil {
		return err
	}
	summary.RecordsRemoved = removed

	return e.hashStale(ctx, summary)
}

// sweep removes store records for paths the scanner no longer reports and
// that no longer exist on disk. Restricted to the configured roots so records
// from other trees are left alone.
func (e *Engine) sweep(ctx context.Context, seen map[string]struct{}) (int, error) {
	paths, err := e.store.AllPaths(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		if !e.underRoots(path) {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil || !errors.Is(statErr, os.ErrNotExist) {
			continue
		}

		if err := e.store.Remove(ctx, path); err != nil {
			e.log.WithError(err).Warnf("failed to remove record %s", path)
			continue
		}
		removed++
	}

	if removed > 0 {
		e.log.Infof("removed %d records for vanished files", removed)
	}
	return removed, nil
}

func (e *Engine) underRoots(path string) bool {
	if len(e.opts.Roots) == 0 {
		return true
	}
	for _, root := range e.opts.Roots {
		root = filepath.Clean(root)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// hashStale computes full digests for records that need one, on a bounded
// worker pool. Files whose size is unique across both unhashed and already
// hashed records are skipped: they cannot have a duplicate, so their digest
// would never be used. Among same-size unhashed files, a quick first-block
// hash prunes obvious non-matches before the full digest is paid for.
func (e *Engine) hashStale(ctx context.Context, summary *Summary) error {
	stale, err := e.store.Unhashed(ctx)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	hashedSizes, err := e.store.HashedSizes(ctx)
	if err != nil {
		return err
	}

	candidates := e.selectHashCandidates(stale, hashedSizes, summary)
	if len(candidates) == 0 {
		return nil
	}
	e.log.Infof("hashing %d of %d stale files", len(candidates), len(stale))

	jobs := make(chan metadata.FileRecord)
	type result struct {
		ok      bool
		warning string
	}
	results := make(chan result, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				ok, warning := e.hashOne(ctx, record)
				results <- result{ok: ok, warning: warning}
			}
		}()
	}

	go func() {
		for _, record := range candidates {
			select {
			case <-ctx.Done():
				close(jobs)
				return
			case jobs <- record:
			}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.ok {
			summary.HashesComputed++
		}
		if res.warning != "" {
			summary.Warnings = append(summary.Warnings, res.warning)
		}
	}

	return ctx.Err()
}

// selectHashCandidates picks the stale records worth a full digest.
func (e *Engine) selectHashCandidates(stale []metadata.FileRecord, hashedSizes map[int64]int, summary *Summary) []metadata.FileRecord {
	bySize := make(map[int64][]metadata.FileRecord)
	for _, record := range stale {
		bySize[record.Size] = append(bySize[record.Size], record)
	}

	var candidates []metadata.FileRecord
	for size, members := range bySize {
		if hashedSizes[size] > 0 {
			// Hashed records of this size already exist, so every member
			// is a potential duplicate of one of them.
			candidates = append(candidates, members...)
			continue
		}
		if len(members) < 2 {
			continue
		}

		// All same-size candidates are unhashed: partition by a cheap
		// first-block hash and only fully hash partitions that can match.
		quick := make(map[uint64][]metadata.FileRecord)
		for _, member := range members {
			sum, err := hasher.QuickHash(member.Path)
			if err != nil {
				summary.Warnings = append(summary.Warnings, err.Error())
				e.log.WithError(err).Warnf("quick hash failed for %s", member.Path)
				continue
			}
			quick[sum] = append(quick[sum], member)
		}
		for _, partition := range quick {
			if len(partition) >= 2 {
				candidates = append(candidates, partition...)
			}
		}
	}

	return candidates
}

// hashOne computes and commits the digest for one record, retrying once with
// fresh metadata when the file changed underneath the hash.
func (e *Engine) hashOne(ctx context.Context, record metadata.FileRecord) (ok bool, warning string) {
	for attempt := 0; attempt < 2; attempt++ {
		info, err := os.Stat(record.Path)
		if err != nil {
			return false, errors.Wrapf(err, "stat %s", record.Path).Error()
		}

		if info.Size() != record.Size || !info.ModTime().Equal(record.ModTime) {
			record.Size = info.Size()
			record.ModTime = info.ModTime()
			if _, err := e.store.Upsert(ctx, record.Path, record.Size, record.ModTime); err != nil {
				return false, err.Error()
			}
		}

		digest, err := hasher.Hash(record.Path)
		if err != nil {
			return false, err.Error()
		}

		err = e.store.RecordHash(ctx, record.Path, record.Size, record.ModTime, digest)
		if err == nil {
			return true, ""
		}
		if !errors.Is(err, metadata.ErrStale) {
			return false, err.Error()
		}
		// File changed between stat and commit; loop re-stats and retries.
	}

	return false, "gave up hashing " + record.Path + ": file kept changing"
}

func (e *Engine) buildIndex(ctx context.Context) (*Index, error) {
	index := NewIndex()
	err := e.store.ForEachHashed(ctx, func(record metadata.FileRecord) error {
		index.Add(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// consolidateAll verifies and consolidates every candidate group. Groups are
// independent; cancellation between two groups leaves finished groups
// consolidated and untouched groups unprocessed.
func (e *Engine) consolidateAll(ctx context.Context, index *Index, summary *Summary) {
	consolidator := NewConsolidator(e.opts.DryRun, e.log)
	groups := index.NonUnique()

	for _, key := range SortedKeys(groups) {
		if ctx.Err() != nil {
			summary.Warnings = append(summary.Warnings, "run cancelled: remaining groups skipped")
			return
		}

		verified, warnings := Verify(groups[key])
		summary.Warnings = append(summary.Warnings, warnings...)
		if len(verified) > 1 {
			e.log.Warnf("hash %s split into %d groups by content verification", key, len(verified))
		}

		for _, group := range verified {
			summary.GroupsFound++
			result := consolidator.Consolidate(group)
			summary.Groups = append(summary.Groups, result)

			for _, member := range result.Members {
				switch member.Outcome {
				case OutcomeLinked:
					summary.Linked++
					summary.BytesReclaimed += member.Reclaimed
				case OutcomeAlreadyLinked:
					summary.AlreadyLinked++
				case OutcomeFailed:
					summary.Failed++
					if member.Err != nil {
						summary.Warnings = append(summary.Warnings, member.Err.Error())
					}
				}
			}
		}
	}
}
