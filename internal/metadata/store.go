package metadata

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// ErrStale is returned by RecordHash when the file changed between the stat
// that preceded hashing and the attempt to commit the digest. The caller must
// re-stat, upsert, and hash again.
var ErrStale = errors.New("metadata: record changed since hash was computed")

// Store persists file metadata inside a SQLite database. It is the only
// component that writes persisted state; every write is a single SQL
// statement and therefore atomic.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// Hash workers write concurrently; a single connection avoids lock
	// contention between them.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, errors.Wrapf(execErr, "apply pragma %q", pragma)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS file_records (
        path TEXT PRIMARY KEY,
        size INTEGER NOT NULL,
        mod_time INTEGER NOT NULL,
        hash BLOB
);

CREATE INDEX IF NOT EXISTS idx_file_records_size ON file_records(size);
CREATE INDEX IF NOT EXISTS idx_file_records_hash ON file_records(hash);
`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "initialize schema")
	}
	return nil
}

// Upsert inserts or updates the record for path with the observed size and
// mod time. A stored digest survives only if size and mod time are unchanged;
// otherwise the same statement clears it, so a record can never pair a fresh
// size with a stale hash. The return value reports whether the path now needs
// (re)hashing before it can participate in grouping.
func (s *Store) Upsert(ctx context.Context, path string, size int64, modTime time.Time) (needsHash bool, err error) {
	path = filepath.Clean(path)

	_, err = s.db.ExecContext(ctx, `
INSERT INTO file_records(path, size, mod_time, hash)
VALUES(?, ?, ?, NULL)
ON CONFLICT(path) DO UPDATE SET
        hash=CASE
                WHEN file_records.size=excluded.size AND file_records.mod_time=excluded.mod_time
                THEN file_records.hash
                ELSE NULL
        END,
        size=excluded.size,
        mod_time=excluded.mod_time
`, path, size, modTime.UnixNano())
	if err != nil {
		return false, errors.Wrapf(err, "upsert record %s", path)
	}

	var hashed sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT hash IS NOT NULL FROM file_records WHERE path = ?`, path).Scan(&hashed)
	if err != nil {
		return false, errors.Wrapf(err, "read back record %s", path)
	}

	return hashed.Int64 == 0, nil
}

// RecordHash commits a digest for path, conditioned on the record still
// holding the size and mod time that were current when hashing started. If
// the file changed in between, no row matches, nothing is written, and
// ErrStale is returned.
func (s *Store) RecordHash(ctx context.Context, path string, size int64, modTime time.Time, hash []byte) error {
	if len(hash) == 0 {
		return errors.Errorf("refusing to record empty hash for %s", path)
	}
	path = filepath.Clean(path)

	res, err := s.db.ExecContext(ctx, `
UPDATE file_records SET hash = ?
WHERE path = ? AND size = ? AND mod_time = ?
`, hash, path, size, modTime.UnixNano())
	if err != nil {
		return errors.Wrapf(err, "record hash %s", path)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "record hash %s", path)
	}
	if affected == 0 {
		return ErrStale
	}
	return nil
}

// Lookup returns the record for a path, or ok=false when none exists.
func (s *Store) Lookup(ctx context.Context, path string) (FileRecord, bool, error) {
	path = filepath.Clean(path)

	var (
		record  FileRecord
		modTime int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT path, size, mod_time, hash FROM file_records WHERE path = ?`, path).
		Scan(&record.Path, &record.Size, &modTime, &record.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, errors.Wrapf(err, "lookup record %s", path)
	}

	record.ModTime = time.Unix(0, modTime)
	return record, true, nil
}

// Remove deletes a record by its path.
func (s *Store) Remove(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE path = ?`, path); err != nil {
		return errors.Wrapf(err, "delete record %s", path)
	}
	return nil
}

// ForEachHashed streams every record that carries a current digest, in
// lexicographic path order. The rows come from a single query, so the caller
// sees a stable snapshot even while other goroutines keep writing.
func (s *Store) ForEachHashed(ctx context.Context, fn func(FileRecord) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, mod_time, hash FROM file_records WHERE hash IS NOT NULL ORDER BY path`)
	if err != nil {
		return errors.Wrap(err, "query hashed records")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			record  FileRecord
			modTime int64
		)
		if scanErr := rows.Scan(&record.Path, &record.Size, &modTime, &record.Hash); scanErr != nil {
			return errors.Wrap(scanErr, "scan record")
		}
		record.ModTime = time.Unix(0, modTime)

		if err := fn(record); err != nil {
			return err
		}
	}

	return errors.Wrap(rows.Err(), "iterate records")
}

// Unhashed returns the records that still need a digest computed.
func (s *Store) Unhashed(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, size, mod_time FROM file_records WHERE hash IS NULL ORDER BY path`)
	if err != nil {
		return nil, errors.Wrap(err, "query unhashed records")
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var (
			record  FileRecord
			modTime int64
		)
		if scanErr := rows.Scan(&record.Path, &record.Size, &modTime); scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan record")
		}
		record.ModTime = time.Unix(0, modTime)
		records = append(records, record)
	}

	return records, errors.Wrap(rows.Err(), "iterate records")
}

// HashedSizes returns how many already-hashed records exist per file size.
// The engine uses it to decide which unhashed files can possibly have a
// duplicate among the records hashed on earlier runs.
func (s *Store) HashedSizes(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT size, COUNT(*) FROM file_records WHERE hash IS NOT NULL GROUP BY size`)
	if err != nil {
		return nil, errors.Wrap(err, "query hashed sizes")
	}
	defer rows.Close()

	sizes := make(map[int64]int)
	for rows.Next() {
		var (
			size  int64
			count int
		)
		if scanErr := rows.Scan(&size, &count); scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan size count")
		}
		sizes[size] = count
	}

	return sizes, errors.Wrap(rows.Err(), "iterate size counts")
}

// AllPaths returns every path currently known to the store, hashed or not.
// Used by the engine to sweep records whose files no longer exist.
func (s *Store) AllPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM file_records ORDER BY path`)
	if err != nil {
		return nil, errors.Wrap(err, "query paths")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if scanErr := rows.Scan(&path); scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan path")
		}
		paths = append(paths, path)
	}

	return paths, errors.Wrap(rows.Err(), "iterate paths")
}
