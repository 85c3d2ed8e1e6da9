// Package ledger records which server binaries have been installed into the
// cache, for inspection and cleanup. The ledger is advisory: the presence of
// the cache file, not a ledger row, decides whether a binary is usable.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// FileName is the ledger database name inside the cache directory.
const FileName = "ledger.db"

// Install is one ledger row.
type Install struct {
	Name        string
	Tag         string
	URL         string
	Path        string
	Size        int64
	SHA256      string
	InstalledAt time.Time
}

// Store is a SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory ledger.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create ledger directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping ledger: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts or replaces the row for in.Name.
func (s *Store) Record(in Install) error {
	if s.db == nil {
		return fmt.Errorf("ledger not opened")
	}
	if in.InstalledAt.IsZero() {
		in.InstalledAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO installs (name, tag, url, path, size, sha256, installed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   tag = excluded.tag,
		   url = excluded.url,
		   path = excluded.path,
		   size = excluded.size,
		   sha256 = excluded.sha256,
		   installed_at = excluded.installed_at`,
		in.Name, in.Tag, in.URL, in.Path, in.Size, in.SHA256, in.InstalledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record install %s: %w", in.Name, err)
	}
	return nil
}

// Get returns the row for name, or nil if there is none.
func (s *Store) Get(name string) (*Install, error) {
	if s.db == nil {
		return nil, fmt.Errorf("ledger not opened")
	}

	row := s.db.QueryRow(
		`SELECT name, tag, url, path, size, sha256, installed_at FROM installs WHERE name = ?`, name)
	in, err := scanInstall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get install %s: %w", name, err)
	}
	return in, nil
}

// List returns all rows ordered by name.
func (s *Store) List() ([]Install, error) {
	if s.db == nil {
		return nil, fmt.Errorf("ledger not opened")
	}

	rows, err := s.db.Query(
		`SELECT name, tag, url, path, size, sha256, installed_at FROM installs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list installs: %w", err)
	}
	defer rows.Close()

	var out []Install
	for rows.Next() {
		in, err := scanInstall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan install: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// Delete removes the row for name. Deleting a missing row is not an error.
func (s *Store) Delete(name string) error {
	if s.db == nil {
		return fmt.Errorf("ledger not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM installs WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete install %s: %w", name, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstall(row scanner) (*Install, error) {
	var in Install
	var installedAt string
	if err := row.Scan(&in.Name, &in.Tag, &in.URL, &in.Path, &in.Size, &in.SHA256, &installedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, installedAt)
	if err != nil {
		return nil, fmt.Errorf("parse installed_at %q: %w", installedAt, err)
	}
	in.InstalledAt = t
	return &in, nil
}

// OpenIn opens and migrates the ledger inside cacheDir.
func OpenIn(cacheDir string) (*Store, error) {
	s := NewStore()
	if err := s.Open(filepath.Join(cacheDir, FileName)); err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
