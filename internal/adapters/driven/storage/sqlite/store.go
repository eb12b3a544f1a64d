package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/fraktag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/fraktag/internal/core/domain"
	"github.com/custodia-labs/fraktag/internal/core/ports/driven"
	"github.com/custodia-labs/fraktag/internal/logger"
)

// Store is a SQLite database holding every record of the application in a
// single table, exposed through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.fraktag/data/fraktag.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".fraktag", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fraktag.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Storage returns a driven.Storage backed by the records table.
func (s *Store) Storage() driven.Storage {
	return &recordStore{store: s}
}

type migration struct {
	version int
	name    string
}

// pending lists the *.up.sql files in fsys newer than applied, oldest first.
// File names start with a zero-padded version, as in 001_records.up.sql.
func pending(fsys fs.FS, applied int) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= applied {
			continue
		}
		out = append(out, migration{version: version, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrate applies pending migrations, each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var applied int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&applied); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	todo, err := pending(fsys, applied)
	if err != nil {
		return err
	}
	for _, m := range todo {
		script, err := fs.ReadFile(fsys, m.name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", m.name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", m.name, err)
		}
		logger.Debug("Applied migration %s", m.name)
	}
	return nil
}

// ==================== Record Store ====================

// recordStore implements driven.Storage.
type recordStore struct {
	store *Store
}

var _ driven.Storage = (*recordStore)(nil)

func failure(op, path string, err error) error {
	return fmt.Errorf("%s %s: %w", op, path, errors.Join(domain.ErrStorageFailure, err))
}

// Read retrieves a record by path.
func (r *recordStore) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := r.store.db.QueryRowContext(ctx, `SELECT data FROM records WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	}
	if err != nil {
		return nil, failure("read", path, err)
	}
	return data, nil
}

// Write stores or replaces a record.
func (r *recordStore) Write(ctx context.Context, path string, data []byte) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO records (path, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, path, data, time.Now().UTC())
	if err != nil {
		return failure("write", path, err)
	}
	return nil
}

// Delete removes a record if present.
func (r *recordStore) Delete(ctx context.Context, path string) error {
	if _, err := r.store.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path); err != nil {
		return failure("delete", path, err)
	}
	return nil
}

// List returns every record path with the given prefix, sorted.
func (r *recordStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT path FROM records
		WHERE substr(path, 1, ?) = ?
		ORDER BY path
	`, len(prefix), prefix)
	if err != nil {
		return nil, failure("list", prefix, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, failure("list", prefix, err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list", prefix, err)
	}
	return paths, nil
}

// Exists reports whether a record exists.
func (r *recordStore) Exists(ctx context.Context, path string) (bool, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE path = ?`, path).Scan(&n)
	if err != nil {
		return false, failure("exists", path, err)
	}
	return n > 0, nil
}
