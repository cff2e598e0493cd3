// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain. The database is a single file (or ":memory:" in tests).
//
// SCHEMA:
//
//	owners      one row per owner partition ever referenced
//	categories  (owner_ref, key) unique, ordered by position
//	items       one row per item, owner_ref indexed
//	users       registered accounts, email unique
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/home-manager/internal/apperror"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DefaultCategories seed a freshly created owner partition unless
// WithDefaultCategories overrides them.
var DefaultCategories = []string{"grocery", "kitchen", "bathroom", "household", "future-needs"}

// DB wraps a sql.DB connection pool and provides repository methods.
// It implements both repository.RecordStore and repository.UserRepository.
type DB struct {
	conn     *sql.DB
	defaults []string
}

// Option configures a DB at construction time.
type Option func(*DB)

// WithDefaultCategories sets the category keys seeded into every new owner
// partition. Keys are stored as given; callers normalize them.
func WithDefaultCategories(keys []string) Option {
	return func(db *DB) {
		db.defaults = append([]string(nil), keys...)
	}
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/home-manager.db" → file-based database (persistent)
//   - ":memory:"             → in-memory database, gone on Close
//
// The pool is capped at one connection. Every partition update is a
// read-modify-write transaction, and a single connection both serializes
// them and keeps ":memory:" databases from splitting across connections.
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn, defaults: DefaultCategories}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return apperror.StorageUnavailable("pinging database", err)
	}
	return nil
}

// migrate creates or upgrades the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS owners (
			owner_ref  TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS categories (
			owner_ref TEXT NOT NULL REFERENCES owners(owner_ref),
			position  INTEGER NOT NULL,
			key       TEXT NOT NULL,
			PRIMARY KEY (owner_ref, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating owners/categories tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id          TEXT PRIMARY KEY,
			owner_ref   TEXT NOT NULL REFERENCES owners(owner_ref),
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_items_owner_ref ON items(owner_ref);
	`)
	if err != nil {
		return fmt.Errorf("creating items table: %w", err)
	}

	// Phase 2: quantity, added after the first release.
	if err := db.addColumnIfNotExists("items", "quantity",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding quantity to items: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			provider      TEXT NOT NULL DEFAULT 'password',
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
