// Package sqlite persists decision records and expert accuracy
// history in a single SQLite database file. It backs the same ports
// as memstore for deployments that need decisions to survive process
// restarts, which is what makes outcome feedback across sessions
// possible.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ahrav/go-conclave/internal/domain"
)

// DB wraps the SQLite connection shared by the ledger and accuracy
// store adapters.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at the given path, applying any
// pending schema migrations.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ledger returns a decision ledger backed by this database.
func (db *DB) Ledger() *DecisionLedger {
	return &DecisionLedger{conn: db.conn}
}

// AccuracyStore returns an accuracy store backed by this database.
// Non-positive capacities fall back to
// domain.DefaultAccuracyWindowSize.
func (db *DB) AccuracyStore(capacity int) *AccuracyStore {
	if capacity < 1 {
		capacity = domain.DefaultAccuracyWindowSize
	}
	return &AccuracyStore{conn: db.conn, capacity: capacity}
}
