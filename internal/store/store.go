// Package store provides the durable state for vouchd backed by SQLite:
// the handle registry, the spent-nonce ledger, rotation cooldown markers,
// rotation history, and the accepted-message inbox. The nonce ledger and
// cooldown markers are written with SQLite's native conditional-write
// primitives (ON CONFLICT clauses) so concurrent requests cannot race a
// read-then-write window.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile    = "vouchd.db"
	maxBusyTimeoutMs = 5000
)

var (
	// ErrIdentityNotFound is returned when a handle has no registration.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrHandleTaken is returned when registering an already-claimed handle.
	ErrHandleTaken = errors.New("handle already registered")
	// ErrCooldownActive is returned when a rotation lands inside the cooldown
	// window; the conditional write that detects it is the authoritative
	// guard against concurrent double-rotation.
	ErrCooldownActive = errors.New("rotation cooldown active")
	// ErrStaleKey is returned when a rotation's old key no longer matches the
	// identity's active signing key.
	ErrStaleKey = errors.New("active signing key changed")
)

// Store manages vouchd's durable state in a SQLite database file.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	file string
}

// NewStore opens (creating if needed) the database at filePath and ensures
// the schema exists.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &Store{file: absPath}

	if err := s.openDB(); err != nil {
		return nil, err
	}

	if err := s.ensureSchema(); err != nil {
		_ = s.closeDB()
		return nil, err
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", filepath.Clean(s.file))

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			handle_lower TEXT PRIMARY KEY,
			handle TEXT NOT NULL,
			signing_key TEXT NOT NULL,
			recovery_key TEXT,
			rotations INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nonces (
			handle_lower TEXT NOT NULL,
			nonce TEXT NOT NULL,
			first_seen TEXT NOT NULL,
			PRIMARY KEY (handle_lower, nonce)
		)`,
		`CREATE TABLE IF NOT EXISTS rotation_limits (
			handle_lower TEXT PRIMARY KEY,
			last_allowed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rotation_history (
			id TEXT PRIMARY KEY,
			handle_lower TEXT NOT NULL,
			old_key TEXT NOT NULL,
			new_key TEXT NOT NULL,
			rotated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rotation_history_handle
			ON rotation_history(handle_lower, rotated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			body TEXT NOT NULL,
			signed INTEGER NOT NULL,
			received_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nonces_first_seen
			ON nonces(first_seen)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}

func handleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	return time.Time{}
}
