// Package dbopen opens the SQLite databases passerelle keeps locally (the
// audit trail) with write-ahead logging and the pragmas the trail needs
// applied up front, via EXEC so any driver works.
//
// The driver is modernc.org/sqlite, blank-imported by the caller:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("db/audit.db", dbopen.WithMkdirAll())
//
// Tests use OpenMemory, which pins the pool to a single connection so
// every query sees the same in-memory database.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Option customises Open behaviour.
type Option func(*settings)

type settings struct {
	foreignKeys bool
	synchronous string
	busyTimeout int
	cacheSize   int
	mkdirAll    bool
	ping        bool
	schemas     []string
}

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default 10000.
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeout = ms } }

// WithCacheSize sets PRAGMA cache_size. Zero keeps the SQLite default;
// negative values are KiB (-64000 is 64 MB).
func WithCacheSize(pages int) Option { return func(s *settings) { s.cacheSize = pages } }

// WithSynchronous sets PRAGMA synchronous. Default "NORMAL", which is safe
// under WAL.
func WithSynchronous(mode string) Option { return func(s *settings) { s.synchronous = mode } }

// WithMkdirAll creates missing parent directories of the database path.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithSchema queues SQL to execute once the pragmas are in place. May be
// given more than once; statements run in order.
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// WithoutPing skips the connectivity check after opening.
func WithoutPing() Option { return func(s *settings) { s.ping = false } }

// WithoutForeignKeys leaves PRAGMA foreign_keys off.
func WithoutForeignKeys() Option { return func(s *settings) { s.foreignKeys = false } }

// Open opens the SQLite database at path, applies the pragmas, executes
// any queued schema statements and verifies the connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{
		foreignKeys: true,
		synchronous: "NORMAL",
		busyTimeout: 10_000,
		ping:        true,
	}
	for _, o := range opts {
		o(&s)
	}

	if s.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	if err := s.apply(db); err != nil {
		db.Close()
		return nil, err
	}
	if s.ping {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: ping: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests, capped at one
// connection (each ":memory:" connection is otherwise its own database),
// and closes it on cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func (s *settings) apply(db *sql.DB) error {
	fk := "OFF"
	if s.foreignKeys {
		fk = "ON"
	}
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = " + fk,
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout),
		"PRAGMA synchronous = " + s.synchronous,
	}
	if s.cacheSize != 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA cache_size = %d", s.cacheSize))
	}
	for _, ddl := range s.schemas {
		stmts = append(stmts, ddl)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("dbopen: %s: %w", stmt, err)
		}
	}
	return nil
}
