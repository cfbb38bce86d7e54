// Package dbopen opens SQLite databases through modernc.org/sqlite with
// the pragmas a small append-mostly journal wants. Pragmas travel in the
// DSN, so every pooled connection gets them, not just the first.
//
//	db, err := dbopen.Open("state/outcomes.db", dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Driver is the database/sql driver name registered by modernc.org/sqlite.
const Driver = "sqlite"

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

type config struct {
	busyTimeoutMs int
	synchronous   string
	mkdirAll      bool
	schemas       []string
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets busy_timeout in milliseconds. Default 5000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeoutMs = ms } }

// WithSynchronous sets the synchronous pragma. Default NORMAL.
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema runs s once the database is open. Repeatable.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// DSN builds the modernc connection string for path.
func DSN(path string, opts ...Option) string {
	c := build(opts)
	return dsn(path, &c)
}

func build(opts []Option) config {
	c := config{busyTimeoutMs: 5000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&c)
	}
	return c
}

func dsn(path string, c *config) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(wal)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.busyTimeoutMs))
	q.Add("_pragma", "synchronous("+c.synchronous+")")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path, applies the
// schemas and pings it.
func Open(path string, opts ...Option) (*sql.DB, error) {
	c := build(opts)

	if c.mkdirAll && path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(Driver, dsn(path, &c))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if path == Memory {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	for _, s := range c.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed at the end of the test.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(Memory, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
