package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragmas are applied to every connection the store opens.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migrations upgrade a database from user_version i to i+1. The base
// schema in schema.sql is version 0.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS idx_rows_collection_ord ON rows(collection, ord)`,
	// Row ids are never reused, so a stale external batch cannot address
	// a row created after its target was deleted.
	`CREATE TABLE IF NOT EXISTS row_ids (
		collection TEXT PRIMARY KEY,
		last_id    INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO row_ids (collection, last_id)
		SELECT collection, MAX(id) FROM rows GROUP BY collection;`,
}

func schemaVersion() int { return len(migrations) }

// Store provides durable storage for collections and connections.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu        sync.RWMutex
	publisher Publisher
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets the receiver of committed change batches.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithClock overrides the wall clock used for connection timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens the SQLite database at path, creating it when missing, and
// brings its schema up to date. Opening an existing database is safe.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite serialises writers anyway, and ":memory:"
	// databases live exactly as long as their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p.name + " = " + p.value); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return migrate(db)
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for health checks. Writes made through
// it are not published.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetPublisher replaces the receiver of committed change batches.
// Safe to call while the store is in use.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

func (s *Store) publish(b Batch) {
	if len(b.Changes) == 0 {
		return
	}
	s.mu.RLock()
	p := s.publisher
	s.mu.RUnlock()
	if p != nil {
		p.Publish(b)
	}
}

// Update runs fn inside a write transaction. The transaction commits when
// fn returns nil and rolls back on any error or panic. Recorded changes
// are published, tagged with origin, only after the commit succeeds.
func (s *Store) Update(ctx context.Context, origin Origin, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		return &TxError{Op: "apply", Err: err}
	}

	if err := sqlTx.Commit(); err != nil {
		return &TxError{Op: "commit", Err: err}
	}

	s.publish(Batch{Origin: origin, Changes: tx.changes})
	return nil
}

// View runs fn inside a transaction that is always rolled back. Use it
// for reads that must observe one consistent snapshot.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback()

	return fn(&Tx{ctx: ctx, tx: sqlTx, readOnly: true})
}
