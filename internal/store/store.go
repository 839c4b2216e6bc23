// Package store persists memes, generations, agent state and embedding
// vectors in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mos/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is a SQLite-backed persistence layer. Safe for concurrent use;
// the connection pool is pinned to one connection so SQLite sees a
// single writer.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	vectorExt bool // sqlite-vec virtual table available
}

// Open initializes the database at path, creating the directory and
// schema as needed. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("opening database at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("busy_timeout pragma failed: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("journal_mode pragma failed: %v", err)
	}
	// NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("synchronous pragma failed: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	s.detectVectorExt()
	return s, nil
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS memes (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			payload    BLOB NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			fitness    REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS meme_links (
			from_id TEXT NOT NULL,
			to_id   TEXT NOT NULL,
			weight  REAL NOT NULL,
			PRIMARY KEY (from_id, to_id)
		)`,
		`CREATE TABLE IF NOT EXISTS generations (
			gen        INTEGER NOT NULL,
			population INTEGER NOT NULL,
			survivors  INTEGER NOT NULL,
			best       REAL NOT NULL,
			mean       REAL NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS agent_memes (
			name    TEXT PRIMARY KEY,
			content TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_goals (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			goal TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_thoughts (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			thought TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_log (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			event TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS strategy_stats (
			name    TEXT PRIMARY KEY,
			uses    INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			fail    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS meme_vectors (
			meme_id   TEXT PRIMARY KEY,
			model     TEXT NOT NULL,
			dims      INTEGER NOT NULL,
			embedding TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memes_kind ON memes(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_memes_fitness ON memes(fitness DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_links_from ON meme_links(from_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	logging.StoreDebug("schema initialized")
	return nil
}

// detectVectorExt probes for the sqlite-vec extension. Builds without
// the sqlite_vec tag fall back to the in-Go cosine scan.
func (s *Store) detectVectorExt() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		logging.StoreDebug("sqlite-vec not available, using in-process similarity")
		return
	}
	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_memes
		USING vec0(meme_id TEXT PRIMARY KEY, embedding FLOAT[768])`); err != nil {
		logging.StoreDebug("vec0 table creation failed: %v", err)
		return
	}
	s.vectorExt = true
	logging.Store("sqlite-vec %s enabled", version)
}

// HasVectorExt reports whether ANN queries go through sqlite-vec.
func (s *Store) HasVectorExt() bool { return s.vectorExt }

// Path returns the database path.
func (s *Store) Path() string { return s.dbPath }

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables := []string{
		"memes", "meme_links", "generations", "agent_memes",
		"agent_goals", "agent_thoughts", "agent_log",
		"strategy_stats", "meme_vectors",
	}
	out := make(map[string]int, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("store: count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.StoreDebug("closing database %s", s.dbPath)
	return s.db.Close()
}
