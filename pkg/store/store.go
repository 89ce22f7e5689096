// Package store provides the SQLite persistence layer for sessions, memory
// events, semantic chunks, the entity/relation graph and user profiles.
//
// The store owns schema migration (forward-only, tracked in schema_version),
// a lexical FTS5 index over event and chunk text, and a sqlite-vec vec0
// index used as the dense candidate generator for retrieval. Embeddings are
// persisted as raw little-endian float32 blobs of the embedder's dimension.
//
// Builds require the sqlite_fts5 build tag so the mattn/go-sqlite3
// amalgamation ships the FTS5 module.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Config holds configuration for opening a store.
type Config struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string

	// Dimensions is the embedding dimension; every persisted embedding
	// must have exactly this length.
	Dimensions int

	// MaxConnections bounds the database/sql pool. Defaults to 10.
	MaxConnections int

	// ConnectTimeout bounds the initial open + migration. Defaults to 5s.
	ConnectTimeout time.Duration

	// EnableWAL switches the journal to write-ahead logging. Default true
	// at the config layer; here the zero value means off so tests can use
	// plain journaling on :memory: databases.
	EnableWAL bool

	// AutoMigrate applies forward migrations at open. When false, a schema
	// behind the current version is refused.
	AutoMigrate bool
}

// Store is the transactional persistence handle shared by the runtime.
type Store struct {
	db     *sql.DB
	dim    int
	logger *zap.Logger
}

// schemaMigrations are applied in order; schema_version records how many
// have run. Forward-only: a database created by a newer binary is refused.
var schemaMigrations = []string{
	// v1: core tables.
	`CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		user TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE memory_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		importance INTEGER NOT NULL DEFAULT 5,
		embedding_blob BLOB NOT NULL,
		keywords_json TEXT
	);
	CREATE INDEX idx_memory_events_session ON memory_events(session_id, created_at, id);
	CREATE TABLE semantic_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		text TEXT NOT NULL,
		summary TEXT NOT NULL,
		first_event_id INTEGER NOT NULL,
		last_event_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		importance INTEGER NOT NULL DEFAULT 5,
		embedding_blob BLOB NOT NULL
	);
	CREATE INDEX idx_semantic_chunks_session ON semantic_chunks(session_id, first_event_id);
	CREATE TABLE entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		first_seen INTEGER NOT NULL,
		mention_count INTEGER NOT NULL DEFAULT 1,
		UNIQUE(session_id, name)
	);
	CREATE TABLE edges (
		source_id INTEGER NOT NULL REFERENCES entities(id),
		relation TEXT NOT NULL,
		target_id INTEGER NOT NULL REFERENCES entities(id),
		weight REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, relation, target_id)
	);
	CREATE TABLE profile (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		importance INTEGER NOT NULL DEFAULT 5,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, key)
	);`,

	// v2: lexical index over event and chunk text. Standalone FTS5 table
	// keyed by (kind, ref_id) so one index covers both sources.
	`CREATE VIRTUAL TABLE memory_fts USING fts5(
		text,
		kind UNINDEXED,
		ref_id UNINDEXED,
		session_id UNINDEXED
	);`,
}

// Open opens (creating if necessary) the store at cfg.Path and migrates the
// schema forward. The sqlite-vec candidate index is created outside the
// versioned migrations because its column width depends on cfg.Dimensions.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fault.New(fault.KindStoreFailed, "store path is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fault.New(fault.KindStoreFailed, "embedding dimensions must be configured")
	}

	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fault.Wrap(fault.KindStoreFailed, err, "opening database %s", cfg.Path)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	if cfg.Path == ":memory:" {
		// A pooled :memory: database is one database per connection;
		// clamp to a single connection so all callers share state.
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fault.Wrap(fault.KindStoreFailed, err, "enabling foreign keys")
	}
	if cfg.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fault.Wrap(fault.KindStoreFailed, err, "enabling WAL")
		}
	}

	s := &Store{db: db, dim: cfg.Dimensions, logger: logger}

	if err := s.migrate(ctx, cfg.AutoMigrate); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.ensureVecIndex(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("store opened",
		zap.String("path", cfg.Path),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("schema_version", len(schemaMigrations)),
	)

	return s, nil
}

// Dim returns the configured embedding dimension.
func (s *Store) Dim() int { return s.dim }

// DB exposes the underlying handle for inspection. Escape hatch only.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context, autoMigrate bool) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "creating schema_version")
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&version)
	switch err {
	case nil:
	case sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "seeding schema_version")
		}
	default:
		return fault.Wrap(fault.KindStoreFailed, err, "reading schema_version")
	}

	if version > len(schemaMigrations) {
		return fault.New(fault.KindSchemaIncompatible,
			"database schema version %d is newer than supported %d", version, len(schemaMigrations))
	}
	if version < len(schemaMigrations) && !autoMigrate {
		return fault.New(fault.KindSchemaIncompatible,
			"database schema version %d is behind %d and auto-migration is disabled", version, len(schemaMigrations))
	}

	for v := version; v < len(schemaMigrations); v++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "beginning migration %d", v+1)
		}
		if _, err := tx.ExecContext(ctx, schemaMigrations[v]); err != nil {
			tx.Rollback()
			return fault.Wrap(fault.KindStoreFailed, err, "applying migration %d", v+1)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, v+1); err != nil {
			tx.Rollback()
			return fault.Wrap(fault.KindStoreFailed, err, "recording migration %d", v+1)
		}
		if err := tx.Commit(); err != nil {
			return fault.Wrap(fault.KindStoreFailed, err, "committing migration %d", v+1)
		}
		s.logger.Debug("schema migration applied", zap.Int("version", v+1))
	}
	return nil
}

// ensureVecIndex creates the vec0 candidate table and its rowid mapping.
// vec0 virtual tables use integer rowids, so vec_map bridges them to
// (kind, ref_id) pairs pointing at events and chunks.
func (s *Store) ensureVecIndex(ctx context.Context) error {
	var vecVersion string
	if err := s.db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "sqlite-vec not available")
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vec_map (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			ref_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			UNIQUE(kind, ref_id)
		)`); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "creating vec_map")
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(embedding float[%d])`, s.dim)
	if _, err := s.db.ExecContext(ctx, createVec); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "creating vec0 table")
	}

	s.logger.Debug("vector index ready", zap.String("vec_version", vecVersion))
	return nil
}

// withTx runs fn inside one transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.KindStoreFailed, err, "committing transaction")
	}
	return nil
}

func nowUnix() int64 { return time.Now().Unix() }
