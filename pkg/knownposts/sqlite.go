package knownposts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
)

// SQLiteStore keeps identifiers in a single SQLite table. Rows are ordered
// by an autoincrement sequence so commit order survives reloads.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger

	index *Index
	staging
}

// OpenSQLite opens (or creates) the database at path and loads every
// identifier into memory.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open known posts database: %w", err)
	}
	db.SetMaxOpenConns(1)

	index := NewIndex()
	s := &SQLiteStore{
		db:      db,
		path:    path,
		logger:  log.WithField("component", "knownposts"),
		index:   index,
		staging: newStaging(index),
	}

	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.DebugWithFields("Known posts loaded", map[string]interface{}{
		"path":        path,
		"identifiers": s.index.Len(),
	})
	return s, nil
}

func (s *SQLiteStore) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS known_posts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL UNIQUE,
		committed_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to initialize known posts schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query("SELECT seq, post_id FROM known_posts ORDER BY seq")
	if err != nil {
		return &likeerrors.CorruptShardError{Path: s.path, Reason: err.Error()}
	}
	defer rows.Close()

	for rows.Next() {
		var seq int
		var id string
		if err := rows.Scan(&seq, &id); err != nil {
			return &likeerrors.CorruptShardError{Path: s.path, Reason: err.Error()}
		}
		if err := validID(id); err != nil {
			return &likeerrors.CorruptShardError{Path: s.path, Line: seq, Reason: err.Error()}
		}
		s.index.Add(id)
	}
	if err := rows.Err(); err != nil {
		return &likeerrors.CorruptShardError{Path: s.path, Reason: err.Error()}
	}
	return nil
}

func (s *SQLiteStore) Contains(id string) bool { return s.contains(id) }
func (s *SQLiteStore) Stage(id string) bool    { return s.stage(id) }
func (s *SQLiteStore) Pending() int            { return len(s.pending) }
func (s *SQLiteStore) Len() int                { return s.index.Len() }

// Commit inserts the staged identifiers in one transaction
func (s *SQLiteStore) Commit() (int, error) {
	if len(s.pending) == 0 {
		return 0, nil
	}

	fail := func(op string, err error) (int, error) {
		return 0, &likeerrors.PersistWriteError{Path: s.path, Op: op, Err: err}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fail("begin", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO known_posts (post_id, committed_at) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fail("prepare", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range s.pending {
		if _, err := stmt.Exec(id, now); err != nil {
			tx.Rollback()
			return fail("insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	written := len(s.pending)
	s.promote()
	return written, nil
}

func (s *SQLiteStore) Identifiers() ([]string, error) {
	return s.query("SELECT post_id FROM known_posts ORDER BY seq")
}

func (s *SQLiteStore) Recent(limit int) ([]string, error) {
	if limit <= 0 {
		return s.query("SELECT post_id FROM known_posts ORDER BY seq DESC")
	}
	return s.query("SELECT post_id FROM known_posts ORDER BY seq DESC LIMIT ?", limit)
}

func (s *SQLiteStore) query(q string, args ...interface{}) ([]string, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query known posts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, s.index.Len())
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ShardCount is 1 once the table holds an identifier; the database is a
// single shard.
func (s *SQLiteStore) ShardCount() int {
	if s.index.Len() == 0 {
		return 0
	}
	return 1
}

func (s *SQLiteStore) Stats() Stats {
	stats := Stats{Backend: "sqlite", Identifiers: s.index.Len()}
	if s.index.Len() > 0 {
		stats.Shards = []ShardStat{{File: filepath.Base(s.path), Count: s.index.Len()}}
	}
	return stats
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
