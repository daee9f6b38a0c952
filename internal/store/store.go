// Package store provides the SQLite metadata index of scanned .emlx files.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql schema_sqlite.sql
var schemaFS embed.FS

// Store is an open index database.
type Store struct {
	db            *sql.DB
	dbPath        string
	fts5Available bool // Whether FTS5 is available for full-text search
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing
// substr. Handles both value (sqlite3.Error) and pointer (*sqlite3.Error)
// forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Open opens or creates the database at dbPath, creating its directory.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// FTS5Available reports whether Search uses the full-text index.
func (s *Store) FTS5Available() bool {
	return s.fts5Available
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InitSchema creates the tables if they don't exist. The FTS5 index is
// optional: builds of go-sqlite3 without the sqlite_fts5 tag skip it.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}

	sqliteSchema, err := schemaFS.ReadFile("schema_sqlite.sql")
	if err != nil {
		return fmt.Errorf("read schema_sqlite.sql: %w", err)
	}
	if _, err := s.db.Exec(string(sqliteSchema)); err != nil {
		if !isSQLiteError(err, "no such module: fts5") {
			return fmt.Errorf("init fts5 schema: %w", err)
		}
		s.fts5Available = false
	} else {
		s.fts5Available = true
	}
	return nil
}

// Stats holds index statistics.
type Stats struct {
	MailboxCount int64
	MessageCount int64
	UnreadCount  int64
	FlaggedCount int64
	JunkCount    int64
	MIMEBytes    int64
	DatabaseSize int64
}

// Stats returns statistics about the index. Missing tables count as empty.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM mailboxes", &stats.MailboxCount},
		{"SELECT COUNT(*) FROM messages", &stats.MessageCount},
		{"SELECT COUNT(*) FROM messages WHERE NOT is_read", &stats.UnreadCount},
		{"SELECT COUNT(*) FROM messages WHERE is_flagged", &stats.FlaggedCount},
		{"SELECT COUNT(*) FROM messages WHERE is_junk", &stats.JunkCount},
		{"SELECT COALESCE(SUM(byte_count), 0) FROM messages", &stats.MIMEBytes},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}
