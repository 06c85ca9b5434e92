// Package store is the server-side note store: an embedded SQLite database
// with an FTS5 index over titles and content.
//
// The database runs in WAL mode so the API server can serve reads while a
// sync write is in progress. The default driver is ncruces/go-sqlite3 (pure
// Go, wasm-backed); building with the libsql tag swaps in go-libsql.
//
// Architecture:
//   - Database file: notesync.db (server.db in config)
//   - Schema: notes table, notes_fts external-content index kept in step by triggers
//   - Timestamps: RFC 3339 text in UTC
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/note"
)

// ErrNotFound is returned when no note has the requested id.
var ErrNotFound = errors.New("note not found")

// driverName is the database/sql driver used by Open.
var driverName = "sqlite3"

// DB wraps the database connection with note-specific queries.
type DB struct {
	conn   *sql.DB
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// Open creates a database connection at path, creating the file and its
// parent directory if needed. The caller must call Close.
//
// Example:
//
//	db, err := store.Open("notesync.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open(driverName, fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetLogger sets the logger for maintenance warnings. nil restores the no-op
// logger.
func (db *DB) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db.logger = logger.Named("store")
}

// RawDB returns the underlying connection pool.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("failed to checkpoint WAL", zap.String("path", db.path), zap.Error(err))
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the notes table and search index. It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
		title, content,
		content='notes', content_rowid='id'
	);

	CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
		INSERT INTO notes_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE ON notes BEGIN
		INSERT INTO notes_fts(notes_fts, rowid, title, content) VALUES ('delete', old.id, old.title, old.content);
		INSERT INTO notes_fts(rowid, title, content) VALUES (new.id, new.title, new.content);
	END;
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// List returns every note ordered by id.
func (db *DB) List(ctx context.Context) ([]note.Note, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, content, updated_at FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []note.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

// GetByID returns the note with the given id, or ErrNotFound.
func (db *DB) GetByID(ctx context.Context, id note.ID) (*note.Note, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, title, content, updated_at FROM notes WHERE id = ?`, id)

	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a note and returns its new id. n.ID is ignored.
func (db *DB) Create(ctx context.Context, n note.Note) (note.ID, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO notes (title, content, updated_at) VALUES (?, ?, ?)`,
		n.Title, n.Content, db.now().Format(time.RFC3339Nano))
	if err != nil {
		return note.NoID, fmt.Errorf("failed to create note: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return note.NoID, fmt.Errorf("failed to read new note id: %w", err)
	}
	return note.ID(id), nil
}

// Update overwrites title and content of an existing note and stamps
// updated_at. It returns ErrNotFound if the note does not exist.
func (db *DB) Update(ctx context.Context, n note.Note) (note.ID, error) {
	if err := n.Validate(); err != nil {
		return note.NoID, err
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, db.now().Format(time.RFC3339Nano), n.ID)
	if err != nil {
		return note.NoID, fmt.Errorf("failed to update note %d: %w", n.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return note.NoID, fmt.Errorf("failed to update note %d: %w", n.ID, err)
	}
	if affected == 0 {
		return note.NoID, ErrNotFound
	}
	return n.ID, nil
}

// Delete removes a note and reports whether it existed.
func (db *DB) Delete(ctx context.Context, n note.Note) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, n.ID)
	if err != nil {
		return false, fmt.Errorf("failed to delete note %d: %w", n.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete note %d: %w", n.ID, err)
	}
	return affected > 0, nil
}

// Count returns the number of stored notes.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

// Search runs a prefix match of every word in query against titles and
// content. Results are ordered best match first; each carries highlighted
// title and content snippets with matches wrapped in <b></b>.
func (db *DB) Search(ctx context.Context, query string) (*note.SearchResult, error) {
	res := &note.SearchResult{
		Notes:      []note.Note{},
		Highlights: map[note.ID]note.Highlight{},
	}

	match := ftsQuery(query)
	if match == "" {
		return res, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.id, n.title, n.content, n.updated_at,
		       highlight(notes_fts, 0, '<b>', '</b>'),
		       snippet(notes_fts, 1, '<b>', '</b>', '...', 16),
		       bm25(notes_fts)
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY bm25(notes_fts)
	`, match)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			n         note.Note
			updatedAt string
			h         note.Highlight
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &updatedAt,
			&h.TitleHighlight, &h.ContentHighlight, &h.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("invalid updated_at for note %d: %w", n.ID, err)
		}
		res.Notes = append(res.Notes, n)
		res.Highlights[n.ID] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return res, nil
}

// ftsQuery turns free text into an FTS5 query: every word becomes a quoted
// prefix term, so user input never reaches the FTS5 query parser as syntax.
// Words without a letter or digit would tokenize to nothing and are dropped.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if strings.IndexFunc(w, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(s scanner) (*note.Note, error) {
	var (
		n         note.Note
		updatedAt string
	)
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at for note %d: %w", n.ID, err)
	}
	n.UpdatedAt = t
	return &n, nil
}
