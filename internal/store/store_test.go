package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notesync/notesync/internal/note"
)

// openTestDB returns an initialized database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.InitSchema(context.Background()), "InitSchema() failed")
	return db
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "notes.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
}

func TestClose_LogsCheckpointFailure(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	db.SetLogger(zap.New(core))

	// a pool closed underneath the store makes the checkpoint fail
	require.NoError(t, db.RawDB().Close())
	require.NoError(t, db.Close())

	entries := logs.FilterMessage("failed to checkpoint WAL").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].LoggerName)
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.InitSchema(context.Background()))

	for _, name := range []string{"notes", "notes_fts"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", name)
	}
}

func TestCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	id, err := db.Create(ctx, note.Note{Title: "", Content: ""})
	require.NoError(t, err)
	assert.Equal(t, note.ID(1), id)

	n, err := db.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "", n.Title)
	assert.Equal(t, fixed, n.UpdatedAt)

	later := fixed.Add(time.Minute)
	db.now = func() time.Time { return later }

	got, err := db.Update(ctx, note.Note{ID: id, Title: "A", Content: "xy"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	n, err = db.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", n.Title)
	assert.Equal(t, "xy", n.Content)
	assert.Equal(t, later, n.UpdatedAt)

	count, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, err := db.Delete(ctx, *n)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.Delete(ctx, *n)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_Errors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Update(ctx, note.Note{ID: 99, Title: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.Update(ctx, note.Note{ID: 0, Title: "no id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid note")

	_, err = db.Update(ctx, note.Note{ID: 1, Title: strings.Repeat("t", 501)})
	require.Error(t, err)
}

func TestList_Order(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	empty, err := db.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, title := range []string{"one", "two", "three"} {
		_, err := db.Create(ctx, note.Note{Title: title})
		require.NoError(t, err)
	}

	notes, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "one", notes[0].Title)
	assert.Equal(t, "three", notes[2].Title)
}

func TestSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	groceries, err := db.Create(ctx, note.Note{Title: "Groceries", Content: "milk eggs bread"})
	require.NoError(t, err)
	_, err = db.Create(ctx, note.Note{Title: "Meeting", Content: "discuss the sync engine"})
	require.NoError(t, err)

	res, err := db.Search(ctx, "egg")
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, groceries, res.Notes[0].ID)

	h, ok := res.Highlights[groceries]
	require.True(t, ok)
	assert.Contains(t, h.ContentHighlight, "<b>eggs</b>")
	assert.Equal(t, "Groceries", h.TitleHighlight)

	// title matches are highlighted too
	res, err = db.Search(ctx, "meet")
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Equal(t, "<b>Meeting</b>", res.Highlights[res.Notes[0].ID].TitleHighlight)
}

func TestSearch_TracksUpdatesAndDeletes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.Create(ctx, note.Note{Title: "draft", Content: "alpha"})
	require.NoError(t, err)

	_, err = db.Update(ctx, note.Note{ID: id, Title: "draft", Content: "beta"})
	require.NoError(t, err)

	res, err := db.Search(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, res.Notes, "index still holds the old content")

	res, err = db.Search(ctx, "beta")
	require.NoError(t, err)
	assert.Len(t, res.Notes, 1)

	_, err = db.Delete(ctx, note.Note{ID: id})
	require.NoError(t, err)

	res, err = db.Search(ctx, "beta")
	require.NoError(t, err)
	assert.Empty(t, res.Notes)
}

func TestSearch_QuerySyntaxIsLiteral(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Create(ctx, note.Note{Title: "t", Content: `say "hello" AND NOT bye`})
	require.NoError(t, err)

	for _, q := range []string{`"hello`, `NOT`, `hello AND`, `(`, "   "} {
		_, err := db.Search(ctx, q)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"milk", `"milk"*`},
		{"milk  eggs", `"milk"* "eggs"*`},
		{`say "hi"`, `"say"* """hi"""*`},
		{"( -- )", ""},
	}

	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
