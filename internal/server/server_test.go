package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/remote"
	"github.com/notesync/notesync/internal/store"
)

// countingBackend counts Search calls that reach the store.
type countingBackend struct {
	*store.DB
	searches atomic.Int32
}

func (b *countingBackend) Search(ctx context.Context, query string) (*note.SearchResult, error) {
	b.searches.Add(1)
	return b.DB.Search(ctx, query)
}

func setupServer(t *testing.T) (*countingBackend, *remote.Client, *httptest.Server) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))

	backend := &countingBackend{DB: db}
	srv, err := New(backend, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := remote.NewClient(remote.ClientConfig{BaseURL: ts.URL})
	require.NoError(t, err)

	return backend, client, ts
}

func TestNew_NilBackend(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be nil")
}

func TestAPI_ClientRoundTrip(t *testing.T) {
	_, c, _ := setupServer(t)
	ctx := context.Background()

	id, err := c.Create(ctx, note.Note{})
	require.NoError(t, err)

	_, err = c.Update(ctx, note.Note{ID: id, Title: "A", Content: "xy"})
	require.NoError(t, err)

	n, err := c.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", n.Title)
	assert.Equal(t, "xy", n.Content)
	assert.False(t, n.UpdatedAt.IsZero())

	notes, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	ok, err := c.Delete(ctx, *n)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.GetByID(ctx, id)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestAPI_UpdateUnknownNote(t *testing.T) {
	_, c, _ := setupServer(t)

	_, err := c.Update(context.Background(), note.Note{ID: 404, Title: "gone"})
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestAPI_BadRequests(t *testing.T) {
	_, _, ts := setupServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"non-numeric id", http.MethodGet, "/notes/abc", "", http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/notes/update", "{", http.StatusBadRequest},
		{"invalid note", http.MethodPost, "/notes/update", `{"id":0,"title":"x"}`, http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/notes", "", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/notes/update", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestAPI_SearchCache(t *testing.T) {
	backend, c, _ := setupServer(t)
	ctx := context.Background()

	id, err := c.Create(ctx, note.Note{Title: "list", Content: "milk"})
	require.NoError(t, err)

	res, err := c.Search(ctx, "milk")
	require.NoError(t, err)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Highlights[id].ContentHighlight, "<b>milk</b>")

	_, err = c.Search(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.searches.Load(), "second search should be served from cache")

	// a write must not leave a stale cached result behind
	_, err = c.Update(ctx, note.Note{ID: id, Title: "list", Content: "bread"})
	require.NoError(t, err)

	res, err = c.Search(ctx, "milk")
	require.NoError(t, err)
	assert.Empty(t, res.Notes)
	assert.Equal(t, int32(2), backend.searches.Load())
}

// gatedBackend holds Search open until release is closed, after signalling
// that the store has been read.
type gatedBackend struct {
	*store.DB
	read    chan struct{}
	release chan struct{}
}

func (b *gatedBackend) Search(ctx context.Context, query string) (*note.SearchResult, error) {
	res, err := b.DB.Search(ctx, query)
	close(b.read)
	<-b.release
	return res, err
}

func TestAPI_SearchOverlappingWriteNotCached(t *testing.T) {
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(ctx))

	backend := &gatedBackend{DB: db, read: make(chan struct{}), release: make(chan struct{})}
	srv, err := New(backend, nil)
	require.NoError(t, err)

	id, err := db.Create(ctx, note.Note{Title: "alpha"})
	require.NoError(t, err)

	// a search reads the store, then stalls before caching
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?query=alpha", nil))
		done <- rec
	}()
	<-backend.read

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"id":` + strconv.FormatInt(int64(id), 10) + `,"title":"beta","content":""}`)
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notes/update", body))
	require.Equal(t, http.StatusOK, rec.Code)

	close(backend.release)
	stale := <-done
	require.Equal(t, http.StatusOK, stale.Code)
	assert.Contains(t, stale.Body.String(), "alpha")

	_, found := srv.search.Get("alpha")
	assert.False(t, found, "result read before the write must not be cached")
}

func TestServer_StartStop(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitSchema(context.Background()))

	srv, err := New(db, &Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.GetAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop())
}
