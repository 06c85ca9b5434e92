// Package server exposes a note store over the HTTP JSON API the sync client
// talks to.
//
// Routes:
//
//	GET  /notes           all notes
//	GET  /notes/{id}      one note (404 if unknown)
//	POST /notes/create    {title, content} -> id
//	POST /notes/update    note -> id (404 if unknown)
//	POST /notes/delete    note -> bool
//	GET  /search?query=   {notes, highlights}
//	GET  /health          liveness
//
// Search results are cached per query string; any write flushes the cache.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/store"
)

// Backend is the storage the server serves. *store.DB implements it.
type Backend interface {
	List(ctx context.Context) ([]note.Note, error)
	GetByID(ctx context.Context, id note.ID) (*note.Note, error)
	Create(ctx context.Context, n note.Note) (note.ID, error)
	Update(ctx context.Context, n note.Note) (note.ID, error)
	Delete(ctx context.Context, n note.Note) (bool, error)
	Search(ctx context.Context, query string) (*note.SearchResult, error)
}

var _ Backend = (*store.DB)(nil)

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":8080")
	Addr string

	// SearchCacheTTL is how long a search result is reused (default: 30s)
	SearchCacheTTL time.Duration

	// Logger for request logging (default: no-op)
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		SearchCacheTTL: 30 * time.Second,
		Logger:         zap.NewNop(),
	}
}

// Server serves the note API.
type Server struct {
	backend Backend
	config  *Config
	logger  *zap.Logger
	search  *cache.Cache
	handler http.Handler

	// searchGen counts writes; a search that overlapped one is not cached
	searchMu  sync.Mutex
	searchGen uint64

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New creates a server for backend. It does not listen until Start.
func New(backend Backend, config *Config) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.SearchCacheTTL <= 0 {
		config.SearchCacheTTL = DefaultConfig().SearchCacheTTL
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Server{
		backend: backend,
		config:  config,
		logger:  config.Logger.Named("server"),
		search:  cache.New(config.SearchCacheTTL, 2*config.SearchCacheTTL),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /notes", s.handleList)
	mux.HandleFunc("GET /notes/{id}", s.handleGet)
	mux.HandleFunc("POST /notes/create", s.handleCreate)
	mux.HandleFunc("POST /notes/update", s.handleUpdate)
	mux.HandleFunc("POST /notes/delete", s.handleDelete)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = s.withCORS(s.withLogging(mux))
	return s, nil
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("note API listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()

	s.logger.Info("note API stopped")
	return nil
}

// GetAddr returns the listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	notes, err := s.backend.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, notes)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid note id", http.StatusBadRequest)
		return
	}

	n, err := s.backend.GetByID(r.Context(), note.ID(id))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, n)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	id, err := s.backend.Create(r.Context(), note.Note{Title: body.Title, Content: body.Content})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSearch()
	writeJSON(w, id)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var n note.Note
	if !decodeJSON(w, r, &n) {
		return
	}

	id, err := s.backend.Update(r.Context(), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSearch()
	writeJSON(w, id)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var n note.Note
	if !decodeJSON(w, r, &n) {
		return
	}

	ok, err := s.backend.Delete(r.Context(), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateSearch()
	writeJSON(w, ok)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	if cached, found := s.search.Get(query); found {
		writeJSON(w, cached.(*note.SearchResult))
		return
	}

	gen := s.currentSearchGen()
	res, err := s.backend.Search(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.cacheSearch(gen, query, res)
	writeJSON(w, res)
}

func (s *Server) currentSearchGen() uint64 {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	return s.searchGen
}

// cacheSearch stores res unless a write finished since gen was read.
func (s *Server) cacheSearch(gen uint64, query string, res *note.SearchResult) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	if gen != s.searchGen {
		return
	}
	s.search.Set(query, res, cache.DefaultExpiration)
}

func (s *Server) invalidateSearch() {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	s.searchGen++
	s.search.Flush()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":        "ok",
		"cachedQueries": s.search.ItemCount(),
	})
}

// fail maps backend errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, note.ErrInvalid) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
