// Package remote is the client side of the note store: the Store contract the
// sync engine depends on, an HTTP JSON implementation, and the in-memory notes
// list the rest of the client reads from.
package remote

import (
	"context"
	"errors"

	"github.com/notesync/notesync/internal/note"
)

// ErrNotFound is returned when the store has no note with the requested id.
var ErrNotFound = errors.New("note not found")

// Store is the remote note store.
type Store interface {
	// List returns every note.
	List(ctx context.Context) ([]note.Note, error)

	// GetByID returns the authoritative stored note.
	// Returns ErrNotFound if the id is unknown.
	GetByID(ctx context.Context, id note.ID) (*note.Note, error)

	// Create stores a new note and returns its assigned id.
	Create(ctx context.Context, n note.Note) (note.ID, error)

	// Update overwrites title and content of an existing note and returns its id.
	Update(ctx context.Context, n note.Note) (note.ID, error)

	// Delete removes a note. It reports whether a note was removed.
	Delete(ctx context.Context, n note.Note) (bool, error)

	// Search runs a full-text query over titles and content.
	Search(ctx context.Context, query string) (*note.SearchResult, error)
}

// Syncer is the part of Store a sync round trip needs: write, then read back.
type Syncer interface {
	Update(ctx context.Context, n note.Note) (note.ID, error)
	GetByID(ctx context.Context, id note.ID) (*note.Note, error)
}
