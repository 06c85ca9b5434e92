// Package note defines the note document shared by the sync engine, the remote
// store client, and the store server.
package note

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid note")

// ID identifies a note in the remote store.
type ID int64

// NoID is the sentinel used when no note is bound (e.g. an empty edit buffer).
const NoID ID = -1

// Note is a single editable document.
type Note struct {
	ID        ID        `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updated_at,omitempty"`
}

// Validate checks the fields the store relies on. Title and content may be
// empty: a freshly created note has neither.
func (n *Note) Validate() error {
	if n.ID <= 0 {
		return fmt.Errorf("%w: id must be positive (got %d)", ErrInvalid, n.ID)
	}
	if len(n.Title) > 500 {
		return fmt.Errorf("%w: title must be 500 characters or less (got %d)", ErrInvalid, len(n.Title))
	}
	return nil
}

// Highlight carries the search snippet and score for one matching note.
type Highlight struct {
	TitleHighlight   string  `json:"titleHighlight"`
	ContentHighlight string  `json:"contentHighlight"`
	Rank             float64 `json:"rank"`
}

// SearchResult is the response of a full-text search.
type SearchResult struct {
	Notes      []Note           `json:"notes"`
	Highlights map[ID]Highlight `json:"highlights"`
}
