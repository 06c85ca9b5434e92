package remote

import (
	"sync"

	"github.com/notesync/notesync/internal/note"
)

// List is the client's in-memory copy of the notes list, in store order.
// It is safe for concurrent use: the sync engine's confirmation callback
// writes to it while presentation code reads.
type List struct {
	mu    sync.RWMutex
	notes []note.Note
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

// Set replaces the whole list.
func (l *List) Set(notes []note.Note) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append([]note.Note(nil), notes...)
}

// Add appends a note.
func (l *List) Add(n note.Note) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, n)
}

// Update replaces the note with the same id. Unknown ids are ignored.
func (l *List) Update(n note.Note) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.notes {
		if l.notes[i].ID == n.ID {
			l.notes[i] = n
		}
	}
}

// Delete removes the note with the given id.
func (l *List) Delete(id note.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.notes[:0]
	for _, n := range l.notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	l.notes = kept
}

// Get returns the note with the given id.
func (l *List) Get(id note.ID) (note.Note, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, n := range l.notes {
		if n.ID == id {
			return n, true
		}
	}
	return note.Note{}, false
}

// All returns a copy of the list.
func (l *List) All() []note.Note {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]note.Note(nil), l.notes...)
}

// Len returns the number of notes.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.notes)
}
