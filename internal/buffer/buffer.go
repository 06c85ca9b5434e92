// Package buffer holds the local edit buffer for the single note being edited.
//
// The buffer keeps the current title and content next to a snapshot of the
// values last confirmed by the remote store. Dirtiness is always derived from
// those four fields and is never stored on its own.
package buffer

import (
	"time"

	"github.com/notesync/notesync/internal/note"
)

// State is an immutable view of the buffer.
type State struct {
	NoteID            note.ID
	Title             string
	Content           string
	LastSyncedTitle   string
	LastSyncedContent string
	LastSyncedAt      time.Time
}

// IsDirty reports whether the current fields differ from the synced snapshot.
func (s State) IsDirty() bool {
	return s.Title != s.LastSyncedTitle || s.Content != s.LastSyncedContent
}

// Buffer is the edit buffer. It is not safe for concurrent use; the sync
// engine is its only writer.
type Buffer struct {
	state     State
	observers []func(State)
	now       func() time.Time
}

// New returns an empty buffer bound to no note.
func New() *Buffer {
	return &Buffer{
		state: State{NoteID: note.NoID, LastSyncedAt: time.Now()},
		now:   time.Now,
	}
}

// OnChange registers fn to be called with the new state after every mutation.
func (b *Buffer) OnChange(fn func(State)) {
	b.observers = append(b.observers, fn)
}

// Snapshot returns a copy of the current state.
func (b *Buffer) Snapshot() State {
	return b.state
}

// NoteID returns the id of the buffered note, or note.NoID.
func (b *Buffer) NoteID() note.ID {
	return b.state.NoteID
}

// IsDirty reports whether there are edits not yet confirmed by the store.
func (b *Buffer) IsDirty() bool {
	return b.state.IsDirty()
}

// Reset replaces the whole buffer with a freshly opened note. The snapshot is
// initialised to the incoming values, so the result is always clean.
func (b *Buffer) Reset(id note.ID, content, title string) {
	b.state = State{
		NoteID:            id,
		Title:             title,
		Content:           content,
		LastSyncedTitle:   title,
		LastSyncedContent: content,
		LastSyncedAt:      b.now(),
	}
	b.notify()
}

// UpdateContent replaces the current content.
func (b *Buffer) UpdateContent(content string) {
	b.state.Content = content
	b.notify()
}

// UpdateTitle replaces the current title.
func (b *Buffer) UpdateTitle(title string) {
	b.state.Title = title
	b.notify()
}

// MarkSynced records the current title and content as persisted. It is a
// no-op on a clean buffer, so repeated calls leave the buffer unchanged.
func (b *Buffer) MarkSynced() {
	if !b.state.IsDirty() {
		return
	}
	b.ConfirmSynced(b.state.Title, b.state.Content)
}

// ConfirmSynced records title and content as the persisted snapshot. The
// engine passes the values it dispatched, so edits made while the request was
// in flight remain dirty.
func (b *Buffer) ConfirmSynced(title, content string) {
	b.state.LastSyncedTitle = title
	b.state.LastSyncedContent = content
	b.state.LastSyncedAt = b.now()
	b.notify()
}

func (b *Buffer) notify() {
	for _, fn := range b.observers {
		fn(b.state)
	}
}
