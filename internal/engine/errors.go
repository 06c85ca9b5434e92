package engine

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/notesync/notesync/internal/buffer"
	"github.com/notesync/notesync/internal/note"
)

// UnsyncedEditsError reports edits that could not be persisted by the final
// sync of a document switch or a flush.
type UnsyncedEditsError struct {
	NoteID note.ID

	// Title and Content are the edits that were not persisted.
	Title   string
	Content string

	// LastSyncedTitle and LastSyncedContent are what the store last confirmed.
	LastSyncedTitle   string
	LastSyncedContent string

	// Reason is the description from the failed sync.
	Reason string

	// Switched is true when the switch went ahead and the edits left the
	// buffer, false when the note is still active.
	Switched bool
}

func newUnsyncedEditsError(s buffer.State, reason string, switched bool) *UnsyncedEditsError {
	return &UnsyncedEditsError{
		NoteID:            s.NoteID,
		Title:             s.Title,
		Content:           s.Content,
		LastSyncedTitle:   s.LastSyncedTitle,
		LastSyncedContent: s.LastSyncedContent,
		Reason:            reason,
		Switched:          switched,
	}
}

func (e *UnsyncedEditsError) Error() string {
	if e.Switched {
		return fmt.Sprintf("note %d: unsynced edits abandoned on switch: %s", e.NoteID, e.Reason)
	}
	return fmt.Sprintf("note %d: edits not synced: %s", e.NoteID, e.Reason)
}

// Note returns the unsynced edits as a note, ready to be re-submitted.
func (e *UnsyncedEditsError) Note() note.Note {
	return note.Note{ID: e.NoteID, Title: e.Title, Content: e.Content}
}

// Diff renders the unsynced content against the last confirmed content.
// Insertions and deletions are colored for a terminal.
func (e *UnsyncedEditsError) Diff() string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(e.LastSyncedContent, e.Content, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := dmp.DiffPrettyText(diffs)
	if e.Title != e.LastSyncedTitle {
		out = fmt.Sprintf("title: %q -> %q\n%s", e.LastSyncedTitle, e.Title, out)
	}
	return out
}
