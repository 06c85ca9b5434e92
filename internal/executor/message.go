package executor

import (
	"github.com/google/uuid"

	"github.com/notesync/notesync/internal/note"
)

// MessageType tags executor messages.
type MessageType string

const (
	// TypeSync requests a write-then-read-back round trip.
	TypeSync MessageType = "sync"

	// TypeSyncComplete reports a confirmed note.
	TypeSyncComplete MessageType = "syncComplete"

	// TypeSyncError reports a failed round trip.
	TypeSyncError MessageType = "syncError"
)

// Request is a sync request. It always carries the buffer values at dispatch.
type Request struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId"`
	Note      note.Note   `json:"note"`
}

// NewSyncRequest builds a sync request for the given buffer values.
func NewSyncRequest(id note.ID, title, content string) Request {
	return Request{
		Type:      TypeSync,
		RequestID: uuid.NewString(),
		Note:      note.Note{ID: id, Title: title, Content: content},
	}
}

// Outcome is the single response to a Request.
type Outcome struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId"`
	NoteID    note.ID     `json:"noteId"`

	// Note is the authoritative stored note (syncComplete only).
	Note *note.Note `json:"note,omitempty"`

	// Error describes the failure (syncError only).
	Error string `json:"error,omitempty"`

	// Request echoes the values that were sent, so the engine can confirm
	// exactly what was persisted.
	Request Request `json:"-"`
}

// Completed reports whether the round trip succeeded.
func (o Outcome) Completed() bool {
	return o.Type == TypeSyncComplete
}

func completed(req Request, confirmed *note.Note) Outcome {
	return Outcome{
		Type:      TypeSyncComplete,
		RequestID: req.RequestID,
		NoteID:    req.Note.ID,
		Note:      confirmed,
		Request:   req,
	}
}

func failed(req Request, desc string) Outcome {
	return Outcome{
		Type:      TypeSyncError,
		RequestID: req.RequestID,
		NoteID:    req.Note.ID,
		Error:     desc,
		Request:   req,
	}
}
