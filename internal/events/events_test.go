package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/note"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) Close() {}

func (r *recordingPublisher) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "notesync.note.confirmed", Subject(TypeNoteConfirmed))
	assert.Equal(t, "notesync.sync.failed", Subject(TypeSyncFailed))
}

func TestForwarder_PublishesOutcomes(t *testing.T) {
	pub := &recordingPublisher{}
	f := NewForwarder(pub, nil)

	stamp := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.SyncConfirmed(note.Note{ID: 3, Title: "plan", Content: "secret", UpdatedAt: stamp})
	f.SyncFailed(3, "Failed to update note")
	f.Stop()

	events := pub.snapshot()
	require.Len(t, events, 2)

	assert.Equal(t, TypeNoteConfirmed, events[0].Type)
	assert.Equal(t, note.ID(3), events[0].NoteID)
	assert.Equal(t, "plan", events[0].Title)
	assert.Equal(t, stamp, events[0].UpdatedAt)

	assert.Equal(t, TypeSyncFailed, events[1].Type)
	assert.Equal(t, "Failed to update note", events[1].Error)
}

func TestForwarder_PublishErrorsAreNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: no responders available for request")}
	f := NewForwarder(pub, nil)

	f.SyncFailed(1, "boom")
	f.SyncFailed(2, "boom")
	f.Stop()

	assert.Len(t, pub.snapshot(), 2)
}

func TestEvent_PayloadOmitsContent(t *testing.T) {
	data, err := json.Marshal(Event{Type: TypeNoteConfirmed, NoteID: 1, Title: "t"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "content")
	assert.Equal(t, "note.confirmed", raw["type"])
	assert.EqualValues(t, 1, raw["noteId"])
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	p.Close()
}
