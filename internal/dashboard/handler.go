package dashboard

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/status"
)

// Handler formats engine events as dashboard messages. It implements
// engine.Observer and bridges the engine to the WebSocket server.
type Handler struct {
	server *Server
	logger *zap.Logger
}

var _ engine.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		server: server,
		logger: logger.Named("dashboard"),
	}
}

// Attach subscribes the handler to e's status and sync outcomes and makes
// new clients start with a snapshot of e. The returned func detaches.
func (h *Handler) Attach(e *engine.Engine) (func(), error) {
	removeObserver, err := e.AddObserver(h)
	if err != nil {
		return nil, err
	}

	unsubscribe := e.Status().Subscribe(func(c status.Change) {
		h.OnStatusChange(c, e.ActiveID())
	})

	h.server.SetWelcome(func() Message { return SnapshotMessage(e) })

	return func() {
		unsubscribe()
		removeObserver()
		h.server.SetWelcome(nil)
	}, nil
}

// OnStatusChange broadcasts a status transition
func (h *Handler) OnStatusChange(c status.Change, id note.ID) {
	h.send(MessageTypeStatusUpdate, c.At, StatusUpdateData{
		From:   c.From.String(),
		To:     c.To.String(),
		NoteID: int64(id),
	})
}

// SyncConfirmed implements engine.Observer.
func (h *Handler) SyncConfirmed(n note.Note) {
	h.send(MessageTypeNoteConfirmed, time.Now(), NoteConfirmedData{
		NoteID:    int64(n.ID),
		Title:     n.Title,
		Length:    len(n.Content),
		UpdatedAt: n.UpdatedAt,
	})
}

// SyncFailed implements engine.Observer.
func (h *Handler) SyncFailed(id note.ID, reason string) {
	h.send(MessageTypeSyncError, time.Now(), SyncErrorData{
		NoteID: int64(id),
		Error:  reason,
	})
}

func (h *Handler) send(typ MessageType, at time.Time, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal message data", zap.String("type", string(typ)), zap.Error(err))
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: at,
		Data:      dataJSON,
	})
}

// SnapshotMessage describes e as it is now.
func SnapshotMessage(e *engine.Engine) Message {
	buf := e.Buffer()
	stats := e.Stats()

	data, _ := json.Marshal(SnapshotData{
		Status:     e.Status().Current().String(),
		NoteID:     int64(buf.NoteID),
		Title:      buf.Title,
		Dirty:      buf.IsDirty(),
		InFlight:   e.InFlight(),
		Dispatched: stats.Dispatched,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		LastError:  stats.LastError,

		LastConfirmed: stats.LastConfirmed,
	})

	return Message{
		Type:      MessageTypeSnapshot,
		Timestamp: time.Now(),
		Data:      data,
	}
}
