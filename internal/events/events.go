// Package events publishes sync outcomes to a message bus so other processes
// (indexers, backups, a second editor) can react to confirmed notes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/note"
)

// Type names an event. It is the last element of the subject.
type Type string

const (
	// TypeNoteConfirmed is published after the store confirms a sync.
	TypeNoteConfirmed Type = "note.confirmed"

	// TypeSyncFailed is published when a sync round trip fails.
	TypeSyncFailed Type = "sync.failed"
)

// Event is the payload published for one sync outcome.
type Event struct {
	Type      Type      `json:"type"`
	NoteID    note.ID   `json:"noteId"`
	Title     string    `json:"title,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher sends events to a bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() {}

// StreamName is the JetStream stream holding notesync events.
const StreamName = "NOTESYNC"

// SubjectPrefix prefixes every subject, e.g. notesync.note.confirmed.
const SubjectPrefix = "notesync"

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewNATSPublisher connects to the NATS server at url and makes sure the
// notesync stream exists.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.Name("notesync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		// the server may not be up yet; publishing retries on reconnect
		logger.Warn("failed to ensure stream", zap.String("stream", StreamName), zap.Error(err))
	}

	return &NATSPublisher{nc: nc, js: js}, nil
}

// Subject returns the subject an event of type t is published on.
func Subject(t Type) string {
	return SubjectPrefix + "." + string(t)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	subject := Subject(ev.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// Close implements Publisher.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Forwarder adapts a Publisher to engine.Observer. The engine calls it on
// its own goroutine, so events are queued and published from a worker; when
// the queue is full events are dropped.
type Forwarder struct {
	pub     Publisher
	logger  *zap.Logger
	timeout time.Duration
	queue   chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ engine.Observer = (*Forwarder)(nil)

// NewForwarder creates a forwarder and starts its worker.
func NewForwarder(pub Publisher, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		pub:     pub,
		logger:  logger.Named("events"),
		timeout: 5 * time.Second,
		queue:   make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	f.wg.Add(1)
	go f.run()
	return f
}

// SyncConfirmed implements engine.Observer.
func (f *Forwarder) SyncConfirmed(n note.Note) {
	f.enqueue(Event{
		Type:      TypeNoteConfirmed,
		NoteID:    n.ID,
		Title:     n.Title,
		UpdatedAt: n.UpdatedAt,
		At:        time.Now().UTC(),
	})
}

// SyncFailed implements engine.Observer.
func (f *Forwarder) SyncFailed(id note.ID, reason string) {
	f.enqueue(Event{
		Type:   TypeSyncFailed,
		NoteID: id,
		Error:  reason,
		At:     time.Now().UTC(),
	})
}

func (f *Forwarder) enqueue(ev Event) {
	select {
	case f.queue <- ev:
	case <-f.ctx.Done():
	default:
		f.logger.Warn("event queue full, dropping event", zap.String("type", string(ev.Type)))
	}
}

func (f *Forwarder) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return
		case ev := <-f.queue:
			f.publish(f.ctx, ev)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.pub.Publish(ctx, ev); err != nil {
		f.logger.Warn("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// Stop stops the worker, then publishes whatever is still queued.
func (f *Forwarder) Stop() {
	f.cancel()
	f.wg.Wait()

	for {
		select {
		case ev := <-f.queue:
			f.publish(context.Background(), ev)
		default:
			return
		}
	}
}
