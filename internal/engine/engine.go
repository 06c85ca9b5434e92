// Package engine orchestrates background synchronization of the note being
// edited.
//
// The Engine owns the edit buffer and sync status of exactly one active note.
// All of its state lives on a single goroutine: public methods post commands
// to that goroutine, and debounce expiry and executor outcomes are delivered
// to it over channels. Remote I/O happens on the executor's goroutine, so an
// edit never waits on the network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/buffer"
	"github.com/notesync/notesync/internal/executor"
	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/status"
)

// ErrClosed is returned by every method after Teardown.
var ErrClosed = errors.New("sync engine closed")

// ErrReinitialized is returned by a SwitchDocument or Flush that was still
// waiting when Initialize bound the engine to another note.
var ErrReinitialized = errors.New("sync engine re-initialized before the switch completed")

// Dispatcher is the handle to the background executor.
type Dispatcher interface {
	Submit(req executor.Request) error
	Outcomes() <-chan executor.Outcome
	Stop() error
}

// Observer is notified of sync outcomes. Methods run on the engine goroutine
// and must not call back into the Engine.
type Observer interface {
	// SyncConfirmed receives the store's copy of a note after a successful sync.
	SyncConfirmed(n note.Note)

	// SyncFailed receives the failure description of a sync round trip.
	SyncFailed(id note.ID, reason string)
}

// SwitchPolicy decides what a document switch does when the final sync of
// the outgoing note fails.
type SwitchPolicy string

const (
	// SwitchProceed completes the switch and reports the abandoned edits.
	SwitchProceed SwitchPolicy = "proceed"

	// SwitchAbort keeps the outgoing note active and reports the failure.
	SwitchAbort SwitchPolicy = "abort"
)

// ParseSwitchPolicy validates a policy name.
func ParseSwitchPolicy(s string) (SwitchPolicy, error) {
	switch p := SwitchPolicy(s); p {
	case SwitchProceed, SwitchAbort:
		return p, nil
	case "":
		return SwitchProceed, nil
	default:
		return "", fmt.Errorf("unknown switch policy %q (want %q or %q)", s, SwitchProceed, SwitchAbort)
	}
}

// Config holds engine configuration.
type Config struct {
	// Debounce is the quiet period after the last edit before a sync fires
	Debounce time.Duration

	// SwitchOnFailure applies when the final sync during a switch fails
	SwitchOnFailure SwitchPolicy

	// Logger for engine activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:        1000 * time.Millisecond,
		SwitchOnFailure: SwitchProceed,
		Logger:          zap.NewNop(),
	}
}

// Stats counts engine activity since construction.
type Stats struct {
	Dispatched    int
	Completed     int
	Failed        int
	StaleDropped  int
	SwitchesDone  int
	LastError     string
	LastConfirmed time.Time
}

// switchOp is one queued SwitchDocument or Flush call. A flush waits like a
// switch but leaves the active note in place.
type switchOp struct {
	target note.Note
	flush  bool
	result chan error

	// finalRequestID is the id of the final sync this switch dispatched
	finalRequestID string
	failure        *executor.Outcome
}

// Engine is the sync orchestrator. Construct one per editing surface with New
// and release it with Teardown.
type Engine struct {
	exec   Dispatcher
	config *Config
	logger *zap.Logger

	// owned by the loop goroutine
	buffer      *buffer.Buffer
	activeID    note.ID
	onConfirmed func(note.Note)
	observers   []Observer
	timer       *time.Timer
	timerGen    uint64
	inFlight    *executor.Request
	switches    []*switchOp
	stats       Stats

	status *status.Tracker

	// published copies for readers on other goroutines
	viewMu   sync.RWMutex
	view     buffer.State
	viewBusy bool
	viewStat Stats

	cmds     chan func()
	fire     chan uint64
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an engine that dispatches through exec, which must already be
// started. The engine goroutine starts immediately.
func New(exec Dispatcher, config *Config) (*Engine, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	if config.SwitchOnFailure == "" {
		config.SwitchOnFailure = SwitchProceed
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	e := &Engine{
		exec:     exec,
		config:   config,
		logger:   config.Logger.Named("engine"),
		buffer:   buffer.New(),
		activeID: note.NoID,
		status:   status.NewTracker(),
		cmds:     make(chan func()),
		fire:     make(chan uint64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.view = e.buffer.Snapshot()
	e.buffer.OnChange(func(s buffer.State) {
		e.viewMu.Lock()
		e.view = s
		e.viewMu.Unlock()
	})

	go e.loop()
	return e, nil
}

// Initialize binds the engine to n, resets the buffer, and marks the status
// synced. Switches and flushes still queued fail with ErrReinitialized so
// none of them can replace n afterwards. onConfirmed is called on the engine goroutine with the store's copy
// of the note after every successful sync; it must not call back into the
// Engine.
func (e *Engine) Initialize(n note.Note, onConfirmed func(note.Note)) error {
	return e.do(func() {
		e.cancelDebounce()
		for _, op := range e.switches {
			op.result <- ErrReinitialized
		}
		e.switches = nil
		e.activeID = n.ID
		e.onConfirmed = onConfirmed
		e.buffer.Reset(n.ID, n.Content, n.Title)
		e.status.Set(status.Synced)
		e.logger.Debug("initialized", zap.Int64("note_id", int64(n.ID)))
	})
}

// HandleContentChange applies a content edit for note id. Edits for any note
// other than the buffered one are dropped.
func (e *Engine) HandleContentChange(content string, id note.ID) error {
	return e.do(func() {
		e.applyEdit(id, func() { e.buffer.UpdateContent(content) })
	})
}

// HandleTitleChange applies a title edit for note id. Edits for any note
// other than the buffered one are dropped.
func (e *Engine) HandleTitleChange(title string, id note.ID) error {
	return e.do(func() {
		e.applyEdit(id, func() { e.buffer.UpdateTitle(title) })
	})
}

// AddObserver registers o for sync outcomes. The returned func removes it.
func (e *Engine) AddObserver(o Observer) (func(), error) {
	if o == nil {
		return nil, fmt.Errorf("observer cannot be nil")
	}
	if err := e.do(func() { e.observers = append(e.observers, o) }); err != nil {
		return nil, err
	}

	return func() {
		_ = e.do(func() {
			for i, x := range e.observers {
				if x == o {
					e.observers = append(e.observers[:i], e.observers[i+1:]...)
					return
				}
			}
		})
	}, nil
}

// SwitchDocument makes next the active note. It returns only after any
// in-flight sync has resolved and the outgoing note's edits have had a final
// sync. If ctx ends first the caller stops waiting but the switch still
// completes on the engine goroutine.
//
// When the final sync fails the result is an *UnsyncedEditsError; whether the
// switch went ahead depends on Config.SwitchOnFailure.
func (e *Engine) SwitchDocument(ctx context.Context, next note.Note) error {
	return e.enqueueSwitch(ctx, &switchOp{target: next})
}

// Flush syncs the active note's pending edits now instead of after the
// debounce, and returns once nothing is dirty or in flight. A failed sync is
// reported as an *UnsyncedEditsError with Switched false.
func (e *Engine) Flush(ctx context.Context) error {
	return e.enqueueSwitch(ctx, &switchOp{flush: true})
}

func (e *Engine) enqueueSwitch(ctx context.Context, op *switchOp) error {
	op.result = make(chan error, 1)
	if err := e.do(func() {
		e.switches = append(e.switches, op)
		if len(e.switches) == 1 {
			e.advanceSwitch()
		}
	}); err != nil {
		return err
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

// Teardown cancels any pending debounce, releases the executor, and sets the
// status to cleared. It is safe to call more than once.
func (e *Engine) Teardown() error {
	var stopErr error
	e.stopOnce.Do(func() {
		_ = e.do(func() {
			e.cancelDebounce()
			for _, op := range e.switches {
				op.result <- ErrClosed
			}
			e.switches = nil
			e.status.Set(status.Cleared)
		})
		close(e.quit)
		<-e.done
		stopErr = e.exec.Stop()
		e.logger.Debug("torn down")
	})
	return stopErr
}

// Buffer returns a snapshot of the edit buffer.
func (e *Engine) Buffer() buffer.State {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// Status returns the observable sync status.
func (e *Engine) Status() *status.Tracker {
	return e.status
}

// ActiveID returns the id of the note the engine is bound to.
func (e *Engine) ActiveID() note.ID {
	return e.Buffer().NoteID
}

// InFlight reports whether a round trip is outstanding.
func (e *Engine) InFlight() bool {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.viewBusy
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.viewStat
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); e.publish(); close(ran) }:
	case <-e.done:
		return ErrClosed
	case <-e.quit:
		return ErrClosed
	}
	<-ran
	return nil
}

// loop is the engine goroutine.
func (e *Engine) loop() {
	defer close(e.done)

	outcomes := e.exec.Outcomes()
	for {
		select {
		case <-e.quit:
			e.cancelDebounce()
			return

		case fn := <-e.cmds:
			fn()

		case gen := <-e.fire:
			// a fire that raced with a cancel or re-arm carries an old generation
			if gen != e.timerGen {
				continue
			}
			e.timer = nil
			e.sync()

		case out, ok := <-outcomes:
			if !ok {
				outcomes = nil
				continue
			}
			e.handleOutcome(out)
		}
		e.publish()
	}
}

func (e *Engine) publish() {
	e.viewMu.Lock()
	e.viewBusy = e.inFlight != nil
	e.viewStat = e.stats
	e.viewMu.Unlock()
}

func (e *Engine) applyEdit(id note.ID, update func()) {
	if id == note.NoID || id != e.buffer.NoteID() {
		e.stats.StaleDropped++
		e.logger.Debug("dropped stale edit",
			zap.Int64("note_id", int64(id)),
			zap.Int64("active_id", int64(e.buffer.NoteID())))
		return
	}

	update()

	if !e.buffer.IsDirty() {
		e.status.Set(status.Synced)
		return
	}

	e.status.Set(status.Pending)
	// a pending switch performs the final sync itself
	if len(e.switches) == 0 {
		e.armDebounce()
	}
}

// armDebounce (re)starts the quiet-period timer.
func (e *Engine) armDebounce() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timerGen++
	gen := e.timerGen
	e.timer = time.AfterFunc(e.config.Debounce, func() {
		select {
		case e.fire <- gen:
		case <-e.done:
		}
	})
}

func (e *Engine) cancelDebounce() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// sync dispatches the buffer if it is dirty and nothing is in flight.
func (e *Engine) sync() {
	if e.inFlight != nil {
		return
	}

	s := e.buffer.Snapshot()
	if !s.IsDirty() || s.NoteID != e.activeID {
		e.status.Set(status.Synced)
		return
	}

	req := executor.NewSyncRequest(s.NoteID, s.Title, s.Content)
	e.status.Set(status.Syncing)

	if err := e.exec.Submit(req); err != nil {
		e.stats.Failed++
		e.stats.LastError = err.Error()
		e.status.Set(status.Error)
		e.logger.Error("sync dispatch failed", zap.Int64("note_id", int64(s.NoteID)), zap.Error(err))
		return
	}

	e.inFlight = &req
	e.stats.Dispatched++
	e.logger.Debug("sync dispatched",
		zap.String("request_id", req.RequestID),
		zap.Int64("note_id", int64(s.NoteID)))
}

func (e *Engine) handleOutcome(out executor.Outcome) {
	if e.inFlight == nil || out.RequestID != e.inFlight.RequestID {
		e.logger.Warn("unexpected sync outcome", zap.String("request_id", out.RequestID))
		return
	}
	e.inFlight = nil

	current := out.NoteID == e.activeID && out.NoteID == e.buffer.NoteID()

	if out.Completed() {
		e.stats.Completed++
		e.stats.LastConfirmed = time.Now()
		if current {
			e.buffer.ConfirmSynced(out.Request.Note.Title, out.Request.Note.Content)
		}
		if out.Note != nil {
			if e.onConfirmed != nil {
				e.onConfirmed(*out.Note)
			}
			for _, o := range e.observers {
				o.SyncConfirmed(*out.Note)
			}
		}
		if current {
			e.status.Set(status.Synced)
		}
	} else {
		e.stats.Failed++
		e.stats.LastError = out.Error
		if current {
			e.status.Set(status.Error)
		}
		e.logger.Error("sync failed",
			zap.String("request_id", out.RequestID),
			zap.Int64("note_id", int64(out.NoteID)),
			zap.String("error", out.Error))
		for _, o := range e.observers {
			o.SyncFailed(out.NoteID, out.Error)
		}
	}

	if len(e.switches) > 0 {
		op := e.switches[0]
		if !out.Completed() && out.RequestID == op.finalRequestID {
			failure := out
			op.failure = &failure
		}
		e.advanceSwitch()
		return
	}

	// edits that arrived during the round trip go out with the next cycle
	if out.Completed() && current && e.buffer.IsDirty() {
		e.status.Set(status.Pending)
		e.armDebounce()
	}
}

// advanceSwitch drives the switch at the head of the queue as far as it can
// go without waiting. It is re-entered from handleOutcome.
func (e *Engine) advanceSwitch() {
	for len(e.switches) > 0 {
		op := e.switches[0]
		e.cancelDebounce()

		if e.inFlight != nil {
			return
		}

		s := e.buffer.Snapshot()
		if s.IsDirty() && s.NoteID == e.activeID && s.NoteID != note.NoID {
			if op.failure == nil {
				e.sync()
				if e.inFlight != nil {
					op.finalRequestID = e.inFlight.RequestID
					return
				}
				// dispatch itself failed; treat like a failed final sync
				op.failure = &executor.Outcome{NoteID: s.NoteID, Error: e.stats.LastError}
			}

			if op.flush {
				e.switches = e.switches[1:]
				e.status.Set(status.Error)
				op.result <- newUnsyncedEditsError(s, op.failure.Error, false)
				continue
			}

			lost := newUnsyncedEditsError(s, op.failure.Error, e.config.SwitchOnFailure == SwitchProceed)
			e.logger.Error("switching with unsynced edits",
				zap.Int64("note_id", int64(s.NoteID)),
				zap.Int64("next_id", int64(op.target.ID)),
				zap.String("policy", string(e.config.SwitchOnFailure)),
				zap.String("error", op.failure.Error))

			if e.config.SwitchOnFailure == SwitchAbort {
				e.switches = e.switches[1:]
				e.status.Set(status.Error)
				op.result <- lost
				continue
			}
			e.finishSwitch(op, lost)
			continue
		}

		if op.flush {
			e.switches = e.switches[1:]
			op.result <- nil
			continue
		}
		e.finishSwitch(op, nil)
	}
}

func (e *Engine) finishSwitch(op *switchOp, err error) {
	e.switches = e.switches[1:]
	e.activeID = op.target.ID
	e.buffer.Reset(op.target.ID, op.target.Content, op.target.Title)
	e.status.Set(status.Synced)
	e.stats.SwitchesDone++
	e.logger.Debug("switched note", zap.Int64("note_id", int64(op.target.ID)))
	op.result <- err
}
