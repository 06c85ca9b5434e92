// Package daemon connects a workspace directory of note files to a sync
// engine.
//
// The session:
//  1. Watches the workspace for writes to <id>.md files
//  2. Lets bursts of writes to a file settle before reading it
//  3. Feeds title and content of the edited note into the engine
//  4. Switches the engine to another note when a different file is edited
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/note"
)

// Editor is the part of the sync engine a session drives.
type Editor interface {
	HandleContentChange(content string, id note.ID) error
	HandleTitleChange(title string, id note.ID) error
	SwitchDocument(ctx context.Context, next note.Note) error
	ActiveID() note.ID
}

// errSwitchPending means a switch outlived SwitchTimeout and the engine is
// still working on it.
var errSwitchPending = errors.New("note switch still pending")

// pendingSwitch is a switch the session stopped waiting for.
type pendingSwitch struct {
	from note.ID
	to   note.ID
	done chan error
}

// Loader fetches the stored copy of a note, used as the clean baseline when
// the session switches to it.
type Loader func(ctx context.Context, id note.ID) (*note.Note, error)

// Config holds configuration for a session.
type Config struct {
	// SettleInterval is how long a file must be quiet before it is read.
	// Editors often write a file in several steps.
	SettleInterval time.Duration

	// SwitchTimeout bounds how long a switch waits for the outgoing note
	SwitchTimeout time.Duration

	// Logger for session activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SettleInterval: 100 * time.Millisecond,
		SwitchTimeout:  time.Minute,
		Logger:         zap.NewNop(),
	}
}

// Session watches a workspace and drives an Editor from file edits.
type Session struct {
	editor Editor
	load   Loader
	dir    string
	config *Config
	logger *zap.Logger

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	pending   *pendingSwitch
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session with default configuration.
//
// The session requires:
//   - editor: an engine already initialized with the note being edited
//   - load: fetches a note's stored copy when switching to it
//   - dir: the workspace directory holding <id>.md files
//
// Use Start() to begin watching.
func New(editor Editor, load Loader, dir string) (*Session, error) {
	return NewWithConfig(editor, load, dir, DefaultConfig())
}

// NewWithConfig creates a session with custom configuration.
func NewWithConfig(editor Editor, load Loader, dir string, config *Config) (*Session, error) {
	if editor == nil {
		return nil, fmt.Errorf("editor cannot be nil")
	}
	if load == nil {
		return nil, fmt.Errorf("loader cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SettleInterval <= 0 {
		config.SettleInterval = DefaultConfig().SettleInterval
	}
	if config.SwitchTimeout <= 0 {
		config.SwitchTimeout = DefaultConfig().SwitchTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		editor:      editor,
		load:        load,
		dir:         dir,
		config:      config,
		logger:      config.Logger.Named("daemon"),
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start watches the workspace and blocks until ctx is cancelled or Stop is
// called.
func (s *Session) Start(ctx context.Context) error {
	if err := s.watcher.Start(s.dir); err != nil {
		return err
	}

	s.logger.Info("watching workspace", zap.String("dir", s.dir))

	s.wg.Add(2)
	go s.watchFileEvents()
	go s.processChangeQueue()

	select {
	case <-ctx.Done():
		s.logger.Debug("shutdown signal received")
		return s.Stop()
	case <-s.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts the session down. The engine is left running; its
// owner tears it down.
func (s *Session) Stop() error {
	s.cancel()

	if err := s.watcher.Stop(); err != nil {
		s.logger.Warn("error closing watcher", zap.Error(err))
	}

	s.wg.Wait()

	s.logger.Debug("session stopped")
	return nil
}

func (s *Session) watchFileEvents() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-s.watcher.Events():
			if !ok {
				return
			}

			if event.Op == OpDelete {
				if event.ID == s.editor.ActiveID() {
					s.logger.Warn("file of the active note was removed; edits continue from memory",
						zap.String("path", event.Path))
				}
				continue
			}

			s.logger.Debug("file event", zap.String("op", event.Op.String()), zap.String("path", event.Path))
			s.queueChange(event.Path)

		case err, ok := <-s.watcher.Errors():
			if !ok {
				return
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (s *Session) queueChange(path string) {
	s.changeQueueMu.Lock()
	defer s.changeQueueMu.Unlock()

	s.changeQueue[path] = time.Now()
}

func (s *Session) processChangeQueue() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.processPendingChanges()
		}
	}
}

// processPendingChanges applies files that have been quiet long enough.
func (s *Session) processPendingChanges() {
	s.changeQueueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range s.changeQueue {
		if now.Sub(queuedAt) < s.config.SettleInterval {
			continue
		}
		ready = append(ready, path)
		delete(s.changeQueue, path)
	}
	s.changeQueueMu.Unlock()

	// applying may wait on a switch, so it runs outside the queue lock
	for _, path := range ready {
		if err := s.ApplyFile(s.ctx, path); err != nil {
			s.logger.Error("failed to apply note file", zap.String("path", path), zap.Error(err))
		}
	}
}

// ApplyFile reads a note file and feeds it to the editor. Editing a file
// other than the active note's switches the editor to that note first.
func (s *Session) ApplyFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	fileID, ok := note.IDFromFilename(filepath.Base(path))
	if !ok {
		return fmt.Errorf("not a note file: %s", path)
	}

	n, err := note.ReadNoteFile(path)
	if err != nil {
		return err
	}
	if n.ID != fileID {
		return fmt.Errorf("note file %s declares id %d", path, n.ID)
	}

	// edits wait until an earlier switch has landed, then apply to its result
	if err := s.awaitPendingSwitch(); err != nil {
		s.queueChange(path)
		return nil
	}

	if n.ID != s.editor.ActiveID() {
		err := s.switchTo(ctx, n.ID)
		if errors.Is(err, errSwitchPending) {
			s.queueChange(path)
			return nil
		}
		if err != nil {
			return err
		}
	}

	if err := s.editor.HandleTitleChange(n.Title, n.ID); err != nil {
		return fmt.Errorf("failed to apply title: %w", err)
	}
	if err := s.editor.HandleContentChange(n.Content, n.ID); err != nil {
		return fmt.Errorf("failed to apply content: %w", err)
	}
	return nil
}

func (s *Session) switchTo(ctx context.Context, id note.ID) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.config.SwitchTimeout)
	stored, err := s.load(loadCtx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load note %d: %w", id, err)
	}

	// the engine finishes a queued switch even if nobody waits for it, so the
	// call runs on its own and outlives SwitchTimeout
	p := &pendingSwitch{from: s.editor.ActiveID(), to: id, done: make(chan error, 1)}
	go func() {
		p.done <- s.editor.SwitchDocument(s.ctx, *stored)
	}()

	timer := time.NewTimer(s.config.SwitchTimeout)
	defer timer.Stop()

	select {
	case err := <-p.done:
		return s.switchResult(p, err)
	case <-ctx.Done():
		s.setPending(p)
		return ctx.Err()
	case <-timer.C:
	}

	s.setPending(p)
	s.logger.Warn("note switch is taking long; edits wait for it",
		zap.Int64("from", int64(p.from)), zap.Int64("to", int64(id)))
	return errSwitchPending
}

func (s *Session) setPending(p *pendingSwitch) {
	s.pendingMu.Lock()
	s.pending = p
	s.pendingMu.Unlock()
}

// awaitPendingSwitch returns errSwitchPending while a timed-out switch is
// still running, and otherwise clears it.
func (s *Session) awaitPendingSwitch() error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pending == nil {
		return nil
	}

	select {
	case err := <-s.pending.done:
		p := s.pending
		s.pending = nil
		if err := s.switchResult(p, err); err != nil {
			s.logger.Error("delayed note switch failed", zap.Int64("to", int64(p.to)), zap.Error(err))
		}
		return nil
	default:
		return errSwitchPending
	}
}

func (s *Session) switchResult(p *pendingSwitch, err error) error {
	var unsynced *engine.UnsyncedEditsError
	if errors.As(err, &unsynced) {
		s.logger.Warn("edits to the previous note were not synced",
			zap.Int64("note_id", int64(unsynced.NoteID)),
			zap.String("reason", unsynced.Reason),
			zap.Bool("switched", unsynced.Switched),
			zap.String("diff", unsynced.Diff()))
		if !unsynced.Switched {
			return err
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to switch to note %d: %w", p.to, err)
	}

	s.logger.Info("switched note", zap.Int64("from", int64(p.from)), zap.Int64("to", int64(p.to)))
	return nil
}
