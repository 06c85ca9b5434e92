package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/executor"
	"github.com/notesync/notesync/internal/note"
)

// fakeEditor records what a session asks of the engine.
type fakeEditor struct {
	mu        sync.Mutex
	active    note.ID
	calls     []string
	switchErr error

	// gate, when set, holds SwitchDocument until closed
	gate chan struct{}
}

func (f *fakeEditor) HandleContentChange(content string, id note.ID) error {
	f.record("content %d %q", id, content)
	return nil
}

func (f *fakeEditor) HandleTitleChange(title string, id note.ID) error {
	f.record("title %d %q", id, title)
	return nil
}

func (f *fakeEditor) SwitchDocument(ctx context.Context, next note.Note) error {
	f.record("switch %d %q", next.ID, next.Content)
	if f.gate != nil {
		<-f.gate
	}

	var unsynced *engine.UnsyncedEditsError
	if errors.As(f.switchErr, &unsynced) && !unsynced.Switched {
		return f.switchErr
	}

	f.mu.Lock()
	f.active = next.ID
	f.mu.Unlock()
	return f.switchErr
}

func (f *fakeEditor) ActiveID() note.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeEditor) record(format string, args ...interface{}) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeEditor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func storedLoader(notes map[note.ID]note.Note) Loader {
	return func(ctx context.Context, id note.ID) (*note.Note, error) {
		n, ok := notes[id]
		if !ok {
			return nil, errors.New("note not found")
		}
		return &n, nil
	}
}

func writeNote(t *testing.T, dir string, n note.Note) string {
	t.Helper()

	if err := note.WriteNoteFile(dir, &n); err != nil {
		t.Fatalf("WriteNoteFile() failed: %v", err)
	}
	return filepath.Join(dir, n.Filename())
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewWithConfig_Validation(t *testing.T) {
	ed := &fakeEditor{}
	load := storedLoader(nil)

	tests := []struct {
		name   string
		editor Editor
		load   Loader
		dir    string
	}{
		{"nil editor", nil, load, "notes"},
		{"nil loader", ed, nil, "notes"},
		{"empty dir", ed, load, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWithConfig(tt.editor, tt.load, tt.dir, nil); err == nil {
				t.Error("NewWithConfig() expected error")
			}
		})
	}
}

func TestApplyFile_ActiveNote(t *testing.T) {
	dir := t.TempDir()
	ed := &fakeEditor{active: 1}

	s, err := New(ed, storedLoader(nil), dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.watcher.Stop()

	path := writeNote(t, dir, note.Note{ID: 1, Title: "A", Content: "xy"})
	if err := s.ApplyFile(context.Background(), path); err != nil {
		t.Fatalf("ApplyFile() failed: %v", err)
	}

	equalCalls(t, ed.Calls(), []string{`title 1 "A"`, `content 1 "xy"`})
}

func TestApplyFile_SwitchesToOtherNote(t *testing.T) {
	dir := t.TempDir()
	ed := &fakeEditor{active: 1}
	stored := map[note.ID]note.Note{2: {ID: 2, Title: "B", Content: "stored"}}

	s, err := New(ed, storedLoader(stored), dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.watcher.Stop()

	path := writeNote(t, dir, note.Note{ID: 2, Title: "B", Content: "edited"})
	if err := s.ApplyFile(context.Background(), path); err != nil {
		t.Fatalf("ApplyFile() failed: %v", err)
	}

	// the stored copy is the baseline; the file content arrives as an edit
	equalCalls(t, ed.Calls(), []string{
		`switch 2 "stored"`,
		`title 2 "B"`,
		`content 2 "edited"`,
	})
}

func TestApplyFile_SwitchFailure(t *testing.T) {
	tests := []struct {
		name      string
		switchErr error
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "abandoned edits still switch",
			switchErr: &engine.UnsyncedEditsError{NoteID: 1, Content: "lost", Reason: "offline", Switched: true},
			wantErr:   false,
			wantCalls: 3,
		},
		{
			name:      "aborted switch",
			switchErr: &engine.UnsyncedEditsError{NoteID: 1, Content: "kept", Reason: "offline", Switched: false},
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ed := &fakeEditor{active: 1, switchErr: tt.switchErr}
			stored := map[note.ID]note.Note{2: {ID: 2, Title: "B"}}

			s, err := New(ed, storedLoader(stored), dir)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			defer s.watcher.Stop()

			path := writeNote(t, dir, note.Note{ID: 2, Title: "B", Content: "b"})
			err = s.ApplyFile(context.Background(), path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(ed.Calls()); got != tt.wantCalls {
				t.Errorf("editor calls = %q, want %d calls", ed.Calls(), tt.wantCalls)
			}
		})
	}
}

func TestApplyFile_SlowSwitchNotRepeated(t *testing.T) {
	dir := t.TempDir()
	ed := &fakeEditor{active: 1, gate: make(chan struct{})}
	stored := map[note.ID]note.Note{2: {ID: 2, Title: "B", Content: "stored"}}

	s, err := NewWithConfig(ed, storedLoader(stored), dir, &Config{SwitchTimeout: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer s.watcher.Stop()

	path := writeNote(t, dir, note.Note{ID: 2, Title: "B", Content: "edited"})

	// the switch outlives the timeout; the file waits for it
	for i := 0; i < 3; i++ {
		if err := s.ApplyFile(context.Background(), path); err != nil {
			t.Fatalf("ApplyFile() #%d failed: %v", i, err)
		}
	}
	equalCalls(t, ed.Calls(), []string{`switch 2 "stored"`})

	s.changeQueueMu.Lock()
	_, queued := s.changeQueue[path]
	s.changeQueueMu.Unlock()
	if !queued {
		t.Error("file should be queued again while the switch is pending")
	}

	close(ed.gate)

	deadline := time.Now().Add(3 * time.Second)
	for s.awaitPendingSwitch() != nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the switch to land")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.ApplyFile(context.Background(), path); err != nil {
		t.Fatalf("ApplyFile() failed: %v", err)
	}
	equalCalls(t, ed.Calls(), []string{
		`switch 2 "stored"`,
		`title 2 "B"`,
		`content 2 "edited"`,
	})
}

func TestApplyFile_Errors(t *testing.T) {
	dir := t.TempDir()
	ed := &fakeEditor{active: 1}

	s, err := New(ed, storedLoader(nil), dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.watcher.Stop()

	// unknown note cannot be loaded
	path := writeNote(t, dir, note.Note{ID: 9, Title: "ghost"})
	if err := s.ApplyFile(context.Background(), path); err == nil {
		t.Error("ApplyFile() for an unloadable note should fail")
	}

	// removed files are ignored
	if err := s.ApplyFile(context.Background(), filepath.Join(dir, "5.md")); err != nil {
		t.Errorf("ApplyFile() for a missing file = %v, want nil", err)
	}

	if calls := ed.Calls(); len(calls) != 0 {
		t.Errorf("editor calls = %q, want none", calls)
	}
}

// memStore is an in-memory remote.Syncer plus Loader for the end-to-end test.
type memStore struct {
	mu    sync.Mutex
	notes map[note.ID]note.Note
}

func (m *memStore) Update(ctx context.Context, n note.Note) (note.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.UpdatedAt = time.Now().UTC()
	m.notes[n.ID] = n
	return n.ID, nil
}

func (m *memStore) GetByID(ctx context.Context, id note.ID) (*note.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, errors.New("note not found")
	}
	return &n, nil
}

func (m *memStore) content(id note.ID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[id].Content
}

func TestSession_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{notes: map[note.ID]note.Note{
		1: {ID: 1, Title: "A", Content: "x"},
		2: {ID: 2, Title: "B", Content: "b"},
	}}

	exec, err := executor.New(store, nil)
	if err != nil {
		t.Fatalf("executor.New() failed: %v", err)
	}
	exec.Start()

	e, err := engine.New(exec, &engine.Config{Debounce: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	defer e.Teardown()

	if err := e.Initialize(note.Note{ID: 1, Title: "A", Content: "x"}, nil); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	writeNote(t, dir, note.Note{ID: 1, Title: "A", Content: "x"})

	s, err := NewWithConfig(e, store.GetByID, dir, &Config{SettleInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	waitUntil := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	waitUntil("watcher", s.watcher.IsRunning)

	writeNote(t, dir, note.Note{ID: 1, Title: "A", Content: "xy"})
	waitUntil("note 1 synced", func() bool { return store.content(1) == "xy" })

	writeNote(t, dir, note.Note{ID: 2, Title: "B", Content: "b2"})
	waitUntil("switch to note 2", func() bool { return e.ActiveID() == 2 })
	waitUntil("note 2 synced", func() bool { return store.content(2) == "b2" })

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() returned %v", err)
	}
}
