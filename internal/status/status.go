// Package status tracks the synchronization phase of the note being edited.
package status

import (
	"sync"
	"time"
)

// Status is the sync phase of the active note.
type Status string

const (
	// Synced means the buffer matches what the store last confirmed.
	Synced Status = "synced"
	// Pending means there are local edits waiting for the quiet period.
	Pending Status = "pending"
	// Syncing means a request is in flight.
	Syncing Status = "syncing"
	// Error means the last sync attempt failed. Only a new edit leaves it.
	Error Status = "error"
	// Cleared is the neutral state after teardown.
	Cleared Status = "cleared"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// Change describes one transition.
type Change struct {
	From Status
	To   Status
	At   time.Time
}

// Tracker holds the current status and notifies subscribers on every
// transition. Set is only called by the sync engine; Current and Subscribe are
// safe from any goroutine.
type Tracker struct {
	mu      sync.RWMutex
	current Status
	subs    map[int]func(Change)
	nextID  int
}

// NewTracker returns a tracker in the Synced state.
func NewTracker() *Tracker {
	return &Tracker{
		current: Synced,
		subs:    make(map[int]func(Change)),
	}
}

// Current returns the active status.
func (t *Tracker) Current() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set overwrites the active status and notifies subscribers. Subscribers are
// notified even when the value does not change, matching how every engine
// transition is observable.
func (t *Tracker) Set(s Status) {
	t.mu.Lock()
	change := Change{From: t.current, To: s, At: time.Now()}
	t.current = s
	subs := make([]func(Change), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Subscribe registers fn for change notifications. fn runs on the goroutine
// that called Set and must not block. The returned func unsubscribes.
func (t *Tracker) Subscribe(fn func(Change)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}
