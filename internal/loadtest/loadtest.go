// Package loadtest drives many concurrent editing sessions against a note
// store.
//
// Each simulated typist owns a sync engine bound to its own note and types
// into it at a fixed pace. The run measures how far debouncing coalesces
// keystrokes into writes, how long each write round trip takes, and checks
// that the store ends up holding every typist's final text.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/executor"
	"github.com/notesync/notesync/internal/note"
	"github.com/notesync/notesync/internal/remote"
	"github.com/notesync/notesync/internal/store"
)

// Options configures a run.
type Options struct {
	// Typists is the number of concurrent editing sessions
	Typists int

	// Keystrokes each typist types
	Keystrokes int

	// Interval between keystrokes; each pause is jittered by up to +50%
	Interval time.Duration

	// Debounce is the engines' quiet period
	Debounce time.Duration

	// Seed makes keystrokes and pauses reproducible
	Seed int64

	// Logger for engine and executor activity (default: no-op)
	Logger *zap.Logger
}

// DefaultOptions returns a small run that finishes in a few seconds.
func DefaultOptions() Options {
	return Options{
		Typists:    10,
		Keystrokes: 40,
		Interval:   30 * time.Millisecond,
		Debounce:   200 * time.Millisecond,
		Seed:       42,
	}
}

// LatencyStats captures round-trip latency of store writes.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration // Median
	P95       time.Duration
	P99       time.Duration
	Total     int
	Errors    int
	Durations []time.Duration
}

// Report summarizes a run.
type Report struct {
	Typists    int
	Keystrokes int
	Dispatched int
	Completed  int
	Failed     int

	// Lost counts typists whose final text is not what the store holds
	Lost int

	Latency  *LatencyStats
	Duration time.Duration
}

// Coalescing returns keystrokes per store write.
func (r *Report) Coalescing() float64 {
	if r.Dispatched == 0 {
		return 0
	}
	return float64(r.Keystrokes) / float64(r.Dispatched)
}

// TestStore is a populated SQLite store for a run.
type TestStore struct {
	DB    *store.DB
	Notes []note.Note
}

// CreateTestStore opens a store at dbPath and adds numNotes empty notes.
func CreateTestStore(ctx context.Context, dbPath string, numNotes int) (*TestStore, error) {
	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer per typist may be waiting at once
	database.RawDB().SetMaxOpenConns(numNotes + 2)

	if err := database.InitSchema(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ts := &TestStore{DB: database}
	notes, err := CreateNotes(ctx, database, numNotes)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	ts.Notes = notes
	return ts, nil
}

// Close closes the test store.
func (ts *TestStore) Close() error {
	if ts.DB != nil {
		return ts.DB.Close()
	}
	return nil
}

// CreateNotes creates count notes for typists to edit.
func CreateNotes(ctx context.Context, s remote.Store, count int) ([]note.Note, error) {
	notes := make([]note.Note, 0, count)
	for i := 0; i < count; i++ {
		n := note.Note{Title: fmt.Sprintf("Load test %d", i)}
		id, err := s.Create(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("failed to create note %d: %w", i, err)
		}
		n.ID = id
		notes = append(notes, n)
	}
	return notes, nil
}

// Run starts one typist per note in notes (up to opts.Typists) and waits for
// all of them to finish and flush.
func Run(ctx context.Context, s remote.Syncer, notes []note.Note, opts Options) (*Report, error) {
	if opts.Typists <= 0 {
		return nil, fmt.Errorf("typists must be positive")
	}
	if len(notes) < opts.Typists {
		return nil, fmt.Errorf("need %d notes for %d typists, have %d", opts.Typists, opts.Typists, len(notes))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	timed := &timedSyncer{next: s}
	results := make(chan typistResult, opts.Typists)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < opts.Typists; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			results <- runTypist(ctx, timed, notes[i], opts, rng)
		}(i)
	}
	wg.Wait()
	close(results)

	report := &Report{Typists: opts.Typists, Duration: time.Since(start)}
	var firstErr error
	for r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		report.Keystrokes += r.keystrokes
		report.Dispatched += r.stats.Dispatched
		report.Completed += r.stats.Completed
		report.Failed += r.stats.Failed
		if r.lost {
			report.Lost++
		}
	}

	durations, errs := timed.results()
	report.Latency = computeLatencyStats(durations)
	report.Latency.Errors = errs

	return report, firstErr
}

type typistResult struct {
	keystrokes int
	stats      engine.Stats
	lost       bool
	err        error
}

const alphabet = "abcdefghijklmnopqrstuvwxyz      \n"

func runTypist(ctx context.Context, s remote.Syncer, n note.Note, opts Options, rng *rand.Rand) (res typistResult) {
	exec, err := executor.New(s, &executor.Config{Logger: opts.Logger})
	if err != nil {
		res.err = err
		return res
	}
	exec.Start()

	e, err := engine.New(exec, &engine.Config{Debounce: opts.Debounce, Logger: opts.Logger})
	if err != nil {
		_ = exec.Stop()
		res.err = err
		return res
	}
	defer func() {
		res.stats = e.Stats()
		_ = e.Teardown()
	}()

	if err := e.Initialize(n, nil); err != nil {
		res.err = err
		return res
	}

	content := []byte(n.Content)
	for k := 0; k < opts.Keystrokes; k++ {
		if ctx.Err() != nil {
			res.err = ctx.Err()
			return res
		}

		content = append(content, alphabet[rng.Intn(len(alphabet))])
		if err := e.HandleContentChange(string(content), n.ID); err != nil {
			res.err = err
			return res
		}
		res.keystrokes++

		pause := opts.Interval
		if pause > 0 {
			pause += time.Duration(rng.Int63n(int64(pause)/2 + 1))
		}
		time.Sleep(pause)
	}

	if err := e.Flush(ctx); err != nil {
		res.err = fmt.Errorf("note %d: %w", n.ID, err)
		return res
	}

	stored, err := s.GetByID(ctx, n.ID)
	if err != nil {
		res.err = fmt.Errorf("failed to read back note %d: %w", n.ID, err)
		return res
	}
	res.lost = stored.Content != string(content)
	return res
}

// timedSyncer records the latency of every Update.
type timedSyncer struct {
	next remote.Syncer

	mu        sync.Mutex
	durations []time.Duration
	errors    int
}

func (t *timedSyncer) Update(ctx context.Context, n note.Note) (note.ID, error) {
	start := time.Now()
	id, err := t.next.Update(ctx, n)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.durations = append(t.durations, elapsed)
	if err != nil {
		t.errors++
	}
	t.mu.Unlock()
	return id, err
}

func (t *timedSyncer) GetByID(ctx context.Context, id note.ID) (*note.Note, error) {
	return t.next.GetByID(ctx, id)
}

func (t *timedSyncer) results() ([]time.Duration, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.durations...), t.errors
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Total:     len(durations),
		Durations: sorted,
	}
}

// Print writes the report in a human-readable form.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Typists:       %d\n", r.Typists)
	fmt.Fprintf(w, "Keystrokes:    %d\n", r.Keystrokes)
	fmt.Fprintf(w, "Writes:        %d dispatched, %d completed, %d failed\n", r.Dispatched, r.Completed, r.Failed)
	fmt.Fprintf(w, "Coalescing:    %.1f keystrokes per write\n", r.Coalescing())
	fmt.Fprintf(w, "Lost edits:    %d typists\n", r.Lost)
	fmt.Fprintf(w, "Duration:      %v\n", r.Duration.Round(time.Millisecond))
	if r.Latency != nil && r.Latency.Total > 0 {
		fmt.Fprintf(w, "Write latency:\n")
		fmt.Fprintf(w, "  Min:           %v\n", r.Latency.Min)
		fmt.Fprintf(w, "  P50 (Median):  %v\n", r.Latency.P50)
		fmt.Fprintf(w, "  Mean:          %v\n", r.Latency.Mean)
		fmt.Fprintf(w, "  P95:           %v\n", r.Latency.P95)
		fmt.Fprintf(w, "  P99:           %v\n", r.Latency.P99)
		fmt.Fprintf(w, "  Max:           %v\n", r.Latency.Max)
	}
}
