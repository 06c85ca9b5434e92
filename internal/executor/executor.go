// Package executor runs note sync round trips off the editing goroutine.
//
// An Executor is a stateless request/response channel: the sync engine
// submits one Request, the executor updates the note in the remote store,
// reads the stored note back, and delivers exactly one Outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notesync/notesync/internal/remote"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("executor stopped")

// Config holds executor configuration.
type Config struct {
	// Timeout bounds one full round trip (update + read-back)
	Timeout time.Duration

	// Logger for executor activity
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		Logger:  zap.NewNop(),
	}
}

// Executor performs sync round trips on its own goroutine.
type Executor struct {
	remote remote.Syncer
	config *Config
	logger *zap.Logger

	requests chan Request
	outcomes chan Outcome

	mu      sync.Mutex
	running bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an executor backed by the given store. Call Start before Submit.
func New(r remote.Syncer, config *Config) (*Executor, error) {
	if r == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		remote:   r,
		config:   config,
		logger:   config.Logger.Named("executor"),
		requests: make(chan Request, 1),
		outcomes: make(chan Outcome, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running || e.stopped {
		return
	}
	e.running = true

	e.wg.Add(1)
	go e.run()
}

// Submit hands a request to the worker. It does not wait for the outcome.
func (e *Executor) Submit(req Request) error {
	if req.Type != TypeSync {
		return fmt.Errorf("unsupported message type %q", req.Type)
	}

	select {
	case <-e.ctx.Done():
		return ErrStopped
	default:
	}

	select {
	case e.requests <- req:
		return nil
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// Outcomes returns the channel that delivers one Outcome per submitted
// Request. It is closed after Stop.
func (e *Executor) Outcomes() <-chan Outcome {
	return e.outcomes
}

// Stop cancels any in-flight round trip, waits for the worker to exit, and
// closes the Outcomes channel.
func (e *Executor) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	e.cancel()
	if wasRunning {
		e.wg.Wait()
	}
	close(e.outcomes)

	e.logger.Debug("executor stopped")
	return nil
}

// run is the worker loop.
func (e *Executor) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return

		case req := <-e.requests:
			out := e.roundTrip(req)

			select {
			case e.outcomes <- out:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

// roundTrip writes the note and reads back the stored copy. It never panics
// into the caller: any failure becomes a syncError outcome.
func (e *Executor) roundTrip(req Request) (out Outcome) {
	log := e.logger.With(
		zap.String("request_id", req.RequestID),
		zap.Int64("note_id", int64(req.Note.ID)),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync round trip panicked", zap.Any("panic", r))
			out = failed(req, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(e.ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()

	id, err := e.remote.Update(ctx, req.Note)
	if err != nil {
		log.Warn("sync update failed", zap.Error(err))
		return failed(req, err.Error())
	}

	confirmed, err := e.remote.GetByID(ctx, id)
	if err != nil {
		log.Warn("sync read-back failed", zap.Error(err))
		return failed(req, err.Error())
	}

	log.Debug("sync round trip complete", zap.Duration("elapsed", time.Since(start)))
	return completed(req, confirmed)
}
