// Package pipeline provides ordered, single-consumer processing of events that
// arrive from concurrent producers.
//
// A Pipeline buffers pushed events in an unbounded FIFO and runs them one at a
// time through a transform. Each result is delivered to the linked callback and
// then to every observer, in registration order, before the next event starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Errors
var (
	ErrAlreadyStarted = errors.New("pipeline: already started")
	ErrStopped        = errors.New("pipeline: stopped")
)

// StopMode selects what Stop does with events still buffered.
type StopMode int

const (
	// StopDrain processes every event pushed before Stop.
	StopDrain StopMode = iota
	// StopDiscard drops buffered events and abandons the in-flight one.
	StopDiscard
)

func (m StopMode) String() string {
	switch m {
	case StopDrain:
		return "drain"
	case StopDiscard:
		return "discard"
	default:
		return fmt.Sprintf("StopMode(%d)", int(m))
	}
}

// ParseStopMode parses "drain" or "discard". Empty selects StopDrain.
func ParseStopMode(s string) (StopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drain", "":
		return StopDrain, nil
	case "discard":
		return StopDiscard, nil
	default:
		return 0, fmt.Errorf("unknown stop mode %q", s)
	}
}

// Transform converts an event into a result. The bool reports whether there is
// a result to deliver; returning false skips delivery without an error.
type Transform[E, R any] func(ctx context.Context, event E) (R, bool, error)

// Config holds pipeline settings.
type Config struct {
	Name            string
	InitialCapacity int
	StopMode        StopMode
}

// DefaultConfig returns the defaults used when fields are zero.
func DefaultConfig() Config {
	return Config{
		Name:            "pipeline",
		InitialCapacity: 64,
		StopMode:        StopDrain,
	}
}

// Stats holds pipeline counters.
type Stats struct {
	Pending   int
	Processed int64
	Failed    int64
	Delivered int64
}

type observer[R any] struct {
	id int
	fn func(R)
}

// Pipeline serialises transform and delivery for one logical stream. A single
// worker goroutine owns the buffer's read side, so at most one event is in
// flight at a time.
type Pipeline[E, R any] struct {
	cfg       Config
	transform Transform[E, R]
	buffer    *GrowableBuffer[E]
	logger    *slog.Logger

	mu        sync.Mutex
	callback  func(R)
	observers []observer[R]
	nextID    int
	started   bool
	stopped   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	delivered atomic.Int64
}

// New creates a pipeline. It accepts pushes immediately; nothing is processed
// until Start.
func New[E, R any](cfg Config, transform Transform[E, R], logger *slog.Logger) *Pipeline[E, R] {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = defaults.InitialCapacity
	}

	return &Pipeline[E, R]{
		cfg:       cfg,
		transform: transform,
		buffer:    NewGrowableBuffer[E](cfg.InitialCapacity),
		logger:    logger.With("component", "pipeline", "pipeline", cfg.Name),
		done:      make(chan struct{}),
	}
}

// Start links callback and launches the worker. callback may be nil. When ctx
// ends the worker exits, the pipeline stops accepting pushes and buffered
// events are discarded.
func (p *Pipeline[E, R]) Start(ctx context.Context, callback func(R)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.callback = callback
	p.started = true

	go p.run()
	return nil
}

// Push enqueues an event without blocking. Returns false after Stop.
func (p *Pipeline[E, R]) Push(event E) bool {
	return p.buffer.Send(event)
}

// Observe registers fn to receive every delivered result after the linked
// callback. The returned function removes it.
func (p *Pipeline[E, R]) Observe(fn func(R)) (remove func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.observers = append(p.observers, observer[R]{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

// Stop closes the pipeline to new events and handles buffered ones according to
// the configured StopMode. It waits for the worker to exit or ctx to expire; on
// expiry the in-flight event is abandoned.
func (p *Pipeline[E, R]) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	p.buffer.Close()
	if p.cfg.StopMode == StopDiscard || !started {
		if n := p.buffer.Discard(); n > 0 {
			p.logger.Debug("discarded buffered events", "count", n)
		}
	}
	if !started {
		close(p.done)
		return nil
	}
	if p.cfg.StopMode == StopDiscard {
		p.cancel()
	}

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return fmt.Errorf("stop %s: %w", p.cfg.Name, ctx.Err())
	}
}

// Done is closed once the worker has exited.
func (p *Pipeline[E, R]) Done() <-chan struct{} {
	return p.done
}

// Stats returns pipeline counters.
func (p *Pipeline[E, R]) Stats() Stats {
	return Stats{
		Pending:   p.buffer.Len(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Delivered: p.delivered.Load(),
	}
}

func (p *Pipeline[E, R]) run() {
	// Wake a worker blocked on an empty buffer once the context ends.
	stopWake := context.AfterFunc(p.ctx, p.buffer.Close)
	defer func() {
		stopWake()
		p.buffer.Close()
		if n := p.buffer.Discard(); n > 0 {
			p.logger.Debug("discarded buffered events", "count", n, "reason", context.Cause(p.ctx))
		}
		close(p.done)
	}()

	for {
		event, ok := p.buffer.Receive()
		if !ok || p.ctx.Err() != nil {
			return
		}
		p.process(event)
	}
}

func (p *Pipeline[E, R]) process(event E) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("event handler panicked", "panic", r)
		}
	}()

	result, ok, err := p.transform(p.ctx, event)
	p.processed.Add(1)
	if err != nil {
		if errors.Is(err, context.Canceled) || p.ctx.Err() != nil {
			return
		}
		p.failed.Add(1)
		p.logger.Error("transform failed", "error", err)
		return
	}
	if !ok || p.ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	callback := p.callback
	observers := make([]observer[R], len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	if callback != nil {
		callback(result)
	}
	for _, o := range observers {
		o.fn(result)
	}
	p.delivered.Add(1)

	if elapsed := time.Since(start); elapsed > time.Second {
		p.logger.Warn("slow event", "duration", elapsed)
	}
}
