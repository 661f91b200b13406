// Package retry supervises a long-running streaming operation, restarting it
// whenever it fails until it is explicitly canceled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Errors
var (
	ErrClosed   = errors.New("retry: controller closed")
	ErrPanicked = errors.New("retry: operation panicked")
)

// State is the controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCanceling
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCanceling:
		return "canceling"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition is a state change reported to the state handler.
type Transition struct {
	From State
	To   State
}

// Operation is the supervised work. It should block until ctx is canceled or
// the work fails.
type Operation func(ctx context.Context) error

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithErrorHandler sets the callback for failures other than cancellation.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) {
		c.onError = fn
	}
}

// WithStateHandler sets the callback invoked once per state transition.
func WithStateHandler(fn func(Transition)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// Controller runs one attempt of an Operation at a time. A failed attempt is
// restarted immediately in a fresh context; a nil return ends supervision.
type Controller struct {
	op      Operation
	logger  *slog.Logger
	onError func(error)
	onState func(Transition)

	mu      sync.Mutex
	state   State
	current *supervision
	closed  bool
	pending []Transition

	notifyMu sync.Mutex
	attempts atomic.Int64
}

// supervision is one Begin-to-Idle run. A run detached by Cancel while its
// error handler was executing finishes without touching controller state.
type supervision struct {
	cancel    context.CancelFunc
	done      chan struct{}
	reporting bool
}

// NewController creates an idle controller for op.
func NewController(op Operation, opts ...Option) *Controller {
	c := &Controller{
		op:     op,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "retry")
	return c
}

// Begin starts supervision. It is a no-op unless the controller is idle.
func (c *Controller) Begin() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &supervision{cancel: cancel, done: make(chan struct{})}
	c.current = r
	c.transitionLocked(StateActive)
	go c.run(ctx, r)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Cancel stops supervision and waits for the in-flight attempt to return.
// It is a no-op when idle. While the error handler runs no attempt is in
// flight, so Cancel moves to idle at once and returns; this also makes it safe
// to call from the error handler itself.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	r := c.current
	if c.state == StateIdle || r == nil {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateActive {
		c.transitionLocked(StateCanceling)
		r.cancel()
	}
	if r.reporting {
		c.transitionLocked(StateIdle)
		c.current = nil
		c.mu.Unlock()
		c.flush()
		return nil
	}
	c.mu.Unlock()
	c.flush()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancel: %w", ctx.Err())
	}
}

// Close cancels like Cancel and rejects later Begin calls. It is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.Cancel(context.Background())
}

// IsActive reports whether an operation is being supervised.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateActive || c.state == StateCanceling
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many times the operation has been invoked.
func (c *Controller) Attempts() int64 {
	return c.attempts.Load()
}

// Done returns a channel closed when the current supervision run ends.
// When idle the returned channel is already closed.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.state == StateIdle {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.current.done
}

func (c *Controller) run(ctx context.Context, r *supervision) {
	defer close(r.done)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			c.finish(r, StateCanceling)
			return
		}
		attemptCtx, cancel := context.WithCancel(ctx)
		err := c.invoke(attemptCtx)
		cancel()

		if ctx.Err() != nil {
			c.finish(r, StateCanceling)
			return
		}
		if err == nil {
			c.logger.Debug("operation completed", "attempts", attempt)
			c.finish(r, StateActive)
			return
		}
		if errors.Is(err, ErrPanicked) {
			c.logger.Error("operation panicked", "error", err)
			c.mu.Lock()
			if c.current == r {
				c.transitionLocked(StateFaulted)
			}
			c.mu.Unlock()
			c.flush()
			c.report(r, err)
			c.finish(r, StateFaulted)
			return
		}
		if errors.Is(err, context.Canceled) {
			// Canceled by something other than this controller; restart quietly.
			continue
		}

		c.logger.Warn("operation failed, restarting", "attempt", attempt, "error", err)
		c.report(r, err)
	}
}

func (c *Controller) invoke(ctx context.Context) (err error) {
	c.attempts.Add(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return c.op(ctx)
}

func (c *Controller) report(r *supervision, err error) {
	if c.onError == nil {
		return
	}
	c.mu.Lock()
	r.reporting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		r.reporting = false
		c.mu.Unlock()
	}()
	c.onError(err)
}

// finish moves to idle unless r was detached or the state was changed by
// someone else since from.
func (c *Controller) finish(r *supervision, from State) {
	r.cancel()

	c.mu.Lock()
	if c.current == r && (c.state == from || c.state == StateCanceling) {
		c.transitionLocked(StateIdle)
		c.current = nil
	}
	c.mu.Unlock()
	c.flush()
}

func (c *Controller) transitionLocked(to State) {
	if c.state == to {
		return
	}
	c.pending = append(c.pending, Transition{From: c.state, To: to})
	c.state = to
}

// flush delivers queued transitions in order. A reentrant or concurrent call
// leaves the delivery to whoever is already flushing.
func (c *Controller) flush() {
	for {
		if !c.notifyMu.TryLock() {
			return
		}
		for {
			c.mu.Lock()
			if len(c.pending) == 0 {
				c.mu.Unlock()
				break
			}
			t := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()

			if c.onState != nil {
				c.onState(t)
			}
		}
		c.notifyMu.Unlock()

		c.mu.Lock()
		empty := len(c.pending) == 0
		c.mu.Unlock()
		if empty {
			return
		}
	}
}
