// Package ratelimit throttles outbound REST calls against the venue's
// request-weight quotas.
//
// A Limiter holds any number of buckets keyed by window duration (typically a
// long sustained window and a short burst window). Every bucket is a sliding
// log of admitted weight, so capacity frees continuously as old usage ages out
// of the window instead of at a fixed reset boundary.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Errors
var (
	ErrInvalidBucket         = errors.New("ratelimit: invalid bucket")
	ErrInvalidWeight         = errors.New("ratelimit: weight must be >= 1")
	ErrWeightExceedsCapacity = errors.New("ratelimit: weight exceeds bucket capacity")
)

// Bucket describes one rolling window quota.
type Bucket struct {
	Duration time.Duration
	MaxCount int
}

// DefaultBuckets returns the venue's published REST quotas:
// 1200 weight per minute sustained and 10 requests per second burst.
func DefaultBuckets() []Bucket {
	return []Bucket{
		{Duration: time.Minute, MaxCount: 1200},
		{Duration: time.Second, MaxCount: 10},
	}
}

// usage is a single admitted acquisition.
type usage struct {
	at     time.Time
	weight int
}

// window is the sliding log behind a Bucket.
type window struct {
	Bucket
	log  []usage // oldest first
	used int
}

// prune drops usage that has aged out of the window.
func (w *window) prune(now time.Time) {
	n := 0
	for n < len(w.log) && now.Sub(w.log[n].at) >= w.Duration {
		w.used -= w.log[n].weight
		n++
	}
	if n > 0 {
		w.log = append(w.log[:0], w.log[n:]...)
	}
}

// delay returns how long a caller must wait before weight can be admitted.
func (w *window) delay(now time.Time, weight int) time.Duration {
	w.prune(now)
	excess := w.used + weight - w.MaxCount
	if excess <= 0 {
		return 0
	}
	for _, u := range w.log {
		excess -= u.weight
		if excess <= 0 {
			return u.at.Add(w.Duration).Sub(now)
		}
	}
	return w.Duration
}

func (w *window) record(now time.Time, weight int) {
	w.log = append(w.log, usage{at: now, weight: weight})
	w.used += weight
}

// Limiter admits weighted requests once every configured bucket allows them.
// It is safe for concurrent use; waiting callers are admitted in FIFO order.
type Limiter struct {
	mu      sync.Mutex
	windows map[time.Duration]*window
	enabled bool

	// gate serialises admission so a heavy caller cannot be overtaken forever.
	gate *semaphore.Weighted

	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithBuckets configures the given buckets at construction.
// Invalid buckets are logged and skipped.
func WithBuckets(buckets ...Bucket) Option {
	return func(l *Limiter) {
		for _, b := range buckets {
			if err := l.Configure(b.Duration, b.MaxCount); err != nil {
				l.logger.Warn("skipping rate limit bucket", "duration", b.Duration, "max_count", b.MaxCount, "error", err)
			}
		}
	}
}

// New creates an enabled Limiter without buckets unless WithBuckets is given.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[time.Duration]*window),
		enabled: true,
		gate:    semaphore.NewWeighted(1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure registers or replaces the bucket for duration.
// A maxCount of 0 removes the bucket.
func (l *Limiter) Configure(duration time.Duration, maxCount int) error {
	if duration <= 0 {
		return fmt.Errorf("%w: duration %s", ErrInvalidBucket, duration)
	}
	if maxCount < 0 {
		return fmt.Errorf("%w: max count %d", ErrInvalidBucket, maxCount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if maxCount == 0 {
		delete(l.windows, duration)
		return nil
	}

	if w, ok := l.windows[duration]; ok {
		// Keep recorded usage so a tighter quota takes effect immediately.
		w.MaxCount = maxCount
		return nil
	}
	l.windows[duration] = &window{Bucket: Bucket{Duration: duration, MaxCount: maxCount}}
	return nil
}

// Buckets returns the configured buckets ordered by duration.
func (l *Limiter) Buckets() []Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	buckets := make([]Bucket, 0, len(l.windows))
	for _, w := range l.windows {
		buckets = append(buckets, w.Bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Duration < buckets[j].Duration
	})
	return buckets
}

// SetEnabled toggles limiting. A disabled limiter admits everything.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Enabled reports whether limiting is active.
func (l *Limiter) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Acquire blocks until weight can be admitted by every bucket, then records it.
// It fails immediately when weight can never be admitted.
func (l *Limiter) Acquire(ctx context.Context, weight int) error {
	if weight < 1 {
		return ErrInvalidWeight
	}
	if err := l.checkCapacity(weight); err != nil {
		return err
	}

	if err := l.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.gate.Release(1)

	for {
		wait, err := l.tryAdmit(weight)
		if err != nil || wait <= 0 {
			return err
		}

		l.logger.Debug("rate limit delay", "weight", weight, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Limiter) checkCapacity(weight int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkCapacityLocked(weight)
}

func (l *Limiter) checkCapacityLocked(weight int) error {
	if !l.enabled {
		return nil
	}
	for _, w := range l.windows {
		if weight > w.MaxCount {
			return fmt.Errorf("%w: weight %d > %d per %s", ErrWeightExceedsCapacity, weight, w.MaxCount, w.Duration)
		}
	}
	return nil
}

// tryAdmit records weight when every bucket allows it now, otherwise returns
// the longest delay any bucket requires.
func (l *Limiter) tryAdmit(weight int) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || len(l.windows) == 0 {
		return 0, nil
	}
	// Buckets may have been reconfigured while waiting.
	if err := l.checkCapacityLocked(weight); err != nil {
		return 0, err
	}

	now := time.Now()
	var wait time.Duration
	for _, w := range l.windows {
		if d := w.delay(now, weight); d > wait {
			wait = d
		}
	}
	if wait > 0 {
		return wait, nil
	}

	for _, w := range l.windows {
		w.record(now, weight)
	}
	return 0, nil
}
