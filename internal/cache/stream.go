package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/pipeline"
)

// Errors
var (
	ErrAlreadySubscribed = errors.New("cache: already subscribed")
	ErrInvalidSymbol     = errors.New("cache: invalid symbol")
	ErrInvalidLimit      = errors.New("cache: invalid limit")
	ErrInvalidInterval   = errors.New("cache: invalid interval")
)

// Subscriber registers frame handlers by channel. *connection.Multiplexer
// satisfies it.
type Subscriber interface {
	Subscribe(channel string, h connection.Handler) error
	Unsubscribe(channel string, h connection.Handler) error
}

// Stats holds cache counters. Counters accumulate across subscriptions.
type Stats struct {
	Key        string
	Channel    string
	Subscribed bool
	Sequence   int64 // last applied sequence, 0 without a snapshot
	Applied    int64
	Stale      int64
	Gaps       int64
	Snapshots  int64
	Malformed  int64
	Pipeline   pipeline.Stats
}

type eventKind int

const (
	eventFrame eventKind = iota
	eventSync
)

// event is what a subscription's pipeline consumes: a live frame or a request
// to (re)load the snapshot.
type event struct {
	kind  eventKind
	frame connection.Frame
	force bool
}

// merger holds one subscription's snapshot. Its methods only run on the
// subscription's pipeline worker.
type merger[U, V any] interface {
	decode(f connection.Frame) (U, error)
	synced() bool
	fetch(ctx context.Context) error
	check(u U) verdict
	merge(u U)
	sequence() int64
	view() V
	reset()
}

type subscription[U, V any] struct {
	key      string
	channel  string
	handler  connection.Handler
	pipe     *pipeline.Pipeline[event, V]
	merger   merger[U, V]
	callback func(V)
}

type listener[T any] struct {
	id int
	fn T
}

// stream is the subscription engine shared by the entity caches. U is the
// decoded live event and V the view delivered to callers.
type stream[U, V any] struct {
	kind   string
	sub    Subscriber
	cfg    pipeline.Config
	clone  func(V) V
	logger *slog.Logger

	mu     sync.Mutex
	active *subscription[U, V]
	view   V
	seq    int64

	lmu       sync.Mutex
	updates   []listener[func(V)]
	outOfSync []listener[func()]
	nextID    int

	applied   atomic.Int64
	stale     atomic.Int64
	gaps      atomic.Int64
	snapshots atomic.Int64
	malformed atomic.Int64
}

func newStream[U, V any](kind string, sub Subscriber, cfg pipeline.Config, clone func(V) V, logger *slog.Logger) *stream[U, V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &stream[U, V]{
		kind:   kind,
		sub:    sub,
		cfg:    cfg,
		clone:  clone,
		logger: logger.With("component", kind),
	}
}

// subscribe starts a subscription keyed by key. Subscribing again with the
// same key is a no-op; a different key fails until Unsubscribe.
func (s *stream[U, V]) subscribe(ctx context.Context, key, channel string, m merger[U, V], cb func(V)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if s.active.key == key {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, s.active.key)
	}

	cfg := s.cfg
	cfg.Name = s.kind + ":" + key

	sub := &subscription[U, V]{key: key, channel: channel, merger: m, callback: cb}
	sub.pipe = pipeline.New(cfg, func(ctx context.Context, ev event) (V, bool, error) {
		return s.process(ctx, sub, ev)
	}, s.logger)
	sub.handler = connection.NewHandler(func(f connection.Frame) {
		sub.pipe.Push(event{kind: eventFrame, frame: f})
	})

	// The snapshot load is queued ahead of any frame.
	sub.pipe.Push(event{kind: eventSync})

	if err := s.sub.Subscribe(channel, sub.handler); err != nil {
		sub.pipe.Stop(context.Background())
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if err := sub.pipe.Start(ctx, func(v V) { s.deliver(sub, v) }); err != nil {
		s.sub.Unsubscribe(channel, sub.handler)
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s.active = sub
	go s.watch(sub)
	s.logger.Info("subscribed", "key", key, "channel", channel)
	return nil
}

// watch ends sub when its worker exits on its own, which happens once the
// context passed to Subscribe is done.
func (s *stream[U, V]) watch(sub *subscription[U, V]) {
	<-sub.pipe.Done()

	s.mu.Lock()
	if s.active != sub {
		s.mu.Unlock()
		return
	}
	s.active = nil
	var zero V
	s.view = zero
	s.seq = 0
	s.mu.Unlock()

	if err := s.sub.Unsubscribe(sub.channel, sub.handler); err != nil {
		s.logger.Warn("unsubscribe failed", "channel", sub.channel, "error", err)
	}
	s.logger.Info("subscription ended", "key", sub.key, "channel", sub.channel)
}

// Unsubscribe detaches from the channel and stops processing. Buffered events
// are drained or discarded according to the pipeline stop mode. It is a no-op
// when not subscribed.
func (s *stream[U, V]) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	sub := s.active
	s.active = nil
	var zero V
	s.view = zero
	s.seq = 0
	s.mu.Unlock()

	if sub == nil {
		return nil
	}

	if err := s.sub.Unsubscribe(sub.channel, sub.handler); err != nil {
		s.logger.Warn("unsubscribe failed", "channel", sub.channel, "error", err)
	}
	if err := sub.pipe.Stop(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.key, err)
	}
	s.logger.Info("unsubscribed", "key", sub.key, "channel", sub.channel)
	return nil
}

// View returns a copy of the last delivered view, or the zero value before the
// first snapshot.
func (s *stream[U, V]) View() V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.view)
}

// Resync queues a forced snapshot reload. Returns false when not subscribed.
func (s *stream[U, V]) Resync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	return s.active.pipe.Push(event{kind: eventSync, force: true})
}

// Subscribed reports whether a subscription is active.
func (s *stream[U, V]) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// OnUpdate registers fn to receive every new view after the subscription
// callback. Listeners run in registration order on the pipeline worker and
// must not block. The returned function removes fn.
func (s *stream[U, V]) OnUpdate(fn func(V)) (remove func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.updates = append(s.updates, listener[func(V)]{id: id, fn: fn})
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		s.updates = removeListener(s.updates, id)
	}
}

// OnOutOfSync registers fn to be called when a gap is detected, before the
// fresh snapshot is fetched, and again when a gap persists after the refetch.
func (s *stream[U, V]) OnOutOfSync(fn func()) (remove func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.outOfSync = append(s.outOfSync, listener[func()]{id: id, fn: fn})
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		s.outOfSync = removeListener(s.outOfSync, id)
	}
}

// Stats returns cache counters.
func (s *stream[U, V]) Stats() Stats {
	s.mu.Lock()
	st := Stats{Sequence: s.seq}
	if sub := s.active; sub != nil {
		st.Key = sub.key
		st.Channel = sub.channel
		st.Subscribed = true
		st.Pipeline = sub.pipe.Stats()
	}
	s.mu.Unlock()

	st.Applied = s.applied.Load()
	st.Stale = s.stale.Load()
	st.Gaps = s.gaps.Load()
	st.Snapshots = s.snapshots.Load()
	st.Malformed = s.malformed.Load()
	return st
}

// process is the pipeline transform. It runs on the subscription's worker.
func (s *stream[U, V]) process(ctx context.Context, sub *subscription[U, V], ev event) (V, bool, error) {
	var zero V
	m := sub.merger

	if ev.kind == eventSync {
		if m.synced() && !ev.force {
			return zero, false, nil
		}
		if err := s.fetch(ctx, sub); err != nil {
			return zero, false, err
		}
		return m.view(), true, nil
	}

	u, err := m.decode(ev.frame)
	if err != nil {
		s.malformed.Add(1)
		return zero, false, fmt.Errorf("%s: %w", ev.frame.Channel, err)
	}

	changed := false
	if !m.synced() {
		if err := s.fetch(ctx, sub); err != nil {
			return zero, false, err
		}
		changed = true
	}

	for retried := false; ; retried = true {
		switch m.check(u) {
		case verdictApply:
			m.merge(u)
			s.applied.Add(1)
			return m.view(), true, nil

		case verdictStale:
			s.stale.Add(1)
			if changed {
				return m.view(), true, nil
			}
			return zero, false, nil

		case verdictGap:
			s.gaps.Add(1)
			if retried {
				// The fresh snapshot is already behind the stream; the next
				// frame starts over.
				s.logger.Warn("gap persists after resync, dropping snapshot",
					"key", sub.key, "sequence", m.sequence())
				s.notifyOutOfSync()
				m.reset()
				return zero, false, nil
			}
			s.logger.Warn("sequence gap, resyncing", "key", sub.key, "sequence", m.sequence())
			s.notifyOutOfSync()
			if err := s.fetch(ctx, sub); err != nil {
				m.reset()
				return zero, false, err
			}
			changed = true
		}
	}
}

func (s *stream[U, V]) fetch(ctx context.Context, sub *subscription[U, V]) error {
	if err := sub.merger.fetch(ctx); err != nil {
		return fmt.Errorf("snapshot %s: %w", sub.key, err)
	}
	s.snapshots.Add(1)
	s.logger.Debug("snapshot loaded", "key", sub.key, "sequence", sub.merger.sequence())
	return nil
}

// deliver publishes v if sub is still the active subscription. A draining
// pipeline from an earlier subscription does not overwrite the view. The
// stored view is a private copy so callers cannot mutate it.
func (s *stream[U, V]) deliver(sub *subscription[U, V], v V) {
	s.mu.Lock()
	if s.active != sub {
		s.mu.Unlock()
		return
	}
	s.view = s.clone(v)
	s.seq = sub.merger.sequence()
	s.mu.Unlock()

	if sub.callback != nil {
		sub.callback(v)
	}

	s.lmu.Lock()
	updates := make([]listener[func(V)], len(s.updates))
	copy(updates, s.updates)
	s.lmu.Unlock()

	for _, l := range updates {
		l.fn(v)
	}
}

func (s *stream[U, V]) notifyOutOfSync() {
	s.lmu.Lock()
	listeners := make([]listener[func()], len(s.outOfSync))
	copy(listeners, s.outOfSync)
	s.lmu.Unlock()

	for _, l := range listeners {
		l.fn()
	}
}

func removeListener[T any](ls []listener[T], id int) []listener[T] {
	for i, l := range ls {
		if l.id == id {
			return append(ls[:i:i], ls[i+1:]...)
		}
	}
	return ls
}
