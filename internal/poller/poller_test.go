package poller

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// mockCache counts resync requests.
type mockCache struct {
	subscribed bool
	accept     bool
	calls      atomic.Int32
	inFlight   *atomic.Int32
	maxSeen    *atomic.Int32
	delay      time.Duration
}

func (m *mockCache) Subscribed() bool { return m.subscribed }

func (m *mockCache) Resync() bool {
	m.calls.Add(1)
	if m.inFlight != nil {
		current := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			old := m.maxSeen.Load()
			if current <= old || m.maxSeen.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(m.delay)
	}
	return m.accept
}

type mockSymbols map[string]bool

func (m mockSymbols) IsTrading(symbol string) bool { return m[symbol] }

func TestPoller_ResyncAll(t *testing.T) {
	book := &mockCache{subscribed: true, accept: true}
	trades := &mockCache{subscribed: true, accept: true}
	idle := &mockCache{subscribed: false, accept: true}

	p := New(Config{Interval: time.Hour, Concurrency: 2}, nil, nil)
	p.Add(Target{Name: "orderbook BTCUSDT", Symbol: "BTCUSDT", Cache: book})
	p.Add(Target{Name: "trades BTCUSDT", Symbol: "BTCUSDT", Cache: trades})
	p.Add(Target{Name: "candles ETHUSDT", Symbol: "ETHUSDT", Cache: idle})

	p.resyncAll(context.Background())

	if got := book.calls.Load(); got != 1 {
		t.Errorf("book resyncs = %d, want 1", got)
	}
	if got := trades.calls.Load(); got != 1 {
		t.Errorf("trades resyncs = %d, want 1", got)
	}
	if got := idle.calls.Load(); got != 0 {
		t.Errorf("unsubscribed cache resyncs = %d, want 0", got)
	}

	stats := p.Stats()
	if stats.Cycles != 1 || stats.Requested != 2 || stats.Skipped != 1 {
		t.Errorf("Stats() = %+v, want 1 cycle, 2 requested, 1 skipped", stats)
	}
}

func TestPoller_SkipsNonTradingSymbols(t *testing.T) {
	btc := &mockCache{subscribed: true, accept: true}
	luna := &mockCache{subscribed: true, accept: true}

	symbols := mockSymbols{"BTCUSDT": true}
	p := New(Config{Interval: time.Hour}, symbols, nil)
	p.Add(Target{Name: "orderbook btcusdt", Symbol: "btcusdt", Cache: btc})
	p.Add(Target{Name: "orderbook LUNAUSDT", Symbol: "LUNAUSDT", Cache: luna})

	p.resyncAll(context.Background())

	if got := btc.calls.Load(); got != 1 {
		t.Errorf("trading symbol resyncs = %d, want 1", got)
	}
	if got := luna.calls.Load(); got != 0 {
		t.Errorf("halted symbol resyncs = %d, want 0", got)
	}
}

func TestPoller_RejectedResyncCountsAsSkipped(t *testing.T) {
	busy := &mockCache{subscribed: true, accept: false}

	p := New(Config{Interval: time.Hour}, nil, nil)
	p.Add(Target{Name: "orderbook BTCUSDT", Cache: busy})
	p.resyncAll(context.Background())

	if stats := p.Stats(); stats.Requested != 0 || stats.Skipped != 1 {
		t.Errorf("Stats() = %+v, want 0 requested, 1 skipped", stats)
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var inFlight, maxSeen atomic.Int32

	p := New(Config{Interval: time.Hour, Concurrency: 3}, nil, nil)
	for i := 0; i < 12; i++ {
		p.Add(Target{
			Name: fmt.Sprintf("target-%d", i),
			Cache: &mockCache{
				subscribed: true,
				accept:     true,
				inFlight:   &inFlight,
				maxSeen:    &maxSeen,
				delay:      20 * time.Millisecond,
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.resyncAll(ctx)

	if got := maxSeen.Load(); got > 3 {
		t.Errorf("maxInFlight = %d, want <= 3", got)
	}
	if got := p.Stats().Requested; got != 12 {
		t.Errorf("Requested = %d, want 12", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	cache := &mockCache{subscribed: true, accept: true}

	p := New(Config{Interval: 20 * time.Millisecond, Concurrency: 1}, nil, nil)
	p.Add(Target{Name: "orderbook BTCUSDT", Cache: cache})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for cache.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache was never resynced")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestPoller_DisabledWithZeroInterval(t *testing.T) {
	cache := &mockCache{subscribed: true, accept: true}

	p := New(Config{}, nil, nil)
	p.Add(Target{Name: "orderbook BTCUSDT", Cache: cache})

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := cache.calls.Load(); got != 0 {
		t.Errorf("resyncs = %d, want 0 when disabled", got)
	}
}
