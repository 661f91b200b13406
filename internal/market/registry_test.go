package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/binance-cache/internal/model"
)

type fakeSource struct {
	mu      sync.Mutex
	symbols []model.Symbol
	err     error
	calls   int
	lastArg []string
}

func (f *fakeSource) GetSymbols(_ context.Context, symbols ...string) ([]model.Symbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastArg = symbols
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Symbol, len(f.symbols))
	copy(out, f.symbols)
	return out, nil
}

func (f *fakeSource) set(symbols ...model.Symbol) {
	f.mu.Lock()
	f.symbols = symbols
	f.mu.Unlock()
}

func sym(name string, status model.SymbolStatus) model.Symbol {
	return model.Symbol{Name: name, Status: status, BaseAsset: name[:3], QuoteAsset: name[3:]}
}

func drain(ch <-chan SymbolChange) []SymbolChange {
	var out []SymbolChange
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestState_UpsertAndGet(t *testing.T) {
	s := newState()
	s.upsertSymbol(sym("btcusdt", model.StatusTrading))

	got, ok := s.getSymbol("BTCUSDT")
	if !ok {
		t.Fatal("symbol not found")
	}
	if got.Name != "BTCUSDT" {
		t.Errorf("Name = %q, want %q", got.Name, "BTCUSDT")
	}
	if _, ok := s.getSymbol("btcUSDT"); !ok {
		t.Error("lookup should be case insensitive")
	}
	if _, ok := s.getSymbol("ETHUSDT"); ok {
		t.Error("expected ETHUSDT not found")
	}
}

func TestState_TradingSet(t *testing.T) {
	s := newState()
	s.upsertSymbol(sym("BTCUSDT", model.StatusTrading))
	s.upsertSymbol(sym("ETHUSDT", model.StatusTrading))
	s.upsertSymbol(sym("LUNUSDT", model.StatusBreak))

	if got := len(s.getTradingSymbols()); got != 2 {
		t.Errorf("len(trading) = %d, want 2", got)
	}
	if s.isTrading("LUNUSDT") {
		t.Error("LUNUSDT should not be trading")
	}

	s.upsertSymbol(sym("ETHUSDT", model.StatusHalt))
	if s.isTrading("ETHUSDT") {
		t.Error("ETHUSDT should leave the trading set after a halt")
	}

	s.mu.Lock()
	s.removeSymbolLocked("BTCUSDT")
	s.mu.Unlock()
	if s.isTrading("BTCUSDT") {
		t.Error("removed symbol should not be trading")
	}
}

func TestState_ReturnedSymbolIsCopy(t *testing.T) {
	s := newState()
	s.upsertSymbol(sym("BTCUSDT", model.StatusTrading))

	got, _ := s.getSymbol("BTCUSDT")
	got.Status = model.StatusHalt

	if !s.isTrading("BTCUSDT") {
		t.Error("mutating a returned symbol changed registry state")
	}
}

func TestState_NotifyChangeDropsOldest(t *testing.T) {
	s := newState()
	for i := 0; i < ChangeBufferSize+5; i++ {
		s.notifyChange(SymbolChange{Symbol: "BTCUSDT", EventType: EventListed})
	}
	if got := len(s.changes); got != ChangeBufferSize {
		t.Errorf("len(changes) = %d, want %d", got, ChangeBufferSize)
	}
}

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry(Config{}, &fakeSource{}, nil).(*registryImpl)

	if r.cfg.ReconcileInterval != DefaultConfig().ReconcileInterval {
		t.Errorf("ReconcileInterval = %v, want default", r.cfg.ReconcileInterval)
	}
	if r.cfg.InitialLoadTimeout != DefaultConfig().InitialLoadTimeout {
		t.Errorf("InitialLoadTimeout = %v, want default", r.cfg.InitialLoadTimeout)
	}
}

func TestRegistry_StartLoadsSymbols(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading), sym("ETHUSDT", model.StatusBreak))

	r := NewRegistry(DefaultConfig(), src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)

	if !r.IsTrading("btcusdt") {
		t.Error("BTCUSDT should be trading")
	}
	if r.IsTrading("ETHUSDT") {
		t.Error("ETHUSDT should not be trading")
	}
	if _, ok := r.GetSymbol("ETHUSDT"); !ok {
		t.Error("ETHUSDT should be known")
	}
	if got := len(r.GetTradingSymbols()); got != 1 {
		t.Errorf("len(GetTradingSymbols()) = %d, want 1", got)
	}

	changes := drain(r.SubscribeChanges())
	if len(changes) != 2 {
		t.Fatalf("len(changes) = %d, want 2", len(changes))
	}
	for _, c := range changes {
		if c.EventType != EventListed {
			t.Errorf("EventType = %q, want %q", c.EventType, EventListed)
		}
		if c.Info == nil {
			t.Errorf("%s: Info is nil", c.Symbol)
		}
	}
}

func TestRegistry_StartFails(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	r := NewRegistry(DefaultConfig(), src, nil)

	err := r.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, src.err) {
		t.Errorf("error = %v, want wrapped %v", err, src.err)
	}
}

func TestRegistry_Reconcile(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading), sym("ETHUSDT", model.StatusTrading))

	r := NewRegistry(DefaultConfig(), src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)
	drain(r.SubscribeChanges())

	src.set(sym("BTCUSDT", model.StatusHalt), sym("BNBUSDT", model.StatusTrading))
	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	byType := make(map[string]SymbolChange)
	for _, c := range drain(r.SubscribeChanges()) {
		byType[c.EventType] = c
	}

	if c, ok := byType[EventStatusChange]; !ok {
		t.Error("missing status_change event")
	} else {
		if c.Symbol != "BTCUSDT" {
			t.Errorf("status_change Symbol = %q, want BTCUSDT", c.Symbol)
		}
		if c.OldStatus != model.StatusTrading || c.NewStatus != model.StatusHalt {
			t.Errorf("status_change %s -> %s, want TRADING -> HALT", c.OldStatus, c.NewStatus)
		}
	}
	if c, ok := byType[EventListed]; !ok || c.Symbol != "BNBUSDT" {
		t.Errorf("listed event = %+v, want BNBUSDT", c)
	}
	if c, ok := byType[EventDelisted]; !ok {
		t.Error("missing delisted event")
	} else {
		if c.Symbol != "ETHUSDT" {
			t.Errorf("delisted Symbol = %q, want ETHUSDT", c.Symbol)
		}
		if c.Info != nil {
			t.Error("delisted Info should be nil")
		}
	}

	if r.IsTrading("BTCUSDT") {
		t.Error("BTCUSDT should be halted")
	}
	if _, ok := r.GetSymbol("ETHUSDT"); ok {
		t.Error("ETHUSDT should be forgotten")
	}
}

func TestRegistry_ReconcileNoChanges(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading))

	r := NewRegistry(DefaultConfig(), src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)
	drain(r.SubscribeChanges())

	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if changes := drain(r.SubscribeChanges()); len(changes) != 0 {
		t.Errorf("len(changes) = %d, want 0", len(changes))
	}
}

func TestRegistry_RestrictedSkipsDelistings(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading), sym("ETHUSDT", model.StatusTrading))

	cfg := DefaultConfig()
	cfg.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	r := NewRegistry(cfg, src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)
	drain(r.SubscribeChanges())

	if len(src.lastArg) != 2 {
		t.Errorf("source called with %v, want restricted names", src.lastArg)
	}

	src.set(sym("BTCUSDT", model.StatusTrading))
	if err := r.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	for _, c := range drain(r.SubscribeChanges()) {
		if c.EventType == EventDelisted {
			t.Errorf("unexpected delisting of %s", c.Symbol)
		}
	}
	if _, ok := r.GetSymbol("ETHUSDT"); !ok {
		t.Error("ETHUSDT should still be known")
	}
}

func TestRegistry_ReconcileErrorKeepsState(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading))

	r := NewRegistry(DefaultConfig(), src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)

	src.mu.Lock()
	src.err = errors.New("unavailable")
	src.mu.Unlock()

	if err := r.Reconcile(ctx); err == nil {
		t.Fatal("expected error")
	}
	if !r.IsTrading("BTCUSDT") {
		t.Error("failed reconcile should keep previous state")
	}
}

func TestRegistry_BackgroundReconcile(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading))

	cfg := DefaultConfig()
	cfg.ReconcileInterval = 10 * time.Millisecond
	r := NewRegistry(cfg, src, nil)
	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(ctx)

	src.set(sym("BTCUSDT", model.StatusBreak))

	deadline := time.Now().Add(2 * time.Second)
	for r.IsTrading("BTCUSDT") {
		if time.Now().After(deadline) {
			t.Fatal("background reconcile did not apply the status change")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegistry_Stop(t *testing.T) {
	src := &fakeSource{}
	src.set(sym("BTCUSDT", model.StatusTrading))

	r := NewRegistry(DefaultConfig(), src, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestRegistry_StopWithoutStart(t *testing.T) {
	r := NewRegistry(DefaultConfig(), &fakeSource{}, nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
