package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/binance-cache/internal/model"
)

// Config holds Symbol Registry configuration.
type Config struct {
	ReconcileInterval  time.Duration
	InitialLoadTimeout time.Duration
	// Symbols restricts tracking to these names. Empty tracks the whole
	// exchange; only then can delistings be detected.
	Symbols []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval:  15 * time.Minute,
		InitialLoadTimeout: time.Minute,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg    Config
	source SymbolSource
	logger *slog.Logger

	state *registryState

	// serialises syncs between the background loop and Reconcile callers
	syncMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new Symbol Registry.
func NewRegistry(cfg Config, source SymbolSource, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultConfig().ReconcileInterval
	}
	if cfg.InitialLoadTimeout <= 0 {
		cfg.InitialLoadTimeout = DefaultConfig().InitialLoadTimeout
	}

	return &registryImpl{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "symbol_registry"),
		state:  newState(),
	}
}

// Start loads symbols and begins background reconciliation.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	// Initial sync (blocking).
	loadCtx, cancel := context.WithTimeout(r.ctx, r.cfg.InitialLoadTimeout)
	err := r.initialSync(loadCtx)
	cancel()
	if err != nil {
		r.cancel()
		return fmt.Errorf("initial symbol sync: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconciliationLoop(r.ctx)
	}()

	r.state.mu.RLock()
	trading, total := len(r.state.tradingSet), len(r.state.symbols)
	r.state.mu.RUnlock()
	r.logger.Info("symbol registry started",
		"trading_symbols", trading,
		"total_symbols", total,
	)

	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("symbol registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetTradingSymbols returns all symbols currently trading.
func (r *registryImpl) GetTradingSymbols() []model.Symbol {
	return r.state.getTradingSymbols()
}

// GetSymbol returns a specific symbol by name.
func (r *registryImpl) GetSymbol(name string) (model.Symbol, bool) {
	return r.state.getSymbol(name)
}

// IsTrading reports whether name is known and trading.
func (r *registryImpl) IsTrading(name string) bool {
	return r.state.isTrading(name)
}

// SubscribeChanges returns a channel of symbol state changes.
func (r *registryImpl) SubscribeChanges() <-chan SymbolChange {
	return r.state.changes
}
