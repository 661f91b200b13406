package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resyncer is a cache whose snapshot can be refreshed on demand.
// Every cache in internal/cache satisfies it.
type Resyncer interface {
	Resync() bool
	Subscribed() bool
}

// TradingSource reports whether a symbol is trading.
type TradingSource interface {
	IsTrading(symbol string) bool
}

// Target is one cache subscription the poller keeps fresh.
type Target struct {
	Name   string // for logs, e.g. "orderbook BTCUSDT/1000"
	Symbol string
	Cache  Resyncer
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Resync interval (0 disables the poller)
	Concurrency int           // Max concurrent resync requests (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Hour,
		Concurrency: 4,
	}
}

// Stats reports totals across all cycles.
type Stats struct {
	Cycles    int64
	Requested int64
	Skipped   int64
}

// Poller periodically forces cache resynchronisation.
type Poller struct {
	cfg     Config
	symbols TradingSource
	logger  *slog.Logger

	mu      sync.Mutex
	targets []Target

	cycles, requested, skipped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. symbols may be nil, in which case every
// subscribed target is resynced.
func New(cfg Config, symbols TradingSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	return &Poller{
		cfg:     cfg,
		symbols: symbols,
		logger:  logger.With("component", "resync_poller"),
	}
}

// Add registers a target.
func (p *Poller) Add(t Target) {
	p.mu.Lock()
	p.targets = append(p.targets, t)
	p.mu.Unlock()
}

// Start begins the polling loop. It is a no-op when Interval is zero.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if p.cfg.Interval <= 0 {
		p.logger.Info("resync poller disabled")
		return nil
	}

	p.wg.Add(1)
	go p.run()

	p.logger.Info("resync poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("resync poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns cumulative counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:    p.cycles.Load(),
		Requested: p.requested.Load(),
		Skipped:   p.skipped.Load(),
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Caches fetch their own snapshot on subscribe, so the first cycle
	// waits a full interval.
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.resyncAll(p.ctx)
		}
	}
}

// resyncAll asks every subscribed, trading target to resync.
func (p *Poller) resyncAll(ctx context.Context) {
	start := time.Now()

	p.mu.Lock()
	targets := make([]Target, len(p.targets))
	copy(targets, p.targets)
	p.mu.Unlock()

	if len(targets) == 0 {
		p.logger.Debug("no targets to resync")
		return
	}

	var requested, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, t := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if !t.Cache.Subscribed() {
				skipped.Add(1)
				return nil
			}
			if p.symbols != nil && t.Symbol != "" && !p.symbols.IsTrading(strings.ToUpper(t.Symbol)) {
				p.logger.Warn("skipping resync of non-trading symbol",
					"target", t.Name,
					"symbol", t.Symbol,
				)
				skipped.Add(1)
				return nil
			}
			if !t.Cache.Resync() {
				skipped.Add(1)
				return nil
			}
			requested.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	p.cycles.Add(1)
	p.requested.Add(requested.Load())
	p.skipped.Add(skipped.Load())

	p.logger.Info("resync cycle complete",
		"targets", len(targets),
		"requested", requested.Load(),
		"skipped", skipped.Load(),
		"duration", time.Since(start),
	)
}
