package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/binance-cache/internal/api"
	"github.com/rickgao/binance-cache/internal/cache"
	"github.com/rickgao/binance-cache/internal/config"
	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/market"
	"github.com/rickgao/binance-cache/internal/model"
	"github.com/rickgao/binance-cache/internal/pipeline"
	"github.com/rickgao/binance-cache/internal/poller"
	"github.com/rickgao/binance-cache/internal/writer"
)

// subscription is the part of every cache the runtime manages.
type subscription interface {
	Resync() bool
	Subscribed() bool
	Unsubscribe(ctx context.Context) error
	Stats() cache.Stats
	OnOutOfSync(fn func()) (remove func())
}

type handle struct {
	name   string
	symbol string
	sub    subscription
}

// recorders holds the optional writers fed by cache callbacks.
type recorders struct {
	trades  *writer.TradeWriter
	candles *writer.CandleWriter
	books   *writer.BookSnapshotWriter
}

// subscribedSymbols lists every symbol named by the cache subscriptions.
func subscribedSymbols(cfg config.CachesConfig) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = normalizeSymbol(s)
		if _, ok := seen[s]; ok || s == "" {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, b := range cfg.OrderBooks {
		add(b.Symbol)
	}
	for _, t := range cfg.Trades {
		add(t.Symbol)
	}
	for _, c := range cfg.Candles {
		add(c.Symbol)
	}
	return out
}

// startCaches subscribes every configured cache whose symbol is trading.
// Symbols the registry does not report as trading are skipped with a warning.
func startCaches(
	ctx context.Context,
	cfg *config.Config,
	client *api.Client,
	mux *connection.Multiplexer,
	registry market.Registry,
	rec recorders,
	logger *slog.Logger,
) ([]handle, error) {
	stopMode, err := pipeline.ParseStopMode(cfg.Pipeline.StopMode)
	if err != nil {
		return nil, err
	}
	pipeCfg := func(name string) pipeline.Config {
		return pipeline.Config{
			Name:            name,
			InitialCapacity: cfg.Pipeline.InitialCapacity,
			StopMode:        stopMode,
		}
	}

	tradable := func(symbol string) bool {
		if registry.IsTrading(symbol) {
			return true
		}
		logger.Warn("skipping subscription for non-trading symbol", "symbol", symbol)
		return false
	}

	var handles []handle

	for _, b := range cfg.Caches.OrderBooks {
		if !tradable(b.Symbol) {
			continue
		}
		name := fmt.Sprintf("orderbook %s/%d", strings.ToUpper(b.Symbol), b.Limit)
		c := cache.NewOrderBookCache(client, mux, cache.OrderBookConfig{
			SnapshotLimit: cfg.Caches.SnapshotLimit,
			FastUpdates:   cfg.Caches.FastDepth,
			Pipeline:      pipeCfg(name),
		}, logger)

		var cb func(*model.OrderBook)
		if rec.books != nil {
			cb = rec.books.HandleOrderBook
		}
		if err := c.Subscribe(ctx, b.Symbol, b.Limit, cb); err != nil {
			return handles, fmt.Errorf("subscribe %s: %w", name, err)
		}
		handles = append(handles, handle{name: name, symbol: b.Symbol, sub: c})
	}

	for _, t := range cfg.Caches.Trades {
		if !tradable(t.Symbol) {
			continue
		}
		name := fmt.Sprintf("trades %s/%d", strings.ToUpper(t.Symbol), t.Limit)
		c := cache.NewAggregateTradeCache(client, mux, pipeCfg(name), logger)

		var cb func([]model.AggregateTrade)
		if rec.trades != nil {
			cb = rec.trades.HandleTrades
		}
		if err := c.Subscribe(ctx, t.Symbol, t.Limit, cb); err != nil {
			return handles, fmt.Errorf("subscribe %s: %w", name, err)
		}
		handles = append(handles, handle{name: name, symbol: t.Symbol, sub: c})
	}

	for _, k := range cfg.Caches.Candles {
		if !tradable(k.Symbol) {
			continue
		}
		interval, err := model.ParseInterval(k.Interval)
		if err != nil {
			return handles, err
		}
		name := fmt.Sprintf("candles %s/%s/%d", strings.ToUpper(k.Symbol), interval, k.Limit)
		c := cache.NewCandlestickCache(client, mux, pipeCfg(name), logger)

		var cb func([]model.Candlestick)
		if rec.candles != nil {
			cb = rec.candles.HandleCandles
		}
		if err := c.Subscribe(ctx, k.Symbol, interval, k.Limit, cb); err != nil {
			return handles, fmt.Errorf("subscribe %s: %w", name, err)
		}
		handles = append(handles, handle{name: name, symbol: k.Symbol, sub: c})
	}

	for _, h := range handles {
		h.sub.OnOutOfSync(func() {
			logger.Info("cache out of sync, refetching snapshot", "cache", h.name)
		})
	}

	return handles, nil
}

// pollerTargets converts cache handles to resync targets.
func pollerTargets(handles []handle) []poller.Target {
	targets := make([]poller.Target, 0, len(handles))
	for _, h := range handles {
		targets = append(targets, poller.Target{Name: h.name, Symbol: h.symbol, Cache: h.sub})
	}
	return targets
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
