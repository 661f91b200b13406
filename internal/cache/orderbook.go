package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/binance-cache/internal/api"
	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/model"
	"github.com/rickgao/binance-cache/internal/pipeline"
)

// DepthFetcher loads order book snapshots. *api.Client satisfies it.
type DepthFetcher interface {
	GetOrderBook(ctx context.Context, symbol string, limit int) (*model.OrderBook, error)
}

// OrderBookConfig holds order book cache settings.
type OrderBookConfig struct {
	SnapshotLimit int  // REST depth loaded for diff-depth subscriptions
	FastUpdates   bool // 100ms stream updates instead of 1000ms
	Pipeline      pipeline.Config
}

// DefaultOrderBookConfig returns default order book settings.
func DefaultOrderBookConfig() OrderBookConfig {
	return OrderBookConfig{
		SnapshotLimit: 1000,
		Pipeline:      pipeline.DefaultConfig(),
	}
}

// OrderBookCache maintains one symbol's order book.
//
// With limit 0 it follows the diff-depth stream on top of a REST snapshot,
// using the update id range of each event as its sequence. With limit 5, 10 or
// 20 it follows the partial depth stream, where each frame replaces the book.
type OrderBookCache struct {
	*stream[bookUpdate, *model.OrderBook]
	fetcher DepthFetcher
	cfg     OrderBookConfig
}

// NewOrderBookCache creates an order book cache.
func NewOrderBookCache(fetcher DepthFetcher, sub Subscriber, cfg OrderBookConfig, logger *slog.Logger) *OrderBookCache {
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = DefaultOrderBookConfig().SnapshotLimit
	}
	return &OrderBookCache{
		stream:  newStream[bookUpdate]("orderbook_cache", sub, cfg.Pipeline, (*model.OrderBook).Clone, logger),
		fetcher: fetcher,
		cfg:     cfg,
	}
}

// Subscribe starts following symbol. limit 0 selects the full diff-depth book;
// 5, 10 or 20 select a partial book of that many levels. cb, if not nil,
// receives every new view before OnUpdate listeners. ctx bounds the
// subscription's processing.
func (c *OrderBookCache) Subscribe(ctx context.Context, symbol string, limit int, cb func(*model.OrderBook)) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if limit != 0 && !api.ValidPartialDepth(limit) {
		return fmt.Errorf("%w: depth %d", ErrInvalidLimit, limit)
	}

	m := &bookMerger{
		fetcher: c.fetcher,
		symbol:  symbol,
		limit:   limit,
		depth:   c.cfg.SnapshotLimit,
	}
	channel := api.DepthChannel(symbol, c.cfg.FastUpdates)
	if limit > 0 {
		m.depth = limit
		channel = api.PartialDepthChannel(symbol, limit, c.cfg.FastUpdates)
	}

	key := fmt.Sprintf("%s/%d", symbol, limit)
	return c.subscribe(ctx, key, channel, m, cb)
}

// bookUpdate is either a diff or, for partial depth, a whole book.
type bookUpdate struct {
	diff model.DepthUpdate
	full *model.OrderBook
}

type bookMerger struct {
	fetcher DepthFetcher
	symbol  string
	limit   int // 0 for diff depth
	depth   int // REST snapshot depth
	book    *model.OrderBook
}

func (m *bookMerger) decode(f connection.Frame) (bookUpdate, error) {
	if m.limit > 0 {
		book, err := api.DecodePartialDepth(m.symbol, f.Data)
		if err != nil {
			return bookUpdate{}, err
		}
		book.UpdatedAt = f.ReceivedAt.UnixMicro()
		return bookUpdate{full: book}, nil
	}

	diff, err := api.DecodeDepthUpdate(f.Data)
	if err != nil {
		return bookUpdate{}, err
	}
	diff.ReceivedAt = f.ReceivedAt.UnixMicro()
	return bookUpdate{diff: diff}, nil
}

// synced is always true for partial depth: every frame is a complete book, so
// no snapshot is needed before applying one.
func (m *bookMerger) synced() bool {
	return m.limit > 0 || m.book != nil
}

func (m *bookMerger) fetch(ctx context.Context) error {
	book, err := m.fetcher.GetOrderBook(ctx, m.symbol, m.depth)
	if err != nil {
		return err
	}
	m.book = book
	return nil
}

func (m *bookMerger) check(u bookUpdate) verdict {
	if u.full != nil {
		if m.book != nil && u.full.LastUpdateID <= m.book.LastUpdateID {
			return verdictStale
		}
		return verdictApply
	}
	return checkSequence(m.book.LastUpdateID, u.diff.FirstUpdateID, u.diff.FinalUpdateID)
}

func (m *bookMerger) merge(u bookUpdate) {
	if u.full != nil {
		m.book = u.full
		return
	}
	m.book.Apply(u.diff.Bids, u.diff.Asks)
	m.book.LastUpdateID = u.diff.FinalUpdateID
	m.book.UpdatedAt = u.diff.ReceivedAt
}

func (m *bookMerger) sequence() int64 {
	if m.book == nil {
		return 0
	}
	return m.book.LastUpdateID
}

func (m *bookMerger) view() *model.OrderBook {
	return m.book.Clone()
}

func (m *bookMerger) reset() {
	m.book = nil
}
