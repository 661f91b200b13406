package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/rickgao/binance-cache/internal/api"
	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/model"
	"github.com/rickgao/binance-cache/internal/pipeline"
)

// MaxTradeLimit is the largest aggregate trade window, bounded by the REST
// snapshot size.
const MaxTradeLimit = 1000

// AggTradeFetcher loads recent aggregate trades. *api.Client satisfies it.
type AggTradeFetcher interface {
	GetAggregateTrades(ctx context.Context, symbol string, opts api.GetAggTradesOptions) ([]model.AggregateTrade, error)
}

// AggregateTradeCache keeps the most recent aggregate trades of one symbol,
// oldest first. Aggregate trade ids are consecutive, so the id is the sequence.
type AggregateTradeCache struct {
	*stream[model.AggregateTrade, []model.AggregateTrade]
	fetcher AggTradeFetcher
}

// NewAggregateTradeCache creates an aggregate trade cache.
func NewAggregateTradeCache(fetcher AggTradeFetcher, sub Subscriber, cfg pipeline.Config, logger *slog.Logger) *AggregateTradeCache {
	return &AggregateTradeCache{
		stream:  newStream[model.AggregateTrade]("trade_cache", sub, cfg, slices.Clone[[]model.AggregateTrade], logger),
		fetcher: fetcher,
	}
}

// Subscribe starts following symbol, keeping the last limit trades (1 to
// MaxTradeLimit).
func (c *AggregateTradeCache) Subscribe(ctx context.Context, symbol string, limit int, cb func([]model.AggregateTrade)) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if limit <= 0 || limit > MaxTradeLimit {
		return fmt.Errorf("%w: %d trades", ErrInvalidLimit, limit)
	}

	m := &tradeMerger{fetcher: c.fetcher, symbol: symbol, limit: limit}
	key := fmt.Sprintf("%s/%d", symbol, limit)
	return c.subscribe(ctx, key, api.AggTradeChannel(symbol), m, cb)
}

type tradeMerger struct {
	fetcher AggTradeFetcher
	symbol  string
	limit   int
	trades  []model.AggregateTrade
	loaded  bool
}

func (m *tradeMerger) decode(f connection.Frame) (model.AggregateTrade, error) {
	t, err := api.DecodeAggregateTrade(f.Data)
	if err != nil {
		return model.AggregateTrade{}, err
	}
	t.ReceivedAt = f.ReceivedAt.UnixMicro()
	return t, nil
}

func (m *tradeMerger) synced() bool {
	return m.loaded
}

func (m *tradeMerger) fetch(ctx context.Context) error {
	trades, err := m.fetcher.GetAggregateTrades(ctx, m.symbol, api.GetAggTradesOptions{Limit: m.limit})
	if err != nil {
		return err
	}
	if len(trades) > m.limit {
		trades = trades[len(trades)-m.limit:]
	}
	m.trades = trades
	m.loaded = true
	return nil
}

func (m *tradeMerger) check(t model.AggregateTrade) verdict {
	// A symbol with no trades yet has nothing to be behind.
	if len(m.trades) == 0 {
		return verdictApply
	}
	return checkSequence(m.sequence(), t.ID, t.ID)
}

func (m *tradeMerger) merge(t model.AggregateTrade) {
	m.trades = append(m.trades, t)
	if over := len(m.trades) - m.limit; over > 0 {
		// Shift instead of reslicing so the backing array does not grow
		// without bound.
		copy(m.trades, m.trades[over:])
		m.trades = m.trades[:m.limit]
	}
}

func (m *tradeMerger) sequence() int64 {
	if len(m.trades) == 0 {
		return 0
	}
	return m.trades[len(m.trades)-1].ID
}

func (m *tradeMerger) view() []model.AggregateTrade {
	return slices.Clone(m.trades)
}

func (m *tradeMerger) reset() {
	m.trades = nil
	m.loaded = false
}
