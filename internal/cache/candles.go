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

// MaxCandleLimit is the largest candlestick window.
const MaxCandleLimit = 1000

// CandlestickFetcher loads recent candlesticks. *api.Client satisfies it.
type CandlestickFetcher interface {
	GetCandlesticks(ctx context.Context, symbol string, interval model.Interval, opts api.GetCandlesticksOptions) ([]model.Candlestick, error)
}

// CandlestickCache keeps a sliding window of candlesticks for one symbol and
// interval, oldest first. The sequence is the bar's slot on the interval grid;
// an event for the current slot replaces the open bar.
type CandlestickCache struct {
	*stream[model.Candlestick, []model.Candlestick]
	fetcher CandlestickFetcher
}

// NewCandlestickCache creates a candlestick cache.
func NewCandlestickCache(fetcher CandlestickFetcher, sub Subscriber, cfg pipeline.Config, logger *slog.Logger) *CandlestickCache {
	return &CandlestickCache{
		stream:  newStream[model.Candlestick]("candle_cache", sub, cfg, slices.Clone[[]model.Candlestick], logger),
		fetcher: fetcher,
	}
}

// Subscribe starts following symbol at interval, keeping the last limit bars
// (1 to MaxCandleLimit).
func (c *CandlestickCache) Subscribe(ctx context.Context, symbol string, interval model.Interval, limit int, cb func([]model.Candlestick)) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if !interval.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
	if limit <= 0 || limit > MaxCandleLimit {
		return fmt.Errorf("%w: %d candles", ErrInvalidLimit, limit)
	}

	m := &candleMerger{fetcher: c.fetcher, symbol: symbol, interval: interval, limit: limit}
	key := fmt.Sprintf("%s/%s/%d", symbol, interval, limit)
	return c.subscribe(ctx, key, api.KlineChannel(symbol, interval), m, cb)
}

type candleMerger struct {
	fetcher  CandlestickFetcher
	symbol   string
	interval model.Interval
	limit    int
	candles  []model.Candlestick
	loaded   bool
}

func (m *candleMerger) decode(f connection.Frame) (model.Candlestick, error) {
	c, err := api.DecodeCandlestick(f.Data)
	if err != nil {
		return model.Candlestick{}, err
	}
	if c.Interval != m.interval {
		return model.Candlestick{}, fmt.Errorf("interval %s on %s stream", c.Interval, m.interval)
	}
	return c, nil
}

func (m *candleMerger) synced() bool {
	return m.loaded
}

func (m *candleMerger) fetch(ctx context.Context) error {
	candles, err := m.fetcher.GetCandlesticks(ctx, m.symbol, m.interval, api.GetCandlesticksOptions{Limit: m.limit})
	if err != nil {
		return err
	}
	if len(candles) > m.limit {
		candles = candles[len(candles)-m.limit:]
	}
	m.candles = candles
	m.loaded = true
	return nil
}

func (m *candleMerger) check(c model.Candlestick) verdict {
	if len(m.candles) == 0 {
		return verdictApply
	}
	last, seq := m.sequence(), c.Sequence()
	if seq == last {
		return verdictApply
	}
	return checkSequence(last, seq, seq)
}

func (m *candleMerger) merge(c model.Candlestick) {
	if n := len(m.candles); n > 0 && m.candles[n-1].Sequence() == c.Sequence() {
		m.candles[n-1] = c
		return
	}
	m.candles = append(m.candles, c)
	if over := len(m.candles) - m.limit; over > 0 {
		copy(m.candles, m.candles[over:])
		m.candles = m.candles[:m.limit]
	}
}

func (m *candleMerger) sequence() int64 {
	if len(m.candles) == 0 {
		return 0
	}
	return m.candles[len(m.candles)-1].Sequence()
}

func (m *candleMerger) view() []model.Candlestick {
	return slices.Clone(m.candles)
}

func (m *candleMerger) reset() {
	m.candles = nil
	m.loaded = false
}
