package writer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/binance-cache/internal/model"
)

// CandleWriter records closed candlesticks into the candlesticks table.
// Open bars are skipped; each bar is queued once, when it first appears
// closed.
type CandleWriter struct {
	*batcher[candleRow]

	db BatchSender

	mu       sync.Mutex
	lastOpen map[string]int64 // "SYMBOL/interval" -> open time of last recorded bar
}

// NewCandleWriter creates a new CandleWriter.
func NewCandleWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *CandleWriter {
	w := &CandleWriter{
		db:       db,
		lastOpen: make(map[string]int64),
	}
	w.batcher = newBatcher("candle_writer", cfg, w.batchInsert, logger)
	return w
}

// HandleCandles queues closed bars newer than the last one recorded for the
// same symbol and interval.
func (w *CandleWriter) HandleCandles(candles []model.Candlestick) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, c := range candles {
		if !c.IsClosed {
			continue
		}
		key := c.Symbol + "/" + string(c.Interval)
		if last, ok := w.lastOpen[key]; ok && c.OpenTime <= last {
			continue
		}
		w.lastOpen[key] = c.OpenTime
		w.offer(w.transform(c))
	}
}

// transform converts a Candlestick to a candleRow.
func (w *CandleWriter) transform(c model.Candlestick) candleRow {
	return candleRow{
		Symbol:        c.Symbol,
		Interval:      string(c.Interval),
		OpenTime:      c.OpenTime,
		CloseTime:     c.CloseTime,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Volume:        c.Volume,
		QuoteVolume:   c.QuoteVolume,
		TradeCount:    c.TradeCount,
		TakerBuyBase:  c.TakerBuyBaseVolume,
		TakerBuyQuote: c.TakerBuyQuoteVolume,
	}
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *CandleWriter) batchInsert(ctx context.Context, rows []candleRow) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO candlesticks (symbol, interval, open_time, close_time, open, high, low, close, volume, quote_volume, trade_count, taker_buy_base, taker_buy_quote)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (symbol, interval, open_time) DO NOTHING
		`, r.Symbol, r.Interval, r.OpenTime, r.CloseTime, r.Open, r.High, r.Low, r.Close, r.Volume, r.QuoteVolume, r.TradeCount, r.TakerBuyBase, r.TakerBuyQuote)
	}
	return sendBatch(ctx, w.db, batch)
}
