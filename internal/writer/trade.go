package writer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/binance-cache/internal/model"
)

// TradeWriter records aggregate trades from the trade cache into agg_trades.
//
// The cache hands out its whole window on every update, so the writer keeps
// the highest ID recorded per symbol and queues only newer trades.
type TradeWriter struct {
	*batcher[tradeRow]

	db BatchSender

	mu     sync.Mutex
	lastID map[string]int64
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *TradeWriter {
	w := &TradeWriter{
		db:     db,
		lastID: make(map[string]int64),
	}
	w.batcher = newBatcher("trade_writer", cfg, w.batchInsert, logger)
	return w
}

// HandleTrades queues trades newer than the last one recorded for their
// symbol. It never blocks; rows are dropped when the queue is full.
func (w *TradeWriter) HandleTrades(trades []model.AggregateTrade) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range trades {
		if last, ok := w.lastID[t.Symbol]; ok && t.ID <= last {
			continue
		}
		w.lastID[t.Symbol] = t.ID
		w.offer(w.transform(t))
	}
}

// transform converts an AggregateTrade to a tradeRow.
func (w *TradeWriter) transform(t model.AggregateTrade) tradeRow {
	return tradeRow{
		Symbol:       t.Symbol,
		AggTradeID:   t.ID,
		Price:        t.Price,
		Quantity:     t.Quantity,
		FirstTradeID: t.FirstTradeID,
		LastTradeID:  t.LastTradeID,
		TradeTime:    t.TradeTime,
		IsBuyerMaker: t.IsBuyerMaker,
		ReceivedAt:   t.ReceivedAt,
	}
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TradeWriter) batchInsert(ctx context.Context, rows []tradeRow) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO agg_trades (symbol, agg_trade_id, price, quantity, first_trade_id, last_trade_id, trade_time, is_buyer_maker, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, agg_trade_id) DO NOTHING
		`, r.Symbol, r.AggTradeID, r.Price, r.Quantity, r.FirstTradeID, r.LastTradeID, r.TradeTime, r.IsBuyerMaker, r.ReceivedAt)
	}
	return sendBatch(ctx, w.db, batch)
}
