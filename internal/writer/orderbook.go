package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/binance-cache/internal/model"
)

// BookSnapshotConfig throttles order book snapshots.
type BookSnapshotConfig struct {
	// Interval is the minimum time between snapshots of one symbol.
	Interval time.Duration

	// Depth is the number of levels kept per side (0 keeps all).
	Depth int
}

// BookSnapshotWriter records throttled order book snapshots into
// orderbook_snapshots.
type BookSnapshotWriter struct {
	*batcher[bookSnapshotRow]

	db   BatchSender
	snap BookSnapshotConfig
	now  func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewBookSnapshotWriter creates a new BookSnapshotWriter.
func NewBookSnapshotWriter(cfg WriterConfig, snap BookSnapshotConfig, db BatchSender, logger *slog.Logger) *BookSnapshotWriter {
	w := &BookSnapshotWriter{
		db:   db,
		snap: snap,
		now:  time.Now,
		last: make(map[string]time.Time),
	}
	w.batcher = newBatcher("orderbook_writer", cfg, w.batchInsert, logger)
	return w
}

// HandleOrderBook queues a snapshot when the symbol's interval has elapsed.
// The book is read, never retained.
func (w *BookSnapshotWriter) HandleOrderBook(book *model.OrderBook) {
	if book == nil {
		return
	}

	now := w.now()
	w.mu.Lock()
	if last, ok := w.last[book.Symbol]; ok && now.Sub(last) < w.snap.Interval {
		w.mu.Unlock()
		return
	}
	w.last[book.Symbol] = now
	w.mu.Unlock()

	w.offer(w.transform(book))
}

// transform converts an OrderBook to a bookSnapshotRow.
func (w *BookSnapshotWriter) transform(book *model.OrderBook) bookSnapshotRow {
	bid, hasBid := book.BestBid()
	ask, hasAsk := book.BestAsk()
	spread, hasSpread := book.Spread()

	snapshotTs := book.UpdatedAt
	if snapshotTs == 0 {
		snapshotTs = w.now().UnixMicro()
	}

	return bookSnapshotRow{
		Symbol:       book.Symbol,
		LastUpdateID: book.LastUpdateID,
		SnapshotTs:   snapshotTs,
		Bids:         levelsToJSONB(book.Bids, w.snap.Depth),
		Asks:         levelsToJSONB(book.Asks, w.snap.Depth),
		BestBid:      decimalPtr(bid.Price, hasBid),
		BestAsk:      decimalPtr(ask.Price, hasAsk),
		Spread:       decimalPtr(spread, hasSpread),
	}
}

// batchInsert inserts snapshot rows with ON CONFLICT DO NOTHING.
func (w *BookSnapshotWriter) batchInsert(ctx context.Context, rows []bookSnapshotRow) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO orderbook_snapshots (symbol, last_update_id, snapshot_ts, bids, asks, best_bid, best_ask, spread)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, last_update_id) DO NOTHING
		`, r.Symbol, r.LastUpdateID, r.SnapshotTs, r.Bids, r.Asks, r.BestBid, r.BestAsk, r.Spread)
	}
	return sendBatch(ctx, w.db, batch)
}
