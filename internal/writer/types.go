package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the capacity of the input queue. Rows offered while it
	// is full are dropped and counted.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// tradeRow represents a row to be inserted into the agg_trades table.
type tradeRow struct {
	Symbol       string
	AggTradeID   int64
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	FirstTradeID int64
	LastTradeID  int64
	TradeTime    int64 // Milliseconds
	IsBuyerMaker bool
	ReceivedAt   int64 // Microseconds, 0 for REST backfill
}

// candleRow represents a closed bar for the candlesticks table.
type candleRow struct {
	Symbol        string
	Interval      string
	OpenTime      int64
	CloseTime     int64
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        decimal.Decimal
	QuoteVolume   decimal.Decimal
	TradeCount    int64
	TakerBuyBase  decimal.Decimal
	TakerBuyQuote decimal.Decimal
}

// bookSnapshotRow represents a row for the orderbook_snapshots table.
type bookSnapshotRow struct {
	Symbol       string
	LastUpdateID int64
	SnapshotTs   int64  // Microseconds
	Bids         []byte // JSONB: [{"price": "..", "qty": ".."}, ...]
	Asks         []byte // JSONB
	BestBid      *decimal.Decimal
	BestAsk      *decimal.Decimal
	Spread       *decimal.Decimal
}
