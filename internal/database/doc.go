// Package database provides the PostgreSQL connection pool and schema used by
// the recorder.
//
// Tables:
//   - agg_trades: aggregate trades keyed by (symbol, agg_trade_id)
//   - candlesticks: closed bars keyed by (symbol, interval, open_time)
//   - orderbook_snapshots: throttled top-of-book snapshots with JSONB levels
//
// Prices are stored as NUMERIC so decimal strings round-trip exactly.
package database
