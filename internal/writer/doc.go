// Package writer implements the recorder's batch writers.
//
// Writers:
//   - Trade writer: aggregate trades, deduplicated by ID per symbol
//   - Candle writer: closed candlesticks only
//   - Order book snapshot writer: throttled per symbol, JSONB levels
//
// Writers take views from cache callbacks, queue rows without blocking and
// insert them with pgx batches. All inserts are append-only with
// ON CONFLICT DO NOTHING, so replays after a restart are harmless.
package writer
