// Package cache keeps local copies of exchange state (order books, recent
// aggregate trades, candlestick windows) consistent with a live stream.
//
// Each cache subscribes one channel on a multiplexer and feeds its frames into
// a pipeline.Pipeline, so snapshot fetches and merges run one at a time in push
// order. A subscription starts with a REST snapshot. Live events that end at or
// before the snapshot's sequence are dropped; events that leave a gap trigger an
// out-of-sync notification and a fresh snapshot.
//
// Views handed to callbacks and returned by View are copies owned by the caller.
package cache
