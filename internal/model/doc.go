// Package model defines the market-data types shared by the REST client, the
// stream decoders, the caches and the recorder.
//
// Conventions:
//   - Prices and quantities: decimal.Decimal, parsed from the exchange's string fields
//   - Exchange timestamps: int64 milliseconds since Unix epoch
//   - ReceivedAt: int64 microseconds since Unix epoch, local clock
//   - Symbols: upper case (e.g. "BTCUSDT"); stream channel names use lower case
package model
