// Package api provides the Binance spot REST client and the decoders for the
// public market-data streams.
//
// REST endpoint:
//   - https://api.binance.com (weights are charged against the rate limiter)
//
// Stream endpoint:
//   - wss://stream.binance.com:9443 (/ws/<channel> raw, /stream?streams=... combined)
//
// Channels used here: <symbol>@depth, <symbol>@depth<levels>, <symbol>@aggTrade,
// <symbol>@kline_<interval>
package api
