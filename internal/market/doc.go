// Package market tracks exchange symbols and their trading status.
//
// The registry loads exchange info on Start and reconciles it on an interval,
// emitting SymbolChange events for listings, status changes and delistings.
// Caches consult IsTrading before subscribing to a symbol's streams.
package market
