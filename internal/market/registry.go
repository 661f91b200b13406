package market

import (
	"context"

	"github.com/rickgao/binance-cache/internal/model"
)

// ChangeBufferSize is the capacity of the SymbolChange channel.
const ChangeBufferSize = 1000

// Change event types.
const (
	EventListed       = "listed"
	EventStatusChange = "status_change"
	EventDelisted     = "delisted"
)

// SymbolSource fetches exchange symbols. *api.Client satisfies it.
type SymbolSource interface {
	GetSymbols(ctx context.Context, symbols ...string) ([]model.Symbol, error)
}

// Registry tracks exchange symbols and their trading status.
type Registry interface {
	// Start loads symbols (blocking) and then reconciles in the background.
	// Emits SymbolChange events as symbols are discovered or change status.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// Reconcile refetches symbols now and reports changes.
	Reconcile(ctx context.Context) error

	// GetTradingSymbols returns all symbols currently trading.
	GetTradingSymbols() []model.Symbol

	// GetSymbol returns a specific symbol by name (case insensitive).
	GetSymbol(name string) (model.Symbol, bool)

	// IsTrading reports whether name is known and trading.
	IsTrading(name string) bool

	// SubscribeChanges returns a channel of symbol status changes.
	SubscribeChanges() <-chan SymbolChange
}

// SymbolChange represents a symbol status transition.
type SymbolChange struct {
	Symbol    string             // Symbol name
	EventType string             // EventListed, EventStatusChange or EventDelisted
	OldStatus model.SymbolStatus // Previous status (empty for EventListed)
	NewStatus model.SymbolStatus // New status (empty for EventDelisted)
	Info      *model.Symbol      // Full symbol data (nil for EventDelisted)
}
