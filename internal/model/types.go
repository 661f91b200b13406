package model

import (
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// SymbolStatus is the trading status reported by exchange info.
type SymbolStatus string

const (
	StatusPreTrading   SymbolStatus = "PRE_TRADING"
	StatusTrading      SymbolStatus = "TRADING"
	StatusPostTrading  SymbolStatus = "POST_TRADING"
	StatusEndOfDay     SymbolStatus = "END_OF_DAY"
	StatusHalt         SymbolStatus = "HALT"
	StatusAuctionMatch SymbolStatus = "AUCTION_MATCH"
	StatusBreak        SymbolStatus = "BREAK"
)

// Symbol is one tradable pair from exchange info.
type Symbol struct {
	Name       string // e.g. "BTCUSDT"
	Status     SymbolStatus
	BaseAsset  string
	QuoteAsset string
	TickSize   decimal.Decimal // PRICE_FILTER tick size, zero if absent
	StepSize   decimal.Decimal // LOT_SIZE step size, zero if absent
	UpdatedAt  int64           // Last refresh (µs since epoch)
}

// IsTrading reports whether the symbol currently accepts orders.
func (s Symbol) IsTrading() bool {
	return s.Status == StatusTrading
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// AggregateTrade is trades filled at the same time, price and taker side.
type AggregateTrade struct {
	ID           int64  // Aggregate trade ID, used as the sequence marker
	Symbol       string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	FirstTradeID int64
	LastTradeID  int64
	TradeTime    int64 // ms since epoch
	IsBuyerMaker bool
	IsBestMatch  bool
	EventTime    int64 // ms since epoch, zero for REST results
	ReceivedAt   int64 // µs since epoch, zero for REST results
}

// Candlestick is one OHLCV bar.
type Candlestick struct {
	Symbol              string
	Interval            Interval
	OpenTime            int64 // ms since epoch
	CloseTime           int64 // ms since epoch
	Open                decimal.Decimal
	High                decimal.Decimal
	Low                 decimal.Decimal
	Close               decimal.Decimal
	Volume              decimal.Decimal
	QuoteVolume         decimal.Decimal
	TradeCount          int64
	TakerBuyBaseVolume  decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
	FirstTradeID        int64 // -1 when no trades
	LastTradeID         int64
	IsClosed            bool // false while the bar is still forming
}

// Sequence returns the bar's position on the interval grid.
func (c Candlestick) Sequence() int64 {
	return c.Interval.Sequence(c.OpenTime)
}

// DepthUpdate is a diff-depth stream event covering update IDs
// FirstUpdateID..FinalUpdateID. A zero quantity removes the level.
type DepthUpdate struct {
	Symbol        string
	EventTime     int64 // ms since epoch
	FirstUpdateID int64 // "U"
	FinalUpdateID int64 // "u"
	Bids          []PriceLevel
	Asks          []PriceLevel
	ReceivedAt    int64 // µs since epoch
}

// -----------------------------------------------------------------------------
// Statistics Types
// -----------------------------------------------------------------------------

// SymbolStatistics is a rolling 24 hour window summary for one symbol.
type SymbolStatistics struct {
	Symbol             string
	EventTime          int64 // ms since epoch
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	WeightedAvgPrice   decimal.Decimal
	PrevClosePrice     decimal.Decimal
	LastPrice          decimal.Decimal
	LastQuantity       decimal.Decimal
	BidPrice           decimal.Decimal
	BidQuantity        decimal.Decimal
	AskPrice           decimal.Decimal
	AskQuantity        decimal.Decimal
	OpenPrice          decimal.Decimal
	HighPrice          decimal.Decimal
	LowPrice           decimal.Decimal
	Volume             decimal.Decimal
	QuoteVolume        decimal.Decimal
	OpenTime           int64 // window start, ms since epoch
	CloseTime          int64 // window end, ms since epoch
	FirstTradeID       int64
	LastTradeID        int64
	TradeCount         int64
}
