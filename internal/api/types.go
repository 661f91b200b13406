package api

import "encoding/json"

// ServerTimeResponse from GET /api/v3/time
type ServerTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// ExchangeInfoResponse from GET /api/v3/exchangeInfo
type ExchangeInfoResponse struct {
	Timezone   string         `json:"timezone"`
	ServerTime int64          `json:"serverTime"`
	RateLimits []APIRateLimit `json:"rateLimits"`
	Symbols    []APISymbol    `json:"symbols"`
}

// APIRateLimit is one published quota.
type APIRateLimit struct {
	RateLimitType string `json:"rateLimitType"` // REQUEST_WEIGHT, ORDERS, RAW_REQUESTS
	Interval      string `json:"interval"`      // SECOND, MINUTE, DAY
	IntervalNum   int    `json:"intervalNum"`
	Limit         int    `json:"limit"`
}

// APISymbol represents a symbol from exchange info.
type APISymbol struct {
	Symbol     string      `json:"symbol"`
	Status     string      `json:"status"`
	BaseAsset  string      `json:"baseAsset"`
	QuoteAsset string      `json:"quoteAsset"`
	Filters    []APIFilter `json:"filters"`
}

// APIFilter is a symbol trading filter. Only the fields used here are mapped.
type APIFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
}

// DepthResponse from GET /api/v3/depth. Levels are [price, quantity] pairs.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// APIAggTrade from GET /api/v3/aggTrades
type APIAggTrade struct {
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	Time         int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	IsBestMatch  bool   `json:"M"`
}

// APIKline is one row of GET /api/v3/klines: a positional array of mixed
// numbers and strings.
type APIKline []json.RawMessage

// GetAggTradesOptions configures a GetAggregateTrades request.
type GetAggTradesOptions struct {
	FromID    int64 // inclusive; 0 = unset
	StartTime int64 // ms since epoch; 0 = unset
	EndTime   int64 // ms since epoch; 0 = unset
	Limit     int   // default 500, max 1000
}

// GetCandlesticksOptions configures a GetCandlesticks request.
type GetCandlesticksOptions struct {
	StartTime int64 // ms since epoch; 0 = unset
	EndTime   int64 // ms since epoch; 0 = unset
	Limit     int   // default 500, max 1000
}
