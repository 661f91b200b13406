package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/binance-cache/internal/model"
)

// ParseDecimal parses an exchange decimal string.
// Returns zero for empty or invalid input.
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseLevels converts [price, quantity] string pairs into price levels.
func ParseLevels(raw [][]string) ([]model.PriceLevel, error) {
	levels := make([]model.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("level %d: want [price, qty], got %d fields", i, len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("level %d quantity: %w", i, err)
		}
		levels = append(levels, model.PriceLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// NowMicro returns the current time in microseconds since epoch.
func NowMicro() int64 {
	return time.Now().UnixMicro()
}

// ToModel converts an APISymbol to model.Symbol.
func (s *APISymbol) ToModel() model.Symbol {
	sym := model.Symbol{
		Name:       s.Symbol,
		Status:     model.SymbolStatus(s.Status),
		BaseAsset:  s.BaseAsset,
		QuoteAsset: s.QuoteAsset,
		UpdatedAt:  NowMicro(),
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			sym.TickSize = ParseDecimal(f.TickSize)
		case "LOT_SIZE":
			sym.StepSize = ParseDecimal(f.StepSize)
		}
	}
	return sym
}

// ToOrderBook converts a DepthResponse to model.OrderBook.
func (d *DepthResponse) ToOrderBook(symbol string) (*model.OrderBook, error) {
	bids, err := ParseLevels(d.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := ParseLevels(d.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &model.OrderBook{
		Symbol:       symbol,
		LastUpdateID: d.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
		UpdatedAt:    NowMicro(),
	}, nil
}

// ToModel converts an APIAggTrade to model.AggregateTrade.
func (t *APIAggTrade) ToModel(symbol string) model.AggregateTrade {
	return model.AggregateTrade{
		ID:           t.ID,
		Symbol:       symbol,
		Price:        ParseDecimal(t.Price),
		Quantity:     ParseDecimal(t.Quantity),
		FirstTradeID: t.FirstTradeID,
		LastTradeID:  t.LastTradeID,
		TradeTime:    t.Time,
		IsBuyerMaker: t.IsBuyerMaker,
		IsBestMatch:  t.IsBestMatch,
	}
}

// ToModel converts a kline row to model.Candlestick. REST rows never carry the
// closed flag, so IsClosed is derived from the close time.
func (k APIKline) ToModel(symbol string, interval model.Interval, now time.Time) (model.Candlestick, error) {
	if len(k) < 11 {
		return model.Candlestick{}, fmt.Errorf("kline row has %d fields, want at least 11", len(k))
	}

	var c model.Candlestick
	var open, high, low, closePrice, volume, quoteVolume, takerBase, takerQuote string
	fields := []any{
		&c.OpenTime, &open, &high, &low, &closePrice, &volume,
		&c.CloseTime, &quoteVolume, &c.TradeCount, &takerBase, &takerQuote,
	}
	for i, dst := range fields {
		if err := json.Unmarshal(k[i], dst); err != nil {
			return model.Candlestick{}, fmt.Errorf("kline field %d: %w", i, err)
		}
	}

	c.Symbol = symbol
	c.Interval = interval
	c.Open = ParseDecimal(open)
	c.High = ParseDecimal(high)
	c.Low = ParseDecimal(low)
	c.Close = ParseDecimal(closePrice)
	c.Volume = ParseDecimal(volume)
	c.QuoteVolume = ParseDecimal(quoteVolume)
	c.TakerBuyBaseVolume = ParseDecimal(takerBase)
	c.TakerBuyQuoteVolume = ParseDecimal(takerQuote)
	c.FirstTradeID = -1
	c.LastTradeID = -1
	c.IsClosed = now.UnixMilli() > c.CloseTime
	return c, nil
}
