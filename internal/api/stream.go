package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/binance-cache/internal/model"
)

// Partial book depth levels accepted by <symbol>@depth<levels>.
var partialDepthLevels = map[int]struct{}{5: {}, 10: {}, 20: {}}

// ValidPartialDepth reports whether levels is a supported partial depth.
func ValidPartialDepth(levels int) bool {
	_, ok := partialDepthLevels[levels]
	return ok
}

// DepthChannel returns the diff-depth channel for symbol. fast selects the
// 100ms update speed instead of 1000ms.
func DepthChannel(symbol string, fast bool) string {
	ch := strings.ToLower(symbol) + "@depth"
	if fast {
		ch += "@100ms"
	}
	return ch
}

// PartialDepthChannel returns the top-of-book channel for symbol.
func PartialDepthChannel(symbol string, levels int, fast bool) string {
	ch := strings.ToLower(symbol) + "@depth" + strconv.Itoa(levels)
	if fast {
		ch += "@100ms"
	}
	return ch
}

// AggTradeChannel returns the aggregate trade channel for symbol.
func AggTradeChannel(symbol string) string {
	return strings.ToLower(symbol) + "@aggTrade"
}

// KlineChannel returns the candlestick channel for symbol and interval.
func KlineChannel(symbol string, interval model.Interval) string {
	return strings.ToLower(symbol) + "@kline_" + string(interval)
}

// TickerChannel returns the rolling 24 hour statistics channel for symbol.
func TickerChannel(symbol string) string {
	return strings.ToLower(symbol) + "@ticker"
}

// Stream payloads. encoding/json matches keys case-insensitively when there is
// no exact match, so every key pair that differs only in case ("e"/"E") is
// declared even when one side is unused.

type wsDepthUpdate struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type wsPartialDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type wsAggTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	IsBestMatch  bool   `json:"M"`
}

type wsKlineEvent struct {
	EventType string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsKline struct {
	OpenTime            int64           `json:"t"`
	CloseTime           int64           `json:"T"`
	Symbol              string          `json:"s"`
	Interval            string          `json:"i"`
	FirstTradeID        int64           `json:"f"`
	LastTradeID         int64           `json:"L"`
	Open                string          `json:"o"`
	Close               string          `json:"c"`
	High                string          `json:"h"`
	Low                 string          `json:"l"`
	Volume              string          `json:"v"`
	TradeCount          int64           `json:"n"`
	IsClosed            bool            `json:"x"`
	QuoteVolume         string          `json:"q"`
	TakerBuyBaseVolume  string          `json:"V"`
	TakerBuyQuoteVolume string          `json:"Q"`
	Ignore              json.RawMessage `json:"B"`
}

type wsTicker struct {
	EventType          string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	PrevClosePrice     string `json:"x"`
	LastPrice          string `json:"c"`
	LastQuantity       string `json:"Q"`
	BidPrice           string `json:"b"`
	BidQuantity        string `json:"B"`
	AskPrice           string `json:"a"`
	AskQuantity        string `json:"A"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstTradeID       int64  `json:"F"`
	LastTradeID        int64  `json:"L"`
	TradeCount         int64  `json:"n"`
}

// DecodeDepthUpdate parses a <symbol>@depth frame.
func DecodeDepthUpdate(data []byte) (model.DepthUpdate, error) {
	var msg wsDepthUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.DepthUpdate{}, fmt.Errorf("decode depth update: %w", err)
	}
	if msg.EventType != "depthUpdate" {
		return model.DepthUpdate{}, fmt.Errorf("decode depth update: unexpected event %q", msg.EventType)
	}
	if msg.FirstUpdateID > msg.FinalUpdateID {
		return model.DepthUpdate{}, fmt.Errorf("decode depth update: first update %d after final %d", msg.FirstUpdateID, msg.FinalUpdateID)
	}

	bids, err := ParseLevels(msg.Bids)
	if err != nil {
		return model.DepthUpdate{}, fmt.Errorf("decode depth update bids: %w", err)
	}
	asks, err := ParseLevels(msg.Asks)
	if err != nil {
		return model.DepthUpdate{}, fmt.Errorf("decode depth update asks: %w", err)
	}

	return model.DepthUpdate{
		Symbol:        msg.Symbol,
		EventTime:     msg.EventTime,
		FirstUpdateID: msg.FirstUpdateID,
		FinalUpdateID: msg.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

// DecodePartialDepth parses a <symbol>@depth<levels> frame. The payload does
// not carry the symbol, so the caller supplies it.
func DecodePartialDepth(symbol string, data []byte) (*model.OrderBook, error) {
	var msg wsPartialDepth
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode partial depth: %w", err)
	}
	resp := DepthResponse(msg)
	book, err := resp.ToOrderBook(strings.ToUpper(symbol))
	if err != nil {
		return nil, fmt.Errorf("decode partial depth: %w", err)
	}
	return book, nil
}

// DecodeAggregateTrade parses a <symbol>@aggTrade frame.
func DecodeAggregateTrade(data []byte) (model.AggregateTrade, error) {
	var msg wsAggTrade
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.AggregateTrade{}, fmt.Errorf("decode aggregate trade: %w", err)
	}
	if msg.EventType != "aggTrade" {
		return model.AggregateTrade{}, fmt.Errorf("decode aggregate trade: unexpected event %q", msg.EventType)
	}

	return model.AggregateTrade{
		ID:           msg.ID,
		Symbol:       msg.Symbol,
		Price:        ParseDecimal(msg.Price),
		Quantity:     ParseDecimal(msg.Quantity),
		FirstTradeID: msg.FirstTradeID,
		LastTradeID:  msg.LastTradeID,
		TradeTime:    msg.TradeTime,
		IsBuyerMaker: msg.IsBuyerMaker,
		IsBestMatch:  msg.IsBestMatch,
		EventTime:    msg.EventTime,
	}, nil
}

// DecodeCandlestick parses a <symbol>@kline_<interval> frame.
func DecodeCandlestick(data []byte) (model.Candlestick, error) {
	var msg wsKlineEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Candlestick{}, fmt.Errorf("decode candlestick: %w", err)
	}
	if msg.EventType != "kline" {
		return model.Candlestick{}, fmt.Errorf("decode candlestick: unexpected event %q", msg.EventType)
	}
	interval, err := model.ParseInterval(msg.Kline.Interval)
	if err != nil {
		return model.Candlestick{}, fmt.Errorf("decode candlestick: %w", err)
	}

	k := msg.Kline
	return model.Candlestick{
		Symbol:              msg.Symbol,
		Interval:            interval,
		OpenTime:            k.OpenTime,
		CloseTime:           k.CloseTime,
		Open:                ParseDecimal(k.Open),
		High:                ParseDecimal(k.High),
		Low:                 ParseDecimal(k.Low),
		Close:               ParseDecimal(k.Close),
		Volume:              ParseDecimal(k.Volume),
		QuoteVolume:         ParseDecimal(k.QuoteVolume),
		TradeCount:          k.TradeCount,
		TakerBuyBaseVolume:  ParseDecimal(k.TakerBuyBaseVolume),
		TakerBuyQuoteVolume: ParseDecimal(k.TakerBuyQuoteVolume),
		FirstTradeID:        k.FirstTradeID,
		LastTradeID:         k.LastTradeID,
		IsClosed:            k.IsClosed,
	}, nil
}

// DecodeSymbolStatistics parses a <symbol>@ticker frame.
func DecodeSymbolStatistics(data []byte) (model.SymbolStatistics, error) {
	var msg wsTicker
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.SymbolStatistics{}, fmt.Errorf("decode statistics: %w", err)
	}
	if msg.EventType != "24hrTicker" {
		return model.SymbolStatistics{}, fmt.Errorf("decode statistics: unexpected event %q", msg.EventType)
	}

	return model.SymbolStatistics{
		Symbol:             msg.Symbol,
		EventTime:          msg.EventTime,
		PriceChange:        ParseDecimal(msg.PriceChange),
		PriceChangePercent: ParseDecimal(msg.PriceChangePercent),
		WeightedAvgPrice:   ParseDecimal(msg.WeightedAvgPrice),
		PrevClosePrice:     ParseDecimal(msg.PrevClosePrice),
		LastPrice:          ParseDecimal(msg.LastPrice),
		LastQuantity:       ParseDecimal(msg.LastQuantity),
		BidPrice:           ParseDecimal(msg.BidPrice),
		BidQuantity:        ParseDecimal(msg.BidQuantity),
		AskPrice:           ParseDecimal(msg.AskPrice),
		AskQuantity:        ParseDecimal(msg.AskQuantity),
		OpenPrice:          ParseDecimal(msg.OpenPrice),
		HighPrice:          ParseDecimal(msg.HighPrice),
		LowPrice:           ParseDecimal(msg.LowPrice),
		Volume:             ParseDecimal(msg.Volume),
		QuoteVolume:        ParseDecimal(msg.QuoteVolume),
		OpenTime:           msg.OpenTime,
		CloseTime:          msg.CloseTime,
		FirstTradeID:       msg.FirstTradeID,
		LastTradeID:        msg.LastTradeID,
		TradeCount:         msg.TradeCount,
	}, nil
}
