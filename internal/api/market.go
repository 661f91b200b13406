package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/binance-cache/internal/model"
)

// Request weights charged against the REST quota.
const (
	weightPing         = 1
	weightServerTime   = 1
	weightExchangeInfo = 20
	weightAggTrades    = 2
	weightKlines       = 2
)

// DepthWeight returns the request weight of GET /api/v3/depth for limit.
func DepthWeight(limit int) int {
	switch {
	case limit <= 100:
		return 5
	case limit <= 500:
		return 25
	case limit <= 1000:
		return 50
	default:
		return 250
	}
}

// Ping tests connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct{}
	if err := c.get(ctx, "/api/v3/ping", nil, weightPing, &resp); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// GetServerTime returns the exchange clock.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	var resp ServerTimeResponse
	if err := c.get(ctx, "/api/v3/time", nil, weightServerTime, &resp); err != nil {
		return time.Time{}, fmt.Errorf("get server time: %w", err)
	}
	return time.UnixMilli(resp.ServerTime), nil
}

// GetExchangeInfo fetches exchange info, optionally restricted to symbols.
func (c *Client) GetExchangeInfo(ctx context.Context, symbols ...string) (*ExchangeInfoResponse, error) {
	query := url.Values{}
	switch len(symbols) {
	case 0:
	case 1:
		query.Set("symbol", strings.ToUpper(symbols[0]))
	default:
		quoted := make([]string, len(symbols))
		for i, s := range symbols {
			quoted[i] = strconv.Quote(strings.ToUpper(s))
		}
		query.Set("symbols", "["+strings.Join(quoted, ",")+"]")
	}

	var resp ExchangeInfoResponse
	if err := c.get(ctx, "/api/v3/exchangeInfo", query, weightExchangeInfo, &resp); err != nil {
		return nil, fmt.Errorf("get exchange info: %w", err)
	}
	return &resp, nil
}

// GetSymbols fetches exchange info and converts it to model symbols.
func (c *Client) GetSymbols(ctx context.Context, symbols ...string) ([]model.Symbol, error) {
	info, err := c.GetExchangeInfo(ctx, symbols...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Symbol, 0, len(info.Symbols))
	for i := range info.Symbols {
		out = append(out, info.Symbols[i].ToModel())
	}
	return out, nil
}

// GetOrderBook fetches a depth snapshot. limit 0 uses the exchange default (100).
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*model.OrderBook, error) {
	symbol = strings.ToUpper(symbol)
	query := url.Values{}
	query.Set("symbol", symbol)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp DepthResponse
	if err := c.get(ctx, "/api/v3/depth", query, DepthWeight(limit), &resp); err != nil {
		return nil, fmt.Errorf("get order book %s: %w", symbol, err)
	}

	book, err := resp.ToOrderBook(symbol)
	if err != nil {
		return nil, fmt.Errorf("get order book %s: %w", symbol, err)
	}
	return book, nil
}

// GetAggregateTrades fetches compressed trades, oldest first.
func (c *Client) GetAggregateTrades(ctx context.Context, symbol string, opts GetAggTradesOptions) ([]model.AggregateTrade, error) {
	symbol = strings.ToUpper(symbol)
	query := url.Values{}
	query.Set("symbol", symbol)
	if opts.FromID > 0 {
		query.Set("fromId", strconv.FormatInt(opts.FromID, 10))
	}
	if opts.StartTime > 0 {
		query.Set("startTime", strconv.FormatInt(opts.StartTime, 10))
	}
	if opts.EndTime > 0 {
		query.Set("endTime", strconv.FormatInt(opts.EndTime, 10))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp []APIAggTrade
	if err := c.get(ctx, "/api/v3/aggTrades", query, weightAggTrades, &resp); err != nil {
		return nil, fmt.Errorf("get aggregate trades %s: %w", symbol, err)
	}

	trades := make([]model.AggregateTrade, len(resp))
	for i := range resp {
		trades[i] = resp[i].ToModel(symbol)
	}
	return trades, nil
}

// GetCandlesticks fetches candlesticks, oldest first. The last one may still
// be open.
func (c *Client) GetCandlesticks(ctx context.Context, symbol string, interval model.Interval, opts GetCandlesticksOptions) ([]model.Candlestick, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("get candlesticks %s: unknown interval %q", symbol, interval)
	}
	symbol = strings.ToUpper(symbol)
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", string(interval))
	if opts.StartTime > 0 {
		query.Set("startTime", strconv.FormatInt(opts.StartTime, 10))
	}
	if opts.EndTime > 0 {
		query.Set("endTime", strconv.FormatInt(opts.EndTime, 10))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp []APIKline
	if err := c.get(ctx, "/api/v3/klines", query, weightKlines, &resp); err != nil {
		return nil, fmt.Errorf("get candlesticks %s: %w", symbol, err)
	}

	now := time.Now()
	candles := make([]model.Candlestick, 0, len(resp))
	for i, row := range resp {
		candle, err := row.ToModel(symbol, interval, now)
		if err != nil {
			return nil, fmt.Errorf("get candlesticks %s: row %d: %w", symbol, i, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}
