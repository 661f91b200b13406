package api

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/binance-cache/internal/model"
)

func TestChannelNames(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{DepthChannel("BTCUSDT", false), "btcusdt@depth"},
		{DepthChannel("BTCUSDT", true), "btcusdt@depth@100ms"},
		{PartialDepthChannel("ethBTC", 10, false), "ethbtc@depth10"},
		{PartialDepthChannel("ethbtc", 5, true), "ethbtc@depth5@100ms"},
		{AggTradeChannel("BNBUSDT"), "bnbusdt@aggTrade"},
		{KlineChannel("BNBUSDT", model.Interval1M), "bnbusdt@kline_1M"},
		{TickerChannel("BTCUSDT"), "btcusdt@ticker"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("channel = %q, want %q", tt.got, tt.want)
		}
	}

	for _, levels := range []int{5, 10, 20} {
		if !ValidPartialDepth(levels) {
			t.Errorf("ValidPartialDepth(%d) = false", levels)
		}
	}
	if ValidPartialDepth(15) {
		t.Error("ValidPartialDepth(15) = true")
	}
}

func TestDecodeDepthUpdate(t *testing.T) {
	data := []byte(`{
		"e": "depthUpdate", "E": 1672515782136, "s": "BNBBTC",
		"U": 157, "u": 160,
		"b": [["0.0024", "10"]],
		"a": [["0.0026", "100"], ["0.0027", "0"]]
	}`)

	u, err := DecodeDepthUpdate(data)
	if err != nil {
		t.Fatalf("DecodeDepthUpdate: %v", err)
	}
	if u.Symbol != "BNBBTC" || u.EventTime != 1672515782136 {
		t.Errorf("header = %s/%d", u.Symbol, u.EventTime)
	}
	if u.FirstUpdateID != 157 || u.FinalUpdateID != 160 {
		t.Errorf("ids = %d..%d, want 157..160", u.FirstUpdateID, u.FinalUpdateID)
	}
	if len(u.Bids) != 1 || len(u.Asks) != 2 {
		t.Fatalf("levels = %d/%d", len(u.Bids), len(u.Asks))
	}
	if !u.Asks[1].Quantity.IsZero() {
		t.Errorf("removal level qty = %s", u.Asks[1].Quantity)
	}

	bad := [][]byte{
		[]byte(`{"e":"aggTrade"}`),
		[]byte(`{"e":"depthUpdate","U":10,"u":9}`),
		[]byte(`{"e":"depthUpdate","U":1,"u":2,"b":[["x","1"]]}`),
		[]byte(`not json`),
	}
	for _, b := range bad {
		if _, err := DecodeDepthUpdate(b); err == nil {
			t.Errorf("DecodeDepthUpdate(%s) should fail", b)
		}
	}
}

func TestDecodePartialDepth(t *testing.T) {
	data := []byte(`{"lastUpdateId":160,"bids":[["0.0024","10"]],"asks":[["0.0026","100"]]}`)
	book, err := DecodePartialDepth("bnbbtc", data)
	if err != nil {
		t.Fatalf("DecodePartialDepth: %v", err)
	}
	if book.Symbol != "BNBBTC" || book.LastUpdateID != 160 {
		t.Errorf("book = %s/%d", book.Symbol, book.LastUpdateID)
	}
	if mid, ok := book.MidPrice(); !ok || !mid.Equal(decimal.RequireFromString("0.0025")) {
		t.Errorf("mid = %s, %v", mid, ok)
	}
}

func TestDecodeAggregateTrade(t *testing.T) {
	data := []byte(`{
		"e": "aggTrade", "E": 1672515782136, "s": "BNBBTC",
		"a": 12345, "p": "0.001", "q": "100",
		"f": 100, "l": 105, "T": 1672515782130,
		"m": true, "M": false
	}`)

	tr, err := DecodeAggregateTrade(data)
	if err != nil {
		t.Fatalf("DecodeAggregateTrade: %v", err)
	}
	if tr.ID != 12345 || tr.FirstTradeID != 100 || tr.LastTradeID != 105 {
		t.Errorf("ids = %d %d %d", tr.ID, tr.FirstTradeID, tr.LastTradeID)
	}
	if tr.EventTime != 1672515782136 || tr.TradeTime != 1672515782130 {
		t.Errorf("times = %d %d", tr.EventTime, tr.TradeTime)
	}
	if !tr.IsBuyerMaker || tr.IsBestMatch {
		t.Errorf("flags = %v %v, want true false", tr.IsBuyerMaker, tr.IsBestMatch)
	}
	if !tr.Price.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("price = %s", tr.Price)
	}
}

func TestDecodeCandlestick(t *testing.T) {
	data := []byte(`{
		"e": "kline", "E": 1672515782136, "s": "BNBBTC",
		"k": {
			"t": 1672515780000, "T": 1672515839999, "s": "BNBBTC", "i": "1m",
			"f": 100, "L": 200,
			"o": "0.0010", "c": "0.0020", "h": "0.0025", "l": "0.0015",
			"v": "1000", "n": 100, "x": false,
			"q": "1.0000", "V": "500", "Q": "0.500", "B": "123456"
		}
	}`)

	c, err := DecodeCandlestick(data)
	if err != nil {
		t.Fatalf("DecodeCandlestick: %v", err)
	}
	if c.Interval != model.Interval1m || c.Symbol != "BNBBTC" {
		t.Errorf("key = %s/%s", c.Symbol, c.Interval)
	}
	if c.OpenTime != 1672515780000 || c.CloseTime != 1672515839999 {
		t.Errorf("times = %d..%d", c.OpenTime, c.CloseTime)
	}
	if c.FirstTradeID != 100 || c.LastTradeID != 200 {
		t.Errorf("trade ids = %d..%d", c.FirstTradeID, c.LastTradeID)
	}
	if !c.Low.Equal(decimal.RequireFromString("0.0015")) || !c.Volume.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("low/volume = %s/%s", c.Low, c.Volume)
	}
	if !c.QuoteVolume.Equal(decimal.NewFromInt(1)) || !c.TakerBuyBaseVolume.Equal(decimal.NewFromInt(500)) {
		t.Errorf("quote/taker = %s/%s", c.QuoteVolume, c.TakerBuyBaseVolume)
	}
	if c.IsClosed {
		t.Error("candle should be open")
	}
	if c.Sequence() != 1672515780000/60000 {
		t.Errorf("Sequence = %d", c.Sequence())
	}

	if _, err := DecodeCandlestick([]byte(`{"e":"kline","k":{"i":"7m"}}`)); err == nil {
		t.Error("expected error for unknown interval")
	}
}

func TestDecodeSymbolStatistics(t *testing.T) {
	data := []byte(`{
		"e": "24hrTicker", "E": 1672515782136, "s": "BNBBTC",
		"p": "0.0015", "P": "250.00", "w": "0.0018", "x": "0.0009",
		"c": "0.0025", "Q": "10", "b": "0.0024", "B": "10",
		"a": "0.0026", "A": "100", "o": "0.0010", "h": "0.0025",
		"l": "0.0010", "v": "10000", "q": "18",
		"O": 0, "C": 86400000, "F": 0, "L": 18150, "n": 18151
	}`)

	st, err := DecodeSymbolStatistics(data)
	if err != nil {
		t.Fatalf("DecodeSymbolStatistics: %v", err)
	}
	if st.Symbol != "BNBBTC" || st.EventTime != 1672515782136 {
		t.Errorf("symbol/time = %s %d", st.Symbol, st.EventTime)
	}
	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"PriceChangePercent", st.PriceChangePercent, "250"},
		{"LastPrice", st.LastPrice, "0.0025"},
		{"LastQuantity", st.LastQuantity, "10"},
		{"BidPrice", st.BidPrice, "0.0024"},
		{"AskQuantity", st.AskQuantity, "100"},
		{"OpenPrice", st.OpenPrice, "0.0010"},
		{"LowPrice", st.LowPrice, "0.0010"},
		{"QuoteVolume", st.QuoteVolume, "18"},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if st.CloseTime != 86400000 || st.LastTradeID != 18150 || st.TradeCount != 18151 {
		t.Errorf("window = %d %d %d", st.CloseTime, st.LastTradeID, st.TradeCount)
	}

	if _, err := DecodeSymbolStatistics([]byte(`{"e":"aggTrade"}`)); err == nil {
		t.Error("expected error for wrong event type")
	}
}
