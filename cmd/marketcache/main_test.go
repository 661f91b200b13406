package main

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/rickgao/binance-cache/internal/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "symbol", "BTCUSDT")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["symbol"] != "BTCUSDT" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewLogger_TextDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{})

	logger.Debug("hidden")
	logger.Info("shown")

	if !strings.Contains(buf.String(), "msg=shown") || strings.Contains(buf.String(), "hidden") {
		t.Errorf("output = %q", buf.String())
	}
	if !logger.Enabled(context.Background(), 0) {
		t.Error("info level should be enabled")
	}
}

func TestSubscribedSymbols(t *testing.T) {
	cfg := config.CachesConfig{
		OrderBooks: []config.OrderBookSubConfig{{Symbol: "btcusdt"}, {Symbol: "ETHUSDT", Limit: 10}},
		Trades:     []config.TradeSubConfig{{Symbol: " BTCUSDT "}},
		Candles:    []config.CandleSubConfig{{Symbol: "BNBUSDT", Interval: "1m"}},
	}

	got := subscribedSymbols(cfg)
	want := []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}
	if !slices.Equal(got, want) {
		t.Errorf("subscribedSymbols() = %v, want %v", got, want)
	}
}
