// streamtest connects to Binance market streams and prints frames to console.
// Usage: go run ./cmd/streamtest btcusdt@depth@100ms btcusdt@aggTrade btcusdt@kline_1m btcusdt@ticker
//
// Optional environment variables (also read from .env):
//
//	BINANCE_STREAM_URL - stream base URL (default wss://stream.binance.com:9443)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/binance-cache/internal/api"
	"github.com/rickgao/binance-cache/internal/config"
	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/retry"
	"github.com/rickgao/binance-cache/internal/version"
)

func main() {
	modeFlag := flag.String("mode", "combined", "stream mode: combined or single")
	verbose := flag.Bool("verbose", false, "print raw frame JSON")
	flag.Parse()

	// .env is optional here.
	_ = godotenv.Load()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	channels := flag.Args()
	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "usage: streamtest [flags] <channel>...")
		os.Exit(2)
	}

	mode, err := connection.ParseMode(*modeFlag)
	if err != nil {
		logger.Error("invalid mode", "error", err)
		os.Exit(2)
	}

	baseURL := os.Getenv("BINANCE_STREAM_URL")
	if baseURL == "" {
		baseURL = config.DefaultStreamURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	muxCfg := connection.DefaultMultiplexerConfig()
	muxCfg.BaseURL = baseURL
	muxCfg.Mode = mode
	muxCfg.Client.UserAgent = version.UserAgent("streamtest")
	mux := connection.NewMultiplexer(muxCfg, logger)

	printer := connection.NewHandler(func(f connection.Frame) {
		printFrame(f, *verbose)
	})
	for _, ch := range channels {
		if err := mux.Subscribe(ch, printer); err != nil {
			logger.Error("failed to subscribe", "channel", ch, "error", err)
			os.Exit(1)
		}
	}

	ctrl := retry.NewController(retry.WithBackoff(mux.Stream, retry.DefaultBackoff()),
		retry.WithLogger(logger),
		retry.WithErrorHandler(func(err error) {
			logger.Warn("stream failed, reconnecting", "error", err)
		}),
	)
	if err := ctrl.Begin(); err != nil {
		logger.Error("failed to start stream", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := mux.Stats()
				logger.Info("stats",
					"connected", st.Connected,
					"sessions", st.Sessions,
					"frames", st.FramesDispatched,
					"unrouted", st.FramesUnrouted,
					"malformed", st.FramesMalformed,
					"attempts", ctrl.Attempts(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop", "channels", channels, "mode", mode)

	// Wait for shutdown
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	ctrl.Cancel(shutdownCtx)
	ctrl.Close()

	logger.Info("shutdown complete")
}

// printFrame decodes known channel types and prints one line per frame.
func printFrame(f connection.Frame, verbose bool) {
	if verbose {
		fmt.Printf("[%s] %s\n", f.Channel, f.Data)
		return
	}

	symbol, kind, _ := strings.Cut(f.Channel, "@")
	switch {
	case kind == "aggTrade":
		t, err := api.DecodeAggregateTrade(f.Data)
		if err != nil {
			fmt.Printf("[TRADE] %s decode error: %v\n", f.Channel, err)
			return
		}
		fmt.Printf("[TRADE] symbol=%s id=%d price=%s qty=%s buyer_maker=%t\n",
			t.Symbol, t.ID, t.Price, t.Quantity, t.IsBuyerMaker)

	case kind == "ticker":
		st, err := api.DecodeSymbolStatistics(f.Data)
		if err != nil {
			fmt.Printf("[TICKER] %s decode error: %v\n", f.Channel, err)
			return
		}
		fmt.Printf("[TICKER] symbol=%s last=%s change=%s%% high=%s low=%s volume=%s trades=%d\n",
			st.Symbol, st.LastPrice, st.PriceChangePercent, st.HighPrice, st.LowPrice, st.Volume, st.TradeCount)

	case strings.HasPrefix(kind, "kline_"):
		c, err := api.DecodeCandlestick(f.Data)
		if err != nil {
			fmt.Printf("[KLINE] %s decode error: %v\n", f.Channel, err)
			return
		}
		fmt.Printf("[KLINE] symbol=%s interval=%s open=%d o=%s h=%s l=%s c=%s closed=%t\n",
			c.Symbol, c.Interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.IsClosed)

	case kind == "depth" || strings.HasPrefix(kind, "depth@"):
		u, err := api.DecodeDepthUpdate(f.Data)
		if err != nil {
			fmt.Printf("[DEPTH] %s decode error: %v\n", f.Channel, err)
			return
		}
		fmt.Printf("[DEPTH] symbol=%s ids=%d..%d bids=%d asks=%d\n",
			u.Symbol, u.FirstUpdateID, u.FinalUpdateID, len(u.Bids), len(u.Asks))

	case strings.HasPrefix(kind, "depth"):
		b, err := api.DecodePartialDepth(symbol, f.Data)
		if err != nil {
			fmt.Printf("[BOOK] %s decode error: %v\n", f.Channel, err)
			return
		}
		bid, _ := b.BestBid()
		ask, _ := b.BestAsk()
		fmt.Printf("[BOOK] symbol=%s last_update_id=%d bid=%s ask=%s\n",
			b.Symbol, b.LastUpdateID, bid.Price, ask.Price)

	default:
		fmt.Printf("[%s] %s\n", f.Channel, f.Data)
	}
}
