// marketcache keeps order books, aggregate trades and candlesticks in memory
// from Binance market streams, optionally recording them to PostgreSQL.
// Usage: go run ./cmd/marketcache --config configs/marketcache.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/binance-cache/internal/api"
	"github.com/rickgao/binance-cache/internal/config"
	"github.com/rickgao/binance-cache/internal/connection"
	"github.com/rickgao/binance-cache/internal/database"
	"github.com/rickgao/binance-cache/internal/market"
	"github.com/rickgao/binance-cache/internal/poller"
	"github.com/rickgao/binance-cache/internal/ratelimit"
	"github.com/rickgao/binance-cache/internal/retry"
	"github.com/rickgao/binance-cache/internal/version"
	"github.com/rickgao/binance-cache/internal/writer"
)

const programName = "marketcache"

func main() {
	configPath := flag.String("config", "configs/marketcache.example.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting "+programName,
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error(programName+" failed", "error", err)
		os.Exit(1)
	}
	logger.Info(programName + " stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Rate limiter shared by every REST call
	buckets := make([]ratelimit.Bucket, 0, len(cfg.RateLimits.Buckets))
	for _, b := range cfg.RateLimits.Buckets {
		buckets = append(buckets, ratelimit.Bucket{Duration: b.Duration, MaxCount: b.MaxCount})
	}
	limiter := ratelimit.New(ratelimit.WithLogger(logger), ratelimit.WithBuckets(buckets...))
	limiter.SetEnabled(!cfg.RateLimits.Disabled)

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithRateLimiter(limiter),
		api.WithUserAgent(version.UserAgent(programName)),
	)

	// Check exchange connectivity
	serverTime, err := apiClient.GetServerTime(ctx)
	if err != nil {
		return err
	}
	logger.Info("exchange reachable",
		"rest_url", cfg.API.RestURL,
		"clock_skew", time.Until(serverTime).Round(time.Millisecond),
	)

	// Create symbol registry restricted to the configured symbols
	registry := market.NewRegistry(market.Config{
		ReconcileInterval: cfg.Poller.SymbolsInterval,
		Symbols:           subscribedSymbols(cfg.Caches),
	}, apiClient, logger)

	logger.Info("starting symbol registry (initial sync)...")
	if err := registry.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		registry.Stop(shutdownCtx)
	}()

	// Optional recorder
	var rec recorders
	if cfg.Recorder.Enabled {
		stop, err := startRecorder(ctx, cfg, &rec, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	// Stream multiplexer
	mode, err := connection.ParseMode(cfg.Streams.Mode)
	if err != nil {
		return err
	}
	mux := connection.NewMultiplexer(connection.MultiplexerConfig{
		BaseURL: cfg.Streams.URL,
		Mode:    mode,
		Client: connection.ClientConfig{
			UserAgent:        version.UserAgent(programName),
			PingInterval:     cfg.Streams.PingInterval,
			PingTimeout:      cfg.Streams.PingTimeout,
			WriteTimeout:     cfg.Streams.WriteTimeout,
			HandshakeTimeout: cfg.Streams.HandshakeTimeout,
			BufferSize:       cfg.Streams.BufferSize,
		},
	}, logger)

	// Caches
	handles, err := startCaches(ctx, cfg, apiClient, mux, registry, rec, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		for _, h := range handles {
			if err := h.sub.Unsubscribe(shutdownCtx); err != nil {
				logger.Warn("unsubscribe failed", "cache", h.name, "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return errors.New("no cache subscriptions to run")
	}
	logger.Info("caches subscribed", "count", len(handles), "mode", mode)

	// Reconnect controller keeps the multiplexer streaming
	stream := retry.WithBackoff(mux.Stream, &backoff.Backoff{
		Min:    cfg.Retry.MinDelay,
		Max:    cfg.Retry.MaxDelay,
		Factor: cfg.Retry.Factor,
		Jitter: true,
	})
	ctrl := retry.NewController(stream,
		retry.WithLogger(logger),
		retry.WithErrorHandler(func(err error) {
			logger.Warn("stream failed, reconnecting", "error", err)
		}),
		retry.WithStateHandler(func(t retry.Transition) {
			logger.Debug("stream state", "from", t.From, "to", t.To)
		}),
	)
	if err := ctrl.Begin(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := ctrl.Cancel(shutdownCtx); err != nil {
			logger.Warn("stream cancel timed out", "error", err)
		}
		ctrl.Close()
	}()

	// Resync poller
	poll := poller.New(poller.Config{
		Interval:    cfg.Poller.ResyncInterval,
		Concurrency: cfg.Poller.Concurrency,
	}, registry, logger)
	for _, t := range pollerTargets(handles) {
		poll.Add(t)
	}
	if err := poll.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		poll.Stop(shutdownCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watchSymbols(gctx, registry, handles, logger)
		return nil
	})
	g.Go(func() error {
		reportStats(gctx, mux, handles, poll, logger)
		return nil
	})

	logger.Info(programName + " running - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	return g.Wait()
}

// startRecorder connects to the database and starts the writers. The returned
// function stops them and closes the pool.
func startRecorder(ctx context.Context, cfg *config.Config, rec *recorders, logger *slog.Logger) (func(), error) {
	db := cfg.Recorder.Database
	logger.Info("connecting to database",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	pool, err := database.Connect(ctx, db, programName)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database connected")

	wcfg := writer.WriterConfig{
		BatchSize:     cfg.Recorder.Writers.BatchSize,
		FlushInterval: cfg.Recorder.Writers.FlushInterval,
		BufferSize:    cfg.Recorder.Writers.BufferSize,
	}
	rec.trades = writer.NewTradeWriter(wcfg, pool, logger)
	rec.candles = writer.NewCandleWriter(wcfg, pool, logger)

	type lifecycle interface {
		Start(context.Context) error
		Stop(context.Context) error
	}
	started := []lifecycle{rec.trades, rec.candles}

	if cfg.Recorder.Writers.SnapshotInterval > 0 {
		rec.books = writer.NewBookSnapshotWriter(wcfg, writer.BookSnapshotConfig{
			Interval: cfg.Recorder.Writers.SnapshotInterval,
			Depth:    cfg.Recorder.Writers.SnapshotDepth,
		}, pool, logger)
		started = append(started, rec.books)
	}

	for _, w := range started {
		if err := w.Start(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		for _, w := range started {
			if err := w.Stop(shutdownCtx); err != nil {
				logger.Warn("writer stop failed", "error", err)
			}
		}
		pool.Close()
	}, nil
}

// watchSymbols logs status changes that affect subscribed symbols.
func watchSymbols(ctx context.Context, registry market.Registry, handles []handle, logger *slog.Logger) {
	subscribed := make(map[string][]string)
	for _, h := range handles {
		sym := normalizeSymbol(h.symbol)
		subscribed[sym] = append(subscribed[sym], h.name)
	}

	changes := registry.SubscribeChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-changes:
			caches, ok := subscribed[ch.Symbol]
			if !ok || ch.EventType == market.EventListed {
				continue
			}
			logger.Warn("subscribed symbol changed status",
				"symbol", ch.Symbol,
				"event", ch.EventType,
				"old_status", ch.OldStatus,
				"new_status", ch.NewStatus,
				"caches", caches,
			)
		}
	}
}

// reportStats logs multiplexer, cache and poller counters periodically.
func reportStats(ctx context.Context, mux *connection.Multiplexer, handles []handle, poll *poller.Poller, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ms := mux.Stats()
			ps := poll.Stats()
			logger.Info("stream stats",
				"connected", ms.Connected,
				"session", ms.Session,
				"sessions", ms.Sessions,
				"channels", ms.Channels,
				"frames", ms.FramesDispatched,
				"unrouted", ms.FramesUnrouted,
				"malformed", ms.FramesMalformed,
				"resyncs", ps.Requested,
			)
			for _, h := range handles {
				st := h.sub.Stats()
				logger.Debug("cache stats",
					"cache", h.name,
					"sequence", st.Sequence,
					"applied", st.Applied,
					"stale", st.Stale,
					"gaps", st.Gaps,
					"snapshots", st.Snapshots,
					"pending", st.Pipeline.Pending,
				)
			}
		}
	}
}
