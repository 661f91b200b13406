package config

import "time"

// Config is the root configuration for a market cache instance.
type Config struct {
	API        APIConfig        `yaml:"api"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Streams    StreamsConfig    `yaml:"streams"`
	Retry      RetryConfig      `yaml:"retry"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Caches     CachesConfig     `yaml:"caches"`
	Poller     PollerConfig     `yaml:"poller"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	RestURL      string        `yaml:"rest_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// RateLimitsConfig holds the REST quota buckets.
type RateLimitsConfig struct {
	Disabled bool           `yaml:"disabled"`
	Buckets  []BucketConfig `yaml:"buckets"`
}

// BucketConfig is one rolling window quota.
type BucketConfig struct {
	Duration time.Duration `yaml:"duration"`
	MaxCount int           `yaml:"max_count"`
}

// StreamsConfig holds WebSocket multiplexer settings.
type StreamsConfig struct {
	URL              string        `yaml:"url"`
	Mode             string        `yaml:"mode"` // combined or single
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RetryConfig holds the delay schedule between failed stream attempts.
type RetryConfig struct {
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
	Factor   float64       `yaml:"factor"`
}

// PipelineConfig holds per-subscription pipeline settings.
type PipelineConfig struct {
	InitialCapacity int    `yaml:"initial_capacity"`
	StopMode        string `yaml:"stop_mode"` // drain or discard
}

// CachesConfig lists the cache subscriptions to start.
type CachesConfig struct {
	SnapshotLimit int                  `yaml:"snapshot_limit"`
	FastDepth     bool                 `yaml:"fast_depth"`
	OrderBooks    []OrderBookSubConfig `yaml:"order_books"`
	Trades        []TradeSubConfig     `yaml:"trades"`
	Candles       []CandleSubConfig    `yaml:"candles"`
}

// OrderBookSubConfig is one order book subscription. Limit 0 follows the full
// book; 5, 10 or 20 follow a partial book.
type OrderBookSubConfig struct {
	Symbol string `yaml:"symbol"`
	Limit  int    `yaml:"limit"`
}

// TradeSubConfig is one aggregate trade subscription.
type TradeSubConfig struct {
	Symbol string `yaml:"symbol"`
	Limit  int    `yaml:"limit"`
}

// CandleSubConfig is one candlestick subscription.
type CandleSubConfig struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
	Limit    int    `yaml:"limit"`
}

// PollerConfig holds periodic resync settings. An interval of 0 disables
// forced resyncs.
type PollerConfig struct {
	ResyncInterval  time.Duration `yaml:"resync_interval"`
	SymbolsInterval time.Duration `yaml:"symbols_interval"`
	Concurrency     int           `yaml:"concurrency"`
}

// RecorderConfig holds optional persistence of trades, closed candles and
// order book snapshots.
type RecorderConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Database DBConfig      `yaml:"database"`
	Writers  WritersConfig `yaml:"writers"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`

	// Order book snapshots are recorded at most once per interval per
	// symbol, keeping the top SnapshotDepth levels. Zero interval disables.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotDepth    int           `yaml:"snapshot_depth"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
