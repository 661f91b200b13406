package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL          = "https://api.binance.com"
	DefaultStreamURL        = "wss://stream.binance.com:9443"
	DefaultStreamMode       = "combined"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBackoff     = 1 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultStreamBuffer     = 10000
	DefaultRetryMinDelay    = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultRetryFactor      = 2.0
	DefaultPipelineCapacity = 64
	DefaultStopMode         = "drain"
	DefaultSnapshotLimit    = 1000
	DefaultTradeLimit       = 500
	DefaultCandleLimit      = 500
	DefaultSymbolsInterval  = 15 * time.Minute
	DefaultPollConcurrency  = 4
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 1000
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 10000
	DefaultSnapshotDepth    = 20
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultBuckets are the published REST quotas: 1200 weight per minute and
// 10 requests per second.
func DefaultBuckets() []BucketConfig {
	return []BucketConfig{
		{Duration: time.Minute, MaxCount: 1200},
		{Duration: time.Second, MaxCount: 10},
	}
}

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Rate limit defaults
	if len(c.RateLimits.Buckets) == 0 {
		c.RateLimits.Buckets = DefaultBuckets()
	}

	// Stream defaults
	if c.Streams.URL == "" {
		c.Streams.URL = DefaultStreamURL
	}
	if c.Streams.Mode == "" {
		c.Streams.Mode = DefaultStreamMode
	}
	if c.Streams.PingInterval == 0 {
		c.Streams.PingInterval = DefaultPingInterval
	}
	if c.Streams.PingTimeout == 0 {
		c.Streams.PingTimeout = DefaultPingTimeout
	}
	if c.Streams.WriteTimeout == 0 {
		c.Streams.WriteTimeout = DefaultWriteTimeout
	}
	if c.Streams.HandshakeTimeout == 0 {
		c.Streams.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Streams.BufferSize == 0 {
		c.Streams.BufferSize = DefaultStreamBuffer
	}

	// Retry defaults
	if c.Retry.MinDelay == 0 {
		c.Retry.MinDelay = DefaultRetryMinDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultRetryMaxDelay
	}
	if c.Retry.Factor == 0 {
		c.Retry.Factor = DefaultRetryFactor
	}

	// Pipeline defaults
	if c.Pipeline.InitialCapacity == 0 {
		c.Pipeline.InitialCapacity = DefaultPipelineCapacity
	}
	if c.Pipeline.StopMode == "" {
		c.Pipeline.StopMode = DefaultStopMode
	}

	// Cache defaults
	if c.Caches.SnapshotLimit == 0 {
		c.Caches.SnapshotLimit = DefaultSnapshotLimit
	}
	for i := range c.Caches.Trades {
		if c.Caches.Trades[i].Limit == 0 {
			c.Caches.Trades[i].Limit = DefaultTradeLimit
		}
	}
	for i := range c.Caches.Candles {
		if c.Caches.Candles[i].Limit == 0 {
			c.Caches.Candles[i].Limit = DefaultCandleLimit
		}
	}

	// Poller defaults
	if c.Poller.SymbolsInterval == 0 {
		c.Poller.SymbolsInterval = DefaultSymbolsInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	// Recorder defaults
	applyDBDefaults(&c.Recorder.Database)
	if c.Recorder.Writers.BatchSize == 0 {
		c.Recorder.Writers.BatchSize = DefaultBatchSize
	}
	if c.Recorder.Writers.FlushInterval == 0 {
		c.Recorder.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.Writers.BufferSize == 0 {
		c.Recorder.Writers.BufferSize = DefaultBufferSize
	}
	if c.Recorder.Writers.SnapshotDepth == 0 {
		c.Recorder.Writers.SnapshotDepth = DefaultSnapshotDepth
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
