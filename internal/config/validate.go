package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/binance-cache/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	for i, b := range c.RateLimits.Buckets {
		if b.Duration <= 0 {
			return fmt.Errorf("rate_limits.buckets[%d].duration must be > 0", i)
		}
		if b.MaxCount < 1 {
			return fmt.Errorf("rate_limits.buckets[%d].max_count must be >= 1", i)
		}
	}

	if c.Streams.URL == "" {
		return errors.New("streams.url is required")
	}
	switch c.Streams.Mode {
	case "combined", "single":
	default:
		return fmt.Errorf("streams.mode must be combined or single, got %q", c.Streams.Mode)
	}
	if c.Streams.PingTimeout <= c.Streams.PingInterval {
		return fmt.Errorf("streams.ping_timeout (%s) must exceed ping_interval (%s)", c.Streams.PingTimeout, c.Streams.PingInterval)
	}
	if c.Streams.BufferSize < 1 {
		return errors.New("streams.buffer_size must be >= 1")
	}

	if c.Retry.MinDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.min_delay (%s) cannot exceed max_delay (%s)", c.Retry.MinDelay, c.Retry.MaxDelay)
	}
	if c.Retry.Factor < 1 {
		return errors.New("retry.factor must be >= 1")
	}

	switch c.Pipeline.StopMode {
	case "drain", "discard":
	default:
		return fmt.Errorf("pipeline.stop_mode must be drain or discard, got %q", c.Pipeline.StopMode)
	}

	if err := c.Caches.validate(); err != nil {
		return err
	}

	if c.Poller.ResyncInterval < 0 {
		return errors.New("poller.resync_interval must be >= 0")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Recorder.Enabled {
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
		if c.Recorder.Writers.BatchSize < 1 {
			return errors.New("recorder.writers.batch_size must be >= 1")
		}
		if c.Recorder.Writers.BufferSize < 1 {
			return errors.New("recorder.writers.buffer_size must be >= 1")
		}
		if c.Recorder.Writers.SnapshotInterval < 0 {
			return errors.New("recorder.writers.snapshot_interval must be >= 0")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (c *CachesConfig) validate() error {
	if c.SnapshotLimit < 1 || c.SnapshotLimit > 5000 {
		return fmt.Errorf("caches.snapshot_limit must be between 1 and 5000, got %d", c.SnapshotLimit)
	}

	seen := make(map[string]bool)
	unique := func(prefix, key string) error {
		if seen[key] {
			return fmt.Errorf("%s: duplicate subscription %s", prefix, key)
		}
		seen[key] = true
		return nil
	}

	for i, ob := range c.OrderBooks {
		prefix := fmt.Sprintf("caches.order_books[%d]", i)
		if strings.TrimSpace(ob.Symbol) == "" {
			return fmt.Errorf("%s.symbol is required", prefix)
		}
		switch ob.Limit {
		case 0, 5, 10, 20:
		default:
			return fmt.Errorf("%s.limit must be 0, 5, 10 or 20, got %d", prefix, ob.Limit)
		}
		if err := unique(prefix, "book:"+strings.ToUpper(ob.Symbol)); err != nil {
			return err
		}
	}

	for i, tr := range c.Trades {
		prefix := fmt.Sprintf("caches.trades[%d]", i)
		if strings.TrimSpace(tr.Symbol) == "" {
			return fmt.Errorf("%s.symbol is required", prefix)
		}
		if tr.Limit < 1 || tr.Limit > 1000 {
			return fmt.Errorf("%s.limit must be between 1 and 1000, got %d", prefix, tr.Limit)
		}
		if err := unique(prefix, "trades:"+strings.ToUpper(tr.Symbol)); err != nil {
			return err
		}
	}

	for i, cs := range c.Candles {
		prefix := fmt.Sprintf("caches.candles[%d]", i)
		if strings.TrimSpace(cs.Symbol) == "" {
			return fmt.Errorf("%s.symbol is required", prefix)
		}
		if _, err := model.ParseInterval(cs.Interval); err != nil {
			return fmt.Errorf("%s.interval: %w", prefix, err)
		}
		if cs.Limit < 1 || cs.Limit > 1000 {
			return fmt.Errorf("%s.limit must be between 1 and 1000, got %d", prefix, cs.Limit)
		}
		if err := unique(prefix, "candles:"+strings.ToUpper(cs.Symbol)+"/"+cs.Interval); err != nil {
			return err
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
