package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// batcher queues rows on a bounded channel and writes them in batches on size
// or interval, whichever comes first. Each writer wraps one with its own
// insert statement.
type batcher[R any] struct {
	name   string
	cfg    WriterConfig
	logger *slog.Logger

	input  chan R
	insert func(ctx context.Context, rows []R) (conflicts int, err error)

	// Batching
	batch   []R
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics (guarded by batchMu)
	metrics WriterMetrics
}

func newBatcher[R any](
	name string,
	cfg WriterConfig,
	insert func(context.Context, []R) (int, error),
	logger *slog.Logger,
) *batcher[R] {
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &batcher[R]{
		name:   name,
		cfg:    cfg,
		logger: logger.With("component", name),
		input:  make(chan R, cfg.BufferSize),
		insert: insert,
		batch:  make([]R, 0, cfg.BatchSize),
	}
}

// Start begins consuming rows and writing to the database.
func (w *batcher[R]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes queued rows using ctx.
func (w *batcher[R]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	// Drain rows still queued.
drain:
	for {
		select {
		case row := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, row)
			w.batchMu.Unlock()
		default:
			break drain
		}
	}

	w.flush(ctx)
	w.logger.Info("writer stopped")

	return nil
}

// Stats returns current metrics.
func (w *batcher[R]) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// offer queues a row without blocking. It reports false when the queue is
// full and the row was dropped.
func (w *batcher[R]) offer(row R) bool {
	select {
	case w.input <- row:
		return true
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return false
	}
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *batcher[R]) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case row := <-w.input:
			w.add(row)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *batcher[R]) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a row to the batch and flushes when it is full.
func (w *batcher[R]) add(row R) {
	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes the current batch to the database.
func (w *batcher[R]) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.insert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}
