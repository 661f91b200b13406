package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Delay(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &window{Bucket: Bucket{Duration: time.Minute, MaxCount: 10}}

	for i := 0; i < 10; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		require.Zero(t, w.delay(now, 1), "acquisition %d should be immediate", i+1)
		w.record(now, 1)
	}

	// The 11th waits for the first usage to leave the 60s window.
	now := t0.Add(10 * time.Second)
	assert.Equal(t, 50*time.Second, w.delay(now, 1))

	// Once the first usage has aged out there is room again.
	assert.Zero(t, w.delay(t0.Add(time.Minute), 1))
	assert.Equal(t, 9, w.used)
}

func TestWindow_DelayWithWeight(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &window{Bucket: Bucket{Duration: 10 * time.Second, MaxCount: 10}}

	w.record(t0, 4)
	w.record(t0.Add(time.Second), 4)
	w.record(t0.Add(2*time.Second), 2)

	// Weight 5 needs 5 units freed: the first two entries (4 + 4) must expire.
	assert.Equal(t, 8*time.Second, w.delay(t0.Add(3*time.Second), 5))
}

func TestLimiter_Configure(t *testing.T) {
	l := New()

	require.NoError(t, l.Configure(time.Minute, 1200))
	require.NoError(t, l.Configure(time.Second, 10))
	assert.Equal(t, []Bucket{
		{Duration: time.Second, MaxCount: 10},
		{Duration: time.Minute, MaxCount: 1200},
	}, l.Buckets())

	// Replace.
	require.NoError(t, l.Configure(time.Second, 20))
	assert.Equal(t, 20, l.Buckets()[0].MaxCount)

	// Remove.
	require.NoError(t, l.Configure(time.Second, 0))
	assert.Len(t, l.Buckets(), 1)

	assert.ErrorIs(t, l.Configure(0, 10), ErrInvalidBucket)
	assert.ErrorIs(t, l.Configure(time.Second, -1), ErrInvalidBucket)
}

func TestLimiter_ImmediateThenDelayed(t *testing.T) {
	const window = 300 * time.Millisecond
	l := New(WithBuckets(Bucket{Duration: window, MaxCount: 10}))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx, 1))
	}
	assert.Less(t, time.Since(start), window/2, "first 10 acquisitions should not wait")

	require.NoError(t, l.Acquire(ctx, 1))
	assert.GreaterOrEqual(t, time.Since(start), window-20*time.Millisecond,
		"11th acquisition should wait for the window to slide")
}

func TestLimiter_BurstCheckedWithSustained(t *testing.T) {
	l := New(WithBuckets(
		Bucket{Duration: time.Minute, MaxCount: 100},
		Bucket{Duration: 200 * time.Millisecond, MaxCount: 2},
	))
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, 1))
	require.NoError(t, l.Acquire(ctx, 1))
	require.NoError(t, l.Acquire(ctx, 1))

	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestLimiter_WeightExceedsCapacity(t *testing.T) {
	l := New(WithBuckets(
		Bucket{Duration: time.Minute, MaxCount: 100},
		Bucket{Duration: time.Second, MaxCount: 10},
	))

	start := time.Now()
	err := l.Acquire(context.Background(), 11)
	assert.ErrorIs(t, err, ErrWeightExceedsCapacity)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	assert.ErrorIs(t, l.Acquire(context.Background(), 0), ErrInvalidWeight)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(WithBuckets(Bucket{Duration: time.Hour, MaxCount: 1}))
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(WithBuckets(Bucket{Duration: time.Hour, MaxCount: 1}))
	l.SetEnabled(false)
	assert.False(t, l.Enabled())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background(), 2))
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	const window = 200 * time.Millisecond
	l := New(WithBuckets(Bucket{Duration: window, MaxCount: 5}))

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(context.Background(), 1)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	// 12 admissions through a 5-per-window bucket need at least two slides.
	assert.GreaterOrEqual(t, time.Since(start), 2*window-40*time.Millisecond)
}
