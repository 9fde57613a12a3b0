package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/postcraft/edge/internal/services/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBucket() (*TokenBucket, *clock) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore(kv.WithClock(c.Now))
	return NewTokenBucket(store, WithClock(c.Now)), c
}

func TestConsumeBurstThenRefill(t *testing.T) {
	ctx := context.Background()
	tb, c := newTestBucket()

	var got []bool
	for range 3 {
		d, err := tb.Consume(ctx, "user:anon:ip:1.2.3.4", 2, 1)
		require.NoError(t, err)
		got = append(got, d.Allowed)
	}
	assert.Equal(t, []bool{true, true, false}, got)

	c.Advance(1100 * time.Millisecond)
	d, err := tb.Consume(ctx, "user:anon:ip:1.2.3.4", 2, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConsumeRetryAfter(t *testing.T) {
	ctx := context.Background()
	tb, _ := newTestBucket()

	_, err := tb.Consume(ctx, "k", 1, 0.5)
	require.NoError(t, err)

	d, err := tb.Consume(ctx, "k", 1, 0.5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 2*time.Second, d.RetryAfter)
	assert.Equal(t, 2, d.RetryAfterSeconds())
}

func TestConsumeKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	tb, _ := newTestBucket()

	d, err := tb.Consume(ctx, "a", 1, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = tb.Consume(ctx, "b", 1, 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestConsumeNeverExceedsBudget(t *testing.T) {
	ctx := context.Background()
	tb, c := newTestBucket()

	const (
		capacity = 5.0
		refill   = 2.0
		step     = 100 * time.Millisecond
		steps    = 100
	)

	allowed := 0
	for range steps {
		for range 3 {
			d, err := tb.Consume(ctx, "hot", capacity, refill)
			require.NoError(t, err)
			if d.Allowed {
				allowed++
			}
		}
		c.Advance(step)
	}

	window := float64(steps) * step.Seconds()
	assert.LessOrEqual(t, float64(allowed), capacity+refill*window)
}

func TestConsumeConcurrentCallersShareOneBucket(t *testing.T) {
	ctx := context.Background()
	tb, _ := newTestBucket()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := tb.Consume(ctx, "shared", 10, 0.001)
			assert.NoError(t, err)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestConsumeRejectsBadBudget(t *testing.T) {
	tb, _ := newTestBucket()
	_, err := tb.Consume(context.Background(), "k", 0, 1)
	assert.Error(t, err)
	_, err = tb.Consume(context.Background(), "k", 1, 0)
	assert.Error(t, err)
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) (kv.Entry, bool, error) {
	return kv.Entry{}, false, errors.New("connection refused")
}

func TestConsumeSurfacesStoreErrors(t *testing.T) {
	tb := NewTokenBucket(failingStore{Store: kv.NewMemoryStore()})
	_, err := tb.Consume(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}
