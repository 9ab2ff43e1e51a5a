package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakash09/api-connector/internal/backend/memory"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

type failingStore struct{}

func (failingStore) Increment(context.Context, ratelimit.WindowKey, int, time.Time, time.Time) (bool, int, error) {
	return false, 0, errors.New("disk full")
}

func (failingStore) Count(context.Context, ratelimit.WindowKey) (int, error) {
	return 0, errors.New("disk full")
}

func TestLimiter_ThreePerMinute(t *testing.T) {
	l := ratelimit.New(memory.New(), log.Discard())
	ctx := context.Background()
	base := time.Date(2025, 5, 5, 12, 0, 5, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Admit(ctx, "api_config", "linear", "3/minute", base.Add(time.Duration(i)*time.Second)))
	}
	assert.False(t, l.Admit(ctx, "api_config", "linear", "3/minute", base.Add(30*time.Second)))

	// Other targets have their own windows.
	assert.True(t, l.Admit(ctx, "api_config", "github", "3/minute", base))

	next := base.Add(time.Minute)
	assert.True(t, l.Admit(ctx, "api_config", "linear", "3/minute", next))

	usage, err := l.Usage(ctx, "api_config", "linear", "3/minute", next)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Count)
	assert.Equal(t, "3/minute", usage.Limit)
	assert.Equal(t, time.Date(2025, 5, 5, 12, 1, 0, 0, time.UTC), usage.WindowStart)
}

func TestLimiter_ConcurrentOnePerSecond(t *testing.T) {
	for _, n := range []int{2, 10, 50} {
		l := ratelimit.New(memory.New(), log.Discard())
		now := time.Date(2025, 5, 5, 12, 0, 0, 250000000, time.UTC)

		var admitted, rejected int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if l.Admit(context.Background(), "api_config", "x", "1/second", now) {
					atomic.AddInt32(&admitted, 1)
				} else {
					atomic.AddInt32(&rejected, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), admitted, "n=%d", n)
		assert.Equal(t, int32(n-1), rejected, "n=%d", n)
	}
}

func TestLimiter_InvalidSpecUsesDefault(t *testing.T) {
	store := memory.New()
	l := ratelimit.New(store, log.Discard())
	now := time.Date(2025, 5, 5, 12, 30, 0, 0, time.UTC)

	assert.True(t, l.Admit(context.Background(), "api_config", "x", "lots/fortnight", now))

	usage, err := l.Usage(context.Background(), "api_config", "x", "lots/fortnight", now)
	require.NoError(t, err)
	assert.Equal(t, "100/hour", usage.Limit)
	assert.Equal(t, 1, usage.Count)
	assert.Equal(t, time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC), usage.WindowStart)
}

func TestLimiter_StoreErrorFailsOpen(t *testing.T) {
	l := ratelimit.New(failingStore{}, log.Discard())
	assert.True(t, l.Admit(context.Background(), "api_config", "x", "1/second", time.Now()))
}
