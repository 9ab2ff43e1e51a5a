package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

func TestIncrement_Window(t *testing.T) {
	b := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	key := ratelimit.WindowKey{TargetType: "api_config", TargetID: "linear", Start: start}
	end := start.Add(time.Minute)

	for i := 1; i <= 3; i++ {
		ok, count, err := b.Increment(ctx, key, 3, end, start.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, count)
	}

	ok, count, err := b.Increment(ctx, key, 3, end, start.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, count)

	n, err := b.Count(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIncrement_SweepsExpiredWindows(t *testing.T) {
	b := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	old := ratelimit.WindowKey{TargetType: "api_config", TargetID: "a", Start: start}

	_, _, err := b.Increment(ctx, old, 1, start.Add(time.Second), start)
	require.NoError(t, err)

	next := ratelimit.WindowKey{TargetType: "api_config", TargetID: "a", Start: start.Add(time.Minute)}
	_, _, err = b.Increment(ctx, next, 1, start.Add(time.Minute+time.Second), start.Add(time.Minute))
	require.NoError(t, err)

	n, err := b.Count(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIncrement_SweepIsThrottled(t *testing.T) {
	b := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	old := ratelimit.WindowKey{TargetType: "api_config", TargetID: "a", Start: start}

	_, _, err := b.Increment(ctx, old, 5, start.Add(time.Second), start)
	require.NoError(t, err)

	// The old window has ended but the last sweep was under a minute ago.
	other := ratelimit.WindowKey{TargetType: "api_config", TargetID: "b", Start: start}
	_, _, err = b.Increment(ctx, other, 5, start.Add(time.Hour), start.Add(2*time.Second))
	require.NoError(t, err)
	n, err := b.Count(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = b.Increment(ctx, other, 5, start.Add(time.Hour), start.Add(time.Minute))
	require.NoError(t, err)
	n, err = b.Count(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIncrement_Concurrent(t *testing.T) {
	b := New()
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	key := ratelimit.WindowKey{TargetType: "api_config", TargetID: "x", Start: start}

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := b.Increment(ctx, key, 5, start.Add(time.Second), start)
			if err == nil && ok {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), admitted)
}

func TestErrorAndCallLogs(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.LogError(ctx, errorlog.Entry{ID: "1", Message: "first"}))
	require.NoError(t, b.LogError(ctx, errorlog.Entry{ID: "2", Message: "second"}))

	entries, err := b.RecentErrors(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Message)

	require.NoError(t, b.RecordCall(ctx, calllog.Record{ID: "c1", Function: "a", Status: calllog.StatusSuccess}))
	require.NoError(t, b.RecordCall(ctx, calllog.Record{ID: "c2", Function: "b", Status: calllog.StatusFailed}))

	calls, err := b.RecentCalls(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)

	calls, err = b.RecentCalls(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, calls, 2)
}
