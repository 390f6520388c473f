package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSqliteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestSqlite_Increment(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)
	key := ratelimit.Key{UserID: "u1", ModelID: "gpt-4o"}
	now := time.UnixMilli(1_700_000_000_000).UTC()
	window := 3 * time.Hour

	first, err := s.Increment(ctx, key, now, window)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count)
	assert.True(t, first.ResetTime.Equal(now.Add(window)))

	var last ratelimit.UsageRecord
	for i := 0; i < 10; i++ {
		last, err = s.Increment(ctx, key, now.Add(time.Minute), window)
		require.NoError(t, err)
	}
	assert.Equal(t, 11, last.Count)
	assert.True(t, last.ResetTime.Equal(first.ResetTime), "reset time moved: %v", last.ResetTime)

	other, err := s.Increment(ctx, ratelimit.Key{UserID: "u1", ModelID: "claude-3-5-sonnet"}, now, window)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Count)

	later := now.Add(window)
	restarted, err := s.Increment(ctx, key, later, window)
	require.NoError(t, err)
	assert.Equal(t, 1, restarted.Count)
	assert.True(t, restarted.ResetTime.Equal(later.Add(window)))
}

func TestSqlite_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)
	key := ratelimit.Key{UserID: "u1", ModelID: "gpt-4o"}
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, key, now, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.Increment(ctx, key, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 21, rec.Count)
}

func TestSqlite_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newSqliteStore(t)
	now := time.Now()

	_, err := s.Increment(ctx, ratelimit.Key{UserID: "old", ModelID: "m"}, now, time.Minute)
	require.NoError(t, err)
	_, err = s.Increment(ctx, ratelimit.Key{UserID: "new", ModelID: "m"}, now, time.Hour)
	require.NoError(t, err)

	n, err := s.DeleteExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := s.Increment(ctx, ratelimit.Key{UserID: "new", ModelID: "m"}, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Count)
}

func TestSqlite_WithLimiter(t *testing.T) {
	ctx := context.Background()
	l := ratelimit.NewLimiter(newSqliteStore(t), ratelimit.DefaultConfig())
	for i := 0; i < ratelimit.FreeTierLimit; i++ {
		d, err := l.CheckLimit(ctx, "u1", "gpt-4o", ratelimit.TierFree)
		require.NoError(t, err)
		require.True(t, d.Allowed, "call %v denied", i+1)
	}
	d, err := l.CheckLimit(ctx, "u1", "gpt-4o", ratelimit.TierFree)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Err().Error(), "rate limit exceeded")
}
