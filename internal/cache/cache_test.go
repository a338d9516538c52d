package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int64]()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "count", 42, time.Minute))

	value, err := c.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	require.NoError(t, c.Set(ctx, "short", "value", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[string]()

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, c.Delete(ctx, "key"))

	_, err := c.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetWithFetchMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int64]()

	calls := 0
	fetch := func(ctx context.Context, key string) (int64, error) {
		calls++
		return 7, nil
	}

	value, err := GetWithFetch(ctx, c, "tokens:access", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
	assert.Equal(t, 1, calls)

	// Second call served from cache.
	value, err = GetWithFetch(ctx, c, "tokens:access", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int64(7), value)
	assert.Equal(t, 1, calls)
}

func TestGetWithFetchError(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[int64]()

	fetchErr := errors.New("database down")
	_, err := GetWithFetch(ctx, c, "tokens:refresh", time.Minute,
		func(ctx context.Context, key string) (int64, error) {
			return 0, fetchErr
		})
	assert.ErrorIs(t, err, fetchErr)

	// Errors are not cached.
	_, err = c.Get(ctx, "tokens:refresh")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
