package metrics

import (
	"context"
	"time"

	"github.com/tokengate/tokengate/internal/cache"
)

// gaugeStore defines the database operations needed by CacheWrapper.
// This interface allows for easier testing without requiring a full store.Store.
type gaugeStore interface {
	CountActiveAccessTokens() (int64, error)
	CountActiveRefreshTokens() (int64, error)
	CountActiveAuthorizationCodes() (int64, error)
}

// CacheWrapper provides a read-through cache for metrics gauge data.
// It queries the database on cache miss and updates the cache for subsequent
// requests, keeping the periodic gauge job cheap on busy instances.
type CacheWrapper struct {
	store gaugeStore
	cache cache.Cache[int64]
}

// NewCacheWrapper creates a new cache wrapper for metrics.
func NewCacheWrapper(store gaugeStore, c cache.Cache[int64]) *CacheWrapper {
	return &CacheWrapper{
		store: store,
		cache: c,
	}
}

func (m *CacheWrapper) getCountWithCache(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetchFunc func() (int64, error),
) (int64, error) {
	return cache.GetWithFetch(
		ctx,
		m.cache,
		key,
		ttl,
		func(ctx context.Context, key string) (int64, error) {
			return fetchFunc()
		},
	)
}

// GetActiveAccessTokensCount retrieves the count of unexpired access tokens.
func (m *CacheWrapper) GetActiveAccessTokensCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, "tokens:access", ttl, m.store.CountActiveAccessTokens)
}

// GetActiveRefreshTokensCount retrieves the count of unexpired refresh tokens.
func (m *CacheWrapper) GetActiveRefreshTokensCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, "tokens:refresh", ttl, m.store.CountActiveRefreshTokens)
}

// GetActiveCodesCount retrieves the count of unexpired, unused authorization codes.
func (m *CacheWrapper) GetActiveCodesCount(
	ctx context.Context,
	ttl time.Duration,
) (int64, error) {
	return m.getCountWithCache(ctx, "codes:active", ttl, m.store.CountActiveAuthorizationCodes)
}

// UpdateGauges refreshes the active-entity gauges from cached counts.
// Called periodically by the background gauge job.
func (m *CacheWrapper) UpdateGauges(ctx context.Context, recorder Recorder, ttl time.Duration) {
	if count, err := m.GetActiveAccessTokensCount(ctx, ttl); err == nil {
		recorder.SetActiveTokensCount("access", int(count))
	} else {
		recorder.RecordDatabaseQueryError("count_access_tokens")
	}

	if count, err := m.GetActiveRefreshTokensCount(ctx, ttl); err == nil {
		recorder.SetActiveTokensCount("refresh", int(count))
	} else {
		recorder.RecordDatabaseQueryError("count_refresh_tokens")
	}

	if count, err := m.GetActiveCodesCount(ctx, ttl); err == nil {
		recorder.SetActiveCodesCount(int(count))
	} else {
		recorder.RecordDatabaseQueryError("count_codes")
	}
}
