package services

import (
	"context"
	"log"
	"time"

	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/store"
)

// LifecycleService purges expired rows from all four token collections on
// a fixed interval. Errors are logged and the sweep continues to the next
// collection; a failing backend never crashes the host process.
type LifecycleService struct {
	store    *store.Store
	metrics  metrics.Recorder
	interval time.Duration
}

func NewLifecycleService(
	s *store.Store,
	m metrics.Recorder,
	interval time.Duration,
) *LifecycleService {
	return &LifecycleService{
		store:    s,
		metrics:  m,
		interval: interval,
	}
}

// Sweep removes expired entries from every collection once.
func (s *LifecycleService) Sweep(ctx context.Context) {
	start := time.Now()

	collections := []struct {
		name   string
		remove func() (int64, error)
	}{
		{"authorization_codes", s.store.DeleteExpiredAuthorizationCodes},
		{"access_tokens", s.store.DeleteExpiredAccessTokens},
		{"refresh_tokens", s.store.DeleteExpiredRefreshTokens},
		{"id_tokens", s.store.DeleteExpiredIDTokens},
	}

	var total int64
	for _, c := range collections {
		removed, err := c.remove()
		if err != nil {
			log.Printf("[Lifecycle] Failed to sweep %s: %v", c.name, err)
			continue
		}
		if removed > 0 {
			s.metrics.RecordSweep(c.name, removed, time.Since(start))
			total += removed
		}
	}

	if total > 0 {
		log.Printf("[Lifecycle] Swept %d expired records in %s", total, time.Since(start))
	}
}

// Run executes the periodic sweep until ctx is cancelled. The current
// sweep finishes before Run returns.
func (s *LifecycleService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Lifecycle] Sweep running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Lifecycle] Sweep stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
