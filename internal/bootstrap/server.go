package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/appleboy/graceful"

	"github.com/tokengate/tokengate/internal/cache"
	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/services"
	"github.com/tokengate/tokengate/internal/store"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addLifecycleSweepJob runs the expiry sweep until shutdown. The sweep
// finishes its current pass before the job exits.
func addLifecycleSweepJob(m *graceful.Manager, lifecycle *services.LifecycleService) {
	m.AddRunningJob(func(ctx context.Context) error {
		return lifecycle.Run(ctx)
	})
}

// addMetricsGaugeUpdateJob adds the periodic gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
	metricsCache cache.Cache[int64],
) {
	if !cfg.MetricsEnabled || !cfg.MetricsGaugeUpdateEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.MetricsGaugeUpdateInterval)
		defer ticker.Stop()

		wrapper := metrics.NewCacheWrapper(db, metricsCache)

		// Update immediately on startup, then on every tick. The cache TTL
		// matches the interval so each tick reads at most one fresh count.
		wrapper.UpdateGauges(ctx, recorder, cfg.MetricsGaugeUpdateInterval)
		for {
			select {
			case <-ticker.C:
				wrapper.UpdateGauges(ctx, recorder, cfg.MetricsGaugeUpdateInterval)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addCacheCleanupJob closes the metrics cache on shutdown
func addCacheCleanupJob(m *graceful.Manager, metricsCache cache.Cache[int64]) {
	if metricsCache == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := metricsCache.Close(); err != nil {
			log.Printf("Error closing metrics cache: %v", err)
		} else {
			log.Println("Metrics cache closed")
		}
		return nil
	})
}
