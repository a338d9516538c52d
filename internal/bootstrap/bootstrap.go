package bootstrap

import (
	"fmt"
	"log"
	"net/http"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/cache"
	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/services"
	"github.com/tokengate/tokengate/internal/session"
	"github.com/tokengate/tokengate/internal/signer"
	"github.com/tokengate/tokengate/internal/store"
	"github.com/tokengate/tokengate/internal/tier"
)

// Application holds all initialized components.
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB              *store.Store
	Signer          signer.Signer
	MetricsRecorder metrics.Recorder
	MetricsCache    cache.Cache[int64]

	// Services
	ClientService        *services.ClientService
	TokenService         *services.TokenService
	AuthorizationService *services.AuthorizationService
	LifecycleService     *services.LifecycleService
	SessionValidator     session.Validator
	TierResolver         tier.Resolver

	// HTTP
	Router *gin.Engine
	Server *http.Server
}

// Run initializes and starts the application.
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	if err := app.initializeInfrastructure(); err != nil {
		return err
	}
	app.initializeBusinessLayer()
	app.initializeHTTPLayer()
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, signer, metrics, and cache.
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = store.New(app.Config.DatabaseDriver, app.Config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Printf("[Bootstrap] Database ready (%s)", app.Config.DatabaseDriver)

	app.Signer, err = initializeSigner(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	log.Printf("[Bootstrap] Token signer ready (%s)", app.Signer.Name())

	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)
	app.MetricsCache, err = initializeMetricsCache(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics cache: %w", err)
	}

	return nil
}

// initializeSigner picks the signer implementation from config.
func initializeSigner(cfg *config.Config) (signer.Signer, error) {
	switch cfg.SignerMode {
	case config.SignerModeHTTPAPI:
		if cfg.SignerAPIURL == "" {
			return nil, fmt.Errorf("SIGNER_MODE=http_api requires SIGNER_API_URL")
		}
		retryClient, err := signer.NewRetryClient(
			cfg.SignerAPIAuthMode,
			cfg.SignerAPIAuthSecret,
			cfg.SignerAPIAuthHeader,
			cfg.SignerAPITimeout,
			cfg.SignerAPIMaxRetries,
			cfg.SignerAPIRetryDelay,
			cfg.SignerAPIMaxRetryDelay,
		)
		if err != nil {
			return nil, err
		}
		return signer.NewHTTPSigner(cfg.SignerAPIURL, retryClient), nil
	case config.SignerModeLocal:
		return signer.NewLocalSigner(cfg.SignerKeyPath, cfg.SignerKeyID)
	default:
		return nil, fmt.Errorf("unknown SIGNER_MODE %q", cfg.SignerMode)
	}
}

// initializeMetricsCache picks the cache backend for the gauge job.
func initializeMetricsCache(cfg *config.Config) (cache.Cache[int64], error) {
	if cfg.CacheBackend == "redis" && cfg.RedisAddr != "" {
		c, err := cache.NewRedisCache[int64](
			cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "tokengate:metrics",
		)
		if err != nil {
			return nil, err
		}
		log.Printf("[Bootstrap] Metrics cache backend: redis (%s)", cfg.RedisAddr)
		return c, nil
	}
	return cache.NewMemoryCache[int64](), nil
}

// initializeBusinessLayer sets up services and collaborators.
func (app *Application) initializeBusinessLayer() {
	app.TierResolver = tier.NewStaticResolver(
		app.Config.DefaultTierLevel,
		app.Config.TierOverrides,
	)
	app.SessionValidator = session.AlwaysValid{}

	app.ClientService = services.NewClientService(app.DB)
	app.TokenService = services.NewTokenService(
		app.DB,
		app.Config,
		app.ClientService,
		app.Signer,
		app.TierResolver,
		app.MetricsRecorder,
	)
	app.AuthorizationService = services.NewAuthorizationService(
		app.DB,
		app.Config,
		app.TokenService,
		app.TierResolver,
		app.SessionValidator,
		app.MetricsRecorder,
	)
	app.LifecycleService = services.NewLifecycleService(
		app.DB,
		app.MetricsRecorder,
		app.Config.SweepInterval,
	)
}

// initializeHTTPLayer sets up the router and server.
func (app *Application) initializeHTTPLayer() {
	app.Router = setupRouter(app)
	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown runs all jobs until a shutdown signal arrives.
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addLifecycleSweepJob(m, app.LifecycleService)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder, app.MetricsCache)
	addCacheCleanupJob(m, app.MetricsCache)

	log.Printf("[Bootstrap] Listening on %s", app.Config.ServerAddr)
	<-m.Done()
}
