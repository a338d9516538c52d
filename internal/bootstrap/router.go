package bootstrap

import (
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/handlers"
	"github.com/tokengate/tokengate/internal/metrics"
)

// setupRouter builds the gin engine with all routes and middleware.
func setupRouter(app *Application) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(metrics.HTTPMetricsMiddleware(app.MetricsRecorder))

	setupSessionMiddleware(r, app.Config)
	setupMetricsEndpoint(r, app.Config)

	authorize := handlers.NewAuthorizeHandler(app.AuthorizationService)
	token := handlers.NewTokenHandler(app.TokenService)
	introspect := handlers.NewIntrospectHandler(app.TokenService)
	userinfo := handlers.NewUserInfoHandler(app.TokenService)
	discovery := handlers.NewDiscoveryHandler(app.Config, app.Signer)
	register := handlers.NewRegisterHandler(app.ClientService)

	oauth := r.Group("/oauth")
	{
		oauth.GET("/authorize", authorize.Authorize)
		oauth.POST("/token", token.Token)
		oauth.POST("/introspect", introspect.Introspect)
		oauth.POST("/revoke", introspect.Revoke)
		oauth.GET("/userinfo", userinfo.UserInfo)
		oauth.POST("/userinfo", userinfo.UserInfo)
		oauth.POST("/register", register.Register)
	}

	r.GET("/.well-known/openid-configuration", discovery.Discovery)
	r.GET("/.well-known/jwks.json", discovery.JWKS)

	r.GET("/healthz", func(c *gin.Context) {
		if err := app.DB.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// setupSessionMiddleware configures cookie session handling. The login
// flow upstream writes the subject into this session; the authorize
// endpoint only reads it.
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(cfg.SessionName, sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	if !cfg.MetricsEnabled {
		log.Printf("[Bootstrap] Prometheus metrics disabled")
		return
	}
	log.Printf("[Bootstrap] Prometheus metrics enabled at /metrics")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
