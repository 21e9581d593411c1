package bootstrap

import (
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/fingerprint"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionCookieName = "authcore_session"

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	prometheusMetrics metrics.Recorder,
	guard *fingerprint.Guard,
	rateLimitRedisClient *redis.Client,
) (*gin.Engine, error) {
	// Setup Gin mode
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(prometheusMetrics))
	r.Use(gin.Recovery())
	r.Use(util.IPMiddleware())
	r.Use(apierr.DebugMiddleware(cfg.Debug))

	// Setup session middleware
	setupSessionMiddleware(r, cfg, db, guard, prometheusMetrics)

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Setup rate limiting
	rateLimiters, err := setupRateLimiting(cfg, rateLimitRedisClient)
	if err != nil {
		return nil, err
	}

	// Setup all routes
	setupAllRoutes(r, h, rateLimiters)

	log.Info().
		Str("addr", cfg.ServerAddr).
		Str("database", cfg.DatabaseDriver).
		Str("session_store", cfg.SessionStore).
		Msg("authorization server configured")

	return r, nil
}

// setupSessionMiddleware configures session handling and, when enabled, the
// fingerprint check that runs on every session-authenticated request
func setupSessionMiddleware(
	r *gin.Engine,
	cfg *config.Config,
	db *store.Store,
	guard *fingerprint.Guard,
	prometheusMetrics metrics.Recorder,
) {
	sessionStore := newSessionStore(cfg, db)
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, sessionStore))

	if guard != nil {
		r.Use(middleware.SessionFingerprint(
			guard,
			cfg.SessionFingerprintExemptPaths,
			prometheusMetrics,
		))
	}
}

// newSessionStore returns the configured session backend. The database and
// memory stores keep state server-side, so destroying a session revokes
// every copy of its cookie; only the database store is shared between
// replicas. Expired database rows are purged by the session cleanup job.
func newSessionStore(cfg *config.Config, db *store.Store) sessions.Store {
	secret := []byte(cfg.SessionSecret)
	switch cfg.SessionStore {
	case config.SessionStoreCookie:
		return cookie.NewStore(secret)
	case config.SessionStoreMemory:
		return memstore.NewStore(secret)
	default:
		return gormsessions.NewStore(db.DB(), false, secret)
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Info().Msg("Prometheus metrics endpoint disabled")
	case cfg.MetricsToken != "":
		log.Info().Msg("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Warn().Msg("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupAllRoutes configures all application routes
func setupAllRoutes(
	r *gin.Engine,
	h handlerSet,
	rateLimiters rateLimitMiddlewares,
) {
	accessLog := middleware.AccessLog(h.accessLogService)

	// Grant endpoints (public, client-authenticated)
	grants := r.Group("/auth")
	grants.Use(accessLog)
	{
		grants.POST("/token", rateLimiters.token, h.token.Token)
		grants.POST("/refresh", rateLimiters.token, h.token.Refresh)
		grants.POST("/revoke", h.token.Revoke)
	}

	// Bearer-protected API
	api := r.Group("/api/v1")
	api.Use(accessLog, middleware.RequireBearer(h.tokenService))
	{
		api.GET("/tokeninfo", h.token.TokenInfo)
	}

	// Interactive session
	session := r.Group("/session")
	{
		session.POST("/login", rateLimiters.login, h.session.Login)
		session.GET("/info", h.session.Info)
		session.POST("/logout", h.session.Logout)
	}

	// Admin routes (require admin role)
	admin := r.Group("/admin")
	admin.Use(
		middleware.RequireAuth(),
		middleware.RequireAdmin(h.users),
		middleware.CSRFMiddleware(),
	)
	{
		admin.GET("/applications", h.application.List)
		admin.POST("/applications", h.application.Create)
		admin.GET("/applications/:client_id", h.application.Get)
		admin.POST("/applications/:client_id/rotate", h.application.RotateSecret)
		admin.DELETE("/applications/:client_id", h.application.Deactivate)

		admin.GET("/access-logs", h.accessLog.ListAccessLogs)
	}
}

// createHealthCheckHandler creates health check endpoint handler
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	mode := ginModeMap[cfg.IsProduction]
	gin.SetMode(mode)
	log.Debug().Str("mode", mode).Msg("gin mode set")
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}
