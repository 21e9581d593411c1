package bootstrap

import (
	"context"
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/fingerprint"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/version"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                   *store.Store
	MetricsRecorder      metrics.Recorder
	RateLimitRedisClient *redis.Client
	FingerprintGuard     *fingerprint.Guard

	// Services
	AccessLogService  *services.AccessLogService
	CredentialService *services.CredentialService
	TokenService      *services.TokenService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(ctx context.Context, cfg *config.Config) error {
	initializeLogger(cfg)
	log.Info().Str("version", version.Short()).Msgf("starting %s", version.App)

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}

	app.startWithGracefulShutdown()
	return nil
}

// newApplication builds every component without starting the server
func newApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := validateAllConfiguration(cfg); err != nil {
		return nil, err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(ctx); err != nil {
		return nil, err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		app.close(ctx)
		return nil, err
	}

	return app, nil
}

// initializeInfrastructure sets up database, metrics, Redis and the fingerprint guard
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	var err error

	// Database
	app.DB, err = initializeDatabase(ctx, app.Config)
	if err != nil {
		return err
	}

	// Metrics
	app.MetricsRecorder = initializeMetrics(app.Config)

	// Session fingerprint
	app.FingerprintGuard, err = initializeFingerprintGuard(app.Config)
	if err != nil {
		app.closeInfrastructure()
		return err
	}

	// Redis (for rate limiting)
	app.RateLimitRedisClient, err = initializeRateLimitRedisClient(app.Config)
	if err != nil {
		app.closeInfrastructure()
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer(ctx context.Context) error {
	app.AccessLogService = services.NewAccessLogService(
		app.DB,
		app.Config.EnableAccessLog,
		app.Config.AccessLogBufferSize,
		app.MetricsRecorder,
	)

	app.CredentialService, app.TokenService = initializeServices(
		app.Config,
		app.DB,
		app.MetricsRecorder,
	)

	return rotatePlaintextSecrets(ctx, app.Config, app.CredentialService)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	app.HandlerSet = initializeHandlers(
		app.DB,
		app.CredentialService,
		app.TokenService,
		app.AccessLogService,
		app.MetricsRecorder,
	)

	var err error
	app.Router, err = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.MetricsRecorder,
		app.FingerprintGuard,
		app.RateLimitRedisClient,
	)
	if err != nil {
		return err
	}

	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}

// close stops the access log worker and releases the infrastructure
func (app *Application) close(ctx context.Context) {
	if app.AccessLogService != nil {
		_ = app.AccessLogService.Shutdown(ctx)
	}
	app.closeInfrastructure()
}

// closeInfrastructure releases whatever initializeInfrastructure opened
func (app *Application) closeInfrastructure() {
	if app.RateLimitRedisClient != nil {
		_ = app.RateLimitRedisClient.Close()
	}
	if app.DB != nil {
		_ = app.DB.Close()
	}
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	// Add jobs
	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Config, app.Server)
	addTokenSweepJob(m, app.Config, app.TokenService)
	addAccessLogCleanupJob(m, app.Config, app.AccessLogService)
	addSessionCleanupJob(m, app.Config, app.DB)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder)
	addRedisClientShutdownJob(m, app.Config, app.RateLimitRedisClient)
	addStorageShutdownJob(m, app.Config, app.AccessLogService, app.DB)

	// Wait for graceful shutdown
	<-m.Done()
}
