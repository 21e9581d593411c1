package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
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
			log.Info().Str("addr", srv.Addr).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("failed to start server")
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, cfg *config.Config, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Info().Msg("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
			return err
		}

		log.Info().Msg("server exited")
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, cfg *config.Config, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Info().Msg("closing Redis connection...")
		done := make(chan error, 1)
		go func() { done <- redisClient.Close() }()

		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("error closing Redis client")
				return err
			}
			log.Info().Msg("Redis connection closed")
			return nil
		case <-time.After(cfg.RedisCloseTimeout):
			return errors.New("timed out closing Redis client")
		}
	})
}

// addStorageShutdownJob flushes the access log and then closes the database.
// The order matters: queued entries are written through the same pool.
func addStorageShutdownJob(
	m *graceful.Manager,
	cfg *config.Config,
	accessLogService *services.AccessLogService,
	db *store.Store,
) {
	m.AddShutdownJob(func() error {
		log.Info().Msg("shutting down access log service...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AccessLogShutdownTimeout)
		defer cancel()

		var errs []error
		if err := accessLogService.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down access log service")
			errs = append(errs, err)
		}

		log.Info().Msg("closing database connection...")
		done := make(chan error, 1)
		go func() { done <- db.Close() }()

		select {
		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("error closing database")
				errs = append(errs, err)
			}
		case <-time.After(cfg.DBCloseTimeout):
			errs = append(errs, errors.New("timed out closing database"))
		}
		return errors.Join(errs...)
	})
}

// addTokenSweepJob adds the periodic job that deactivates expired tokens
func addTokenSweepJob(
	m *graceful.Manager,
	cfg *config.Config,
	tokenService *services.TokenService,
) {
	if cfg.TokenSweepInterval <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.TokenSweepInterval)
		defer ticker.Stop()

		for {
			sweepExpiredTokens(ctx, tokenService)

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})
}

func sweepExpiredTokens(ctx context.Context, tokenService *services.TokenService) {
	swept, err := tokenService.SweepExpired(ctx)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("failed to sweep expired tokens")
	case swept > 0:
		log.Info().Int64("swept", swept).Msg("deactivated expired tokens")
	}
}

// addAccessLogCleanupJob adds periodic access log cleanup job
func addAccessLogCleanupJob(
	m *graceful.Manager,
	cfg *config.Config,
	accessLogService *services.AccessLogService,
) {
	if !cfg.EnableAccessLog || cfg.AccessLogRetention <= 0 || cfg.AccessLogCleanupEvery <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.AccessLogCleanupEvery)
		defer ticker.Stop()

		// Run cleanup immediately on startup
		for {
			if deleted, err := accessLogService.CleanupOldLogs(
				ctx,
				cfg.AccessLogRetention,
			); err != nil {
				log.Error().Err(err).Msg("failed to clean up old access logs")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("cleaned up old access logs")
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addSessionCleanupJob purges expired rows of the database session store
func addSessionCleanupJob(m *graceful.Manager, cfg *config.Config, db *store.Store) {
	if cfg.SessionStore != config.SessionStoreDatabase || cfg.SessionCleanupEvery <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.SessionCleanupEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deleted, err := db.DeleteExpiredSessions(ctx, time.Now())
				if err != nil {
					log.Error().Err(err).Msg("failed to purge expired sessions")
				} else if deleted > 0 {
					log.Debug().Int64("deleted", deleted).Msg("purged expired sessions")
				}
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addMetricsGaugeUpdateJob adds periodic metrics gauge update job
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	prometheusMetrics metrics.Recorder,
) {
	if !cfg.MetricsEnabled || cfg.MetricsGaugeUpdateEvery <= 0 {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.MetricsGaugeUpdateEvery)
		defer ticker.Stop()

		errLogger := newErrorLogger()
		for {
			updateGaugeMetrics(ctx, db, prometheusMetrics, errLogger)

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// errorLogger handles rate-limited error logging
type errorLogger struct {
	lastErrorTimes  map[string]time.Time
	rateLimitWindow time.Duration
	now             func() time.Time
}

// newErrorLogger creates a new error logger with rate limiting
func newErrorLogger() *errorLogger {
	return &errorLogger{
		lastErrorTimes:  make(map[string]time.Time),
		rateLimitWindow: 5 * time.Minute, // Log at most once per 5 minutes per operation
		now:             time.Now,
	}
}

// logIfNeeded logs an error only if rate limit allows. It reports whether
// the error was logged.
func (e *errorLogger) logIfNeeded(operation string, err error) bool {
	now := e.now()
	lastTime, exists := e.lastErrorTimes[operation]
	if exists && now.Sub(lastTime) < e.rateLimitWindow {
		return false
	}

	log.Error().
		Err(err).
		Str("operation", operation).
		Dur("suppressed_for", e.rateLimitWindow).
		Msg("database query failed")
	e.lastErrorTimes[operation] = now
	return true
}

// updateGaugeMetrics refreshes the active token and application gauges
func updateGaugeMetrics(
	ctx context.Context,
	db *store.Store,
	m metrics.Recorder,
	errLogger *errorLogger,
) {
	activeTokens, err := db.CountActiveTokens(ctx, time.Now())
	if err != nil {
		m.RecordDatabaseQueryError("count_active_tokens")
		errLogger.logIfNeeded("count_active_tokens", err)
	} else {
		m.SetActiveTokensCount(int(activeTokens))
	}

	activeApplications, err := db.CountActiveApplications(ctx)
	if err != nil {
		m.RecordDatabaseQueryError("count_active_applications")
		errLogger.logIfNeeded("count_active_applications", err)
	} else {
		m.SetActiveApplicationsCount(int(activeApplications))
	}
}
