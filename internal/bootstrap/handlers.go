package bootstrap

import (
	"github.com/luanalves/realestate-backend-sub002/internal/auth"
	"github.com/luanalves/realestate-backend-sub002/internal/handlers"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
)

// handlerSet holds all HTTP handlers and required services
type handlerSet struct {
	token       *handlers.TokenHandler
	session     *handlers.SessionHandler
	application *handlers.ApplicationHandler
	accessLog   *handlers.AccessLogHandler

	tokenService     *services.TokenService
	accessLogService *services.AccessLogService
	users            *store.Store
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	db *store.Store,
	credentialService *services.CredentialService,
	tokenService *services.TokenService,
	accessLogService *services.AccessLogService,
	prometheusMetrics metrics.Recorder,
) handlerSet {
	return handlerSet{
		token: handlers.NewTokenHandler(tokenService),
		session: handlers.NewSessionHandler(
			auth.NewLocalAuthProvider(db),
			db,
			prometheusMetrics,
		),
		application: handlers.NewApplicationHandler(credentialService),
		accessLog:   handlers.NewAccessLogHandler(accessLogService),

		tokenService:     tokenService,
		accessLogService: accessLogService,
		users:            db,
	}
}
