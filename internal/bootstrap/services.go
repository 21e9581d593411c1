package bootstrap

import (
	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
)

// initializeServices creates the credential and token services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	prometheusMetrics metrics.Recorder,
) (*services.CredentialService, *services.TokenService) {
	credentialService := services.NewCredentialService(db, cfg, prometheusMetrics)
	tokenService := services.NewTokenService(db, credentialService, cfg, prometheusMetrics)
	return credentialService, tokenService
}
