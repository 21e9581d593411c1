package bootstrap

import (
	"fmt"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/fingerprint"

	"github.com/rs/zerolog/log"
)

// initializeFingerprintGuard builds the session fingerprint guard.
// Returns nil when session fingerprinting is disabled.
func initializeFingerprintGuard(cfg *config.Config) (*fingerprint.Guard, error) {
	if !cfg.SessionFingerprintEnabled {
		log.Warn().Msg("session fingerprinting disabled")
		return nil, nil //nolint:nilnil // guard not needed in this configuration
	}

	guard, err := fingerprint.NewGuard(fingerprint.Settings{
		Secret:         []byte(cfg.SessionFingerprintSecret),
		TTL:            cfg.SessionFingerprintTTL,
		Issuer:         cfg.SessionFingerprintIssuer,
		IP:             cfg.SessionFingerprintIP,
		UserAgent:      cfg.SessionFingerprintUserAgent,
		AcceptLanguage: cfg.SessionFingerprintAcceptLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session fingerprint guard: %w", err)
	}

	log.Info().
		Strs("components", guard.Enabled()).
		Strs("exempt_paths", cfg.SessionFingerprintExemptPaths).
		Msg("session fingerprinting enabled")
	return guard, nil
}
