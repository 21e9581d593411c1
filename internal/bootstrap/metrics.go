package bootstrap

import (
	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"

	"github.com/rs/zerolog/log"
)

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config) metrics.Recorder {
	prometheusMetrics := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Info().Msg("Prometheus metrics initialized")
	} else {
		log.Info().Msg("metrics disabled (using noop implementation)")
	}
	return prometheusMetrics
}
