package bootstrap

import (
	"os"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// initializeLogger configures the global zerolog logger: JSON in production,
// a human-readable console writer otherwise.
func initializeLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsProduction {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
	}
}
