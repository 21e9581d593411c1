package bootstrap

import (
	"errors"
	"fmt"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := validateDatabaseConfig(cfg); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	if err := validateRateLimitConfig(cfg); err != nil {
		return fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	return nil
}

// validateDatabaseConfig checks that the selected driver has a DSN
func validateDatabaseConfig(cfg *config.Config) error {
	switch cfg.DatabaseDriver {
	case store.DriverSQLite, store.DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when DATABASE_DRIVER=%s", cfg.DatabaseDriver)
		}
	default:
		return fmt.Errorf(
			"invalid DATABASE_DRIVER: %s (must be: sqlite, postgres)",
			cfg.DatabaseDriver,
		)
	}
	return nil
}

// validateRateLimitConfig checks the limits and the Redis address of an enabled limiter
func validateRateLimitConfig(cfg *config.Config) error {
	if !cfg.EnableRateLimit {
		return nil
	}
	if cfg.TokenRateLimit <= 0 || cfg.LoginRateLimit <= 0 {
		return errors.New("TOKEN_RATE_LIMIT and LOGIN_RATE_LIMIT must be positive")
	}
	if cfg.RateLimitStore == config.RateLimitStoreRedis && cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
	}
	return nil
}
