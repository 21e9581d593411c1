package bootstrap

import (
	"fmt"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	token gin.HandlerFunc
	login gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration
// Accepts an optional go-redis client
func setupRateLimiting(
	cfg *config.Config,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	// Return no-op middlewares when rate limiting is disabled
	noOpMiddleware := func(c *gin.Context) { c.Next() }
	if !cfg.EnableRateLimit {
		return rateLimitMiddlewares{token: noOpMiddleware, login: noOpMiddleware}, nil
	}
	return createRateLimiters(cfg, redisClient)
}

// createRateLimiters creates rate limiting middlewares for all endpoints
func createRateLimiters(
	cfg *config.Config,
	redisClient *redis.Client,
) (rateLimitMiddlewares, error) {
	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	log.Info().Str("store", cfg.RateLimitStore).Msg("rate limiting enabled")

	createLimiter := func(requestsPerMinute int, name string) (gin.HandlerFunc, error) {
		limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: requestsPerMinute,
			StoreType:         storeType,
			RedisClient:       redisClient, // nil for memory store
			CleanupInterval:   cfg.RateLimitCleanupEvery,
			Prefix:            "ratelimit:" + name,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s rate limiter: %w", name, err)
		}
		return limiter, nil
	}

	token, err := createLimiter(cfg.TokenRateLimit, "token")
	if err != nil {
		return rateLimitMiddlewares{}, err
	}
	login, err := createLimiter(cfg.LoginRateLimit, "login")
	if err != nil {
		return rateLimitMiddlewares{}, err
	}
	return rateLimitMiddlewares{token: token, login: login}, nil
}
