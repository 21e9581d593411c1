package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitStoreType selects where request counters live.
type RateLimitStoreType string

const (
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis shares counters across replicas.
	RateLimitStoreRedis  RateLimitStoreType = "redis"
)

const defaultRateLimitPrefix = "ratelimit"

// RateLimitConfig describes one limiter. Limiters guarding different routes
// need distinct prefixes when they share a Redis database.
type RateLimitConfig struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	Prefix            string

	StoreType   RateLimitStoreType
	RedisClient *redis.Client // required for RateLimitStoreRedis
}

// CreateRedisClient connects to Redis and verifies the connection within timeout
func CreateRedisClient(
	addr, password string,
	db int,
	timeout time.Duration,
) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

func newLimiterStore(config RateLimitConfig) (limiter.Store, error) {
	opts := limiter.StoreOptions{
		Prefix:          config.Prefix,
		CleanUpInterval: config.CleanupInterval,
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultRateLimitPrefix
	}

	if config.StoreType != RateLimitStoreRedis {
		return memory.NewStoreWithOptions(opts), nil
	}
	if config.RedisClient == nil {
		return nil, errors.New("redis rate limit store requires a Redis client")
	}
	store, err := limiterRedis.NewStoreWithOptions(config.RedisClient, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis store: %w", err)
	}
	return store, nil
}

func rateLimitExceeded(c *gin.Context) {
	log.Warn().
		Str("event", "rate_limited").
		Str("ip", c.ClientIP()).
		Str("path", c.Request.URL.Path).
		Msg("rate limit exceeded")
	apierr.Abort(c, http.StatusTooManyRequests, apierr.CodeRateLimited,
		"Too many requests. Please try again later.")
}

func rateLimitStoreFailed(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("rate limiter store error")
	c.Next()
}

// NewRateLimiter returns a per-client-IP limiter allowing RequestsPerMinute
// requests in a sliding minute. Store errors let the request through.
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, error) {
	store, err := newLimiterStore(config)
	if err != nil {
		return nil, err
	}

	rate := limiter.Rate{Period: time.Minute, Limit: int64(config.RequestsPerMinute)}
	return mgin.NewMiddleware(limiter.New(store, rate),
		mgin.WithLimitReachedHandler(rateLimitExceeded),
		mgin.WithErrorHandler(rateLimitStoreFailed),
	), nil
}

// NewMemoryRateLimiter is NewRateLimiter with a process-local store.
func NewMemoryRateLimiter(requestsPerMinute int) (gin.HandlerFunc, error) {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		StoreType:         RateLimitStoreMemory,
		CleanupInterval:   5 * time.Minute,
	})
}
