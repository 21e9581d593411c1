package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Session store constants. The database store keeps session state in the
// shared database, so destroying a session invalidates every copy of its
// cookie on every replica. The cookie store holds state client-side only.
const (
	SessionStoreDatabase = "database"
	SessionStoreCookie   = "cookie"
	SessionStoreMemory   = "memory"
)

// MinBcryptCost is the lowest bcrypt cost accepted in production.
const MinBcryptCost = 12

type Config struct {
	// Server settings
	ServerAddr   string
	IsProduction bool
	Debug        bool // Attach stack traces to internal_error responses
	LogLevel     string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string // Database connection string (DSN or path)

	// Credential store
	BcryptCost int

	// Token ledger
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	EnableTokenRotation bool          // Rotate the refresh token on every refresh grant
	TokenSweepInterval  time.Duration // 0 disables the periodic expiry sweep

	// Session settings
	SessionSecret string
	SessionStore  string // "database", "cookie" or "memory"
	SessionMaxAge int    // seconds

	// Expired rows of the database session store are purged this often; 0 disables.
	SessionCleanupEvery time.Duration

	// Session fingerprint guard
	SessionFingerprintEnabled        bool
	SessionFingerprintSecret         string
	SessionFingerprintTTL            time.Duration
	SessionFingerprintIssuer         string
	SessionFingerprintIP             bool
	SessionFingerprintUserAgent      bool
	SessionFingerprintAcceptLanguage bool
	SessionFingerprintExemptPaths    []string

	// Access log
	EnableAccessLog       bool
	AccessLogBufferSize   int
	AccessLogRetention    time.Duration // 0 keeps entries forever
	AccessLogCleanupEvery time.Duration

	// Rate limiting
	EnableRateLimit         bool
	RateLimitStore          string
	TokenRateLimit          int // requests per minute
	LoginRateLimit          int // requests per minute
	RateLimitCleanupEvery   time.Duration
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	RedisConnTimeout        time.Duration
	MetricsEnabled          bool
	MetricsToken            string
	MetricsGaugeUpdateEvery time.Duration

	// Bootstrap admin
	DefaultAdminPassword string

	// Lifecycle timeouts
	DBInitTimeout            time.Duration
	DBCloseTimeout           time.Duration
	RedisCloseTimeout        time.Duration
	ServerShutdownTimeout    time.Duration
	AccessLogShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Determine database driver and DSN
	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", getEnv("DATABASE_PATH", "authcore.db"))
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		IsProduction: getEnvBool("ENVIRONMENT_PRODUCTION", false),
		Debug:        getEnvBool("DEBUG", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		BcryptCost: getEnvInt("BCRYPT_COST", MinBcryptCost),

		AccessTokenTTL:      getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:     getEnvDuration("REFRESH_TOKEN_TTL", 720*time.Hour), // 30 days
		EnableTokenRotation: getEnvBool("ENABLE_TOKEN_ROTATION", false),
		TokenSweepInterval:  getEnvDuration("TOKEN_SWEEP_INTERVAL", 15*time.Minute),

		SessionSecret: getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		SessionStore:  getEnv("SESSION_STORE", SessionStoreDatabase),
		SessionMaxAge: getEnvInt("SESSION_MAX_AGE", 86400),

		SessionCleanupEvery: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),

		SessionFingerprintEnabled: getEnvBool("SESSION_FINGERPRINT", true),
		SessionFingerprintSecret: getEnv(
			"SESSION_FP_SECRET",
			"fingerprint-secret-change-in-production",
		),
		SessionFingerprintTTL:            getEnvDuration("SESSION_FP_TTL", 24*time.Hour),
		SessionFingerprintIssuer:         getEnv("SESSION_FP_ISSUER", "authcore"),
		SessionFingerprintIP:             getEnvBool("SESSION_FP_IP", true),
		SessionFingerprintUserAgent:      getEnvBool("SESSION_FP_USER_AGENT", true),
		SessionFingerprintAcceptLanguage: getEnvBool("SESSION_FP_ACCEPT_LANGUAGE", false),
		SessionFingerprintExemptPaths: getEnvSlice(
			"SESSION_FP_EXEMPT_PATHS",
			[]string{"/api/", "/auth/"},
		),

		EnableAccessLog:       getEnvBool("ENABLE_ACCESS_LOG", true),
		AccessLogBufferSize:   getEnvInt("ACCESS_LOG_BUFFER_SIZE", 1000),
		AccessLogRetention:    getEnvDuration("ACCESS_LOG_RETENTION", 90*24*time.Hour),
		AccessLogCleanupEvery: getEnvDuration("ACCESS_LOG_CLEANUP_INTERVAL", 24*time.Hour),

		EnableRateLimit:       getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:        getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		TokenRateLimit:        getEnvInt("TOKEN_RATE_LIMIT", 60),
		LoginRateLimit:        getEnvInt("LOGIN_RATE_LIMIT", 10),
		RateLimitCleanupEvery: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		RedisConnTimeout:      getEnvDuration("REDIS_CONN_TIMEOUT", 5*time.Second),

		MetricsEnabled:          getEnvBool("METRICS_ENABLED", false),
		MetricsToken:            getEnv("METRICS_TOKEN", ""),
		MetricsGaugeUpdateEvery: getEnvDuration("METRICS_GAUGE_UPDATE_INTERVAL", 5*time.Minute),

		DefaultAdminPassword: getEnv("DEFAULT_ADMIN_PASSWORD", ""),

		DBInitTimeout:            getEnvDuration("DB_INIT_TIMEOUT", 30*time.Second),
		DBCloseTimeout:           getEnvDuration("DB_CLOSE_TIMEOUT", 5*time.Second),
		RedisCloseTimeout:        getEnvDuration("REDIS_CLOSE_TIMEOUT", 5*time.Second),
		ServerShutdownTimeout:    getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		AccessLogShutdownTimeout: getEnvDuration("ACCESS_LOG_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		errs = append(errs, fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore, RateLimitStoreMemory, RateLimitStoreRedis,
		))
	}

	switch c.SessionStore {
	case SessionStoreDatabase, SessionStoreCookie, SessionStoreMemory:
	default:
		errs = append(errs, fmt.Errorf(
			"invalid SESSION_STORE value: %q (must be %q, %q or %q)",
			c.SessionStore, SessionStoreDatabase, SessionStoreCookie, SessionStoreMemory,
		))
	}

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL < c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL"))
	}

	if c.SessionFingerprintEnabled {
		if c.SessionFingerprintSecret == "" {
			errs = append(errs, errors.New("SESSION_FP_SECRET is required when SESSION_FINGERPRINT is enabled"))
		}
		if c.SessionFingerprintTTL <= 0 {
			errs = append(errs, errors.New("SESSION_FP_TTL must be positive"))
		}
	}

	if c.IsProduction {
		if c.BcryptCost < MinBcryptCost {
			errs = append(errs, fmt.Errorf("BCRYPT_COST must be at least %d in production", MinBcryptCost))
		}
		if strings.Contains(c.SessionSecret, "change-in-production") {
			errs = append(errs, errors.New("SESSION_SECRET must be set in production"))
		}
		if strings.Contains(c.SessionFingerprintSecret, "change-in-production") {
			errs = append(errs, errors.New("SESSION_FP_SECRET must be set in production"))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
