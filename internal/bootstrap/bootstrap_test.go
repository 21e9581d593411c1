package bootstrap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ServerAddr:     ":0",
		LogLevel:       "info",
		DatabaseDriver: "sqlite",
		DatabaseDSN:    filepath.Join(t.TempDir(), "authcore.db"),
		BcryptCost:     bcrypt.MinCost,

		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 720 * time.Hour,

		SessionSecret: "bootstrap-test-session-secret",
		SessionStore:  config.SessionStoreDatabase,
		SessionMaxAge: 3600,

		SessionFingerprintEnabled:     true,
		SessionFingerprintSecret:      "bootstrap-test-fingerprint-secret",
		SessionFingerprintTTL:         24 * time.Hour,
		SessionFingerprintIssuer:      "authcore",
		SessionFingerprintIP:          true,
		SessionFingerprintUserAgent:   true,
		SessionFingerprintExemptPaths: []string{"/api/", "/auth/"},

		EnableAccessLog:     true,
		AccessLogBufferSize: 100,

		EnableRateLimit:       true,
		RateLimitStore:        config.RateLimitStoreMemory,
		TokenRateLimit:        60,
		LoginRateLimit:        10,
		RateLimitCleanupEvery: time.Minute,

		DefaultAdminPassword: "admin-password",

		DBInitTimeout:            5 * time.Second,
		DBCloseTimeout:           time.Second,
		RedisCloseTimeout:        time.Second,
		ServerShutdownTimeout:    time.Second,
		AccessLogShutdownTimeout: time.Second,
	}
}

func newTestApplication(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app, err := newApplication(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background()) })
	return app
}

func TestValidateAllConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		errorMsg string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.DatabaseDriver = "mysql" }, "invalid DATABASE_DRIVER"},
		{"missing dsn", func(c *config.Config) { c.DatabaseDSN = "" }, "DATABASE_DSN is required"},
		{"zero token limit", func(c *config.Config) { c.TokenRateLimit = 0 }, "must be positive"},
		{"zero limit ignored when disabled", func(c *config.Config) {
			c.EnableRateLimit = false
			c.TokenRateLimit = 0
		}, ""},
		{"redis without address", func(c *config.Config) {
			c.RateLimitStore = config.RateLimitStoreRedis
			c.RedisAddr = ""
		}, "REDIS_ADDR is required"},
		{"invalid session store", func(c *config.Config) { c.SessionStore = "redis" }, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			err := validateAllConfiguration(cfg)
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestInitializeMetrics(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		m := initializeMetrics(&config.Config{MetricsEnabled: enabled})
		require.NotNil(t, m)
	}
	_, isNoop := initializeMetrics(&config.Config{}).(*metrics.NoopMetrics)
	assert.True(t, isNoop)
}

func TestInitializeFingerprintGuard(t *testing.T) {
	guard, err := initializeFingerprintGuard(&config.Config{SessionFingerprintEnabled: false})
	require.NoError(t, err)
	assert.Nil(t, guard)

	cfg := testConfig(t)
	guard, err = initializeFingerprintGuard(cfg)
	require.NoError(t, err)
	require.NotNil(t, guard)
	assert.ElementsMatch(t, []string{"ip", "user_agent"}, guard.Enabled())

	cfg.SessionFingerprintSecret = ""
	_, err = initializeFingerprintGuard(cfg)
	assert.Error(t, err)
}

func TestInitializeRateLimitRedisClient_NotNeeded(t *testing.T) {
	client, err := initializeRateLimitRedisClient(&config.Config{EnableRateLimit: false})
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = initializeRateLimitRedisClient(&config.Config{
		EnableRateLimit: true,
		RateLimitStore:  config.RateLimitStoreMemory,
	})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitializeRateLimitRedisClient_Unreachable(t *testing.T) {
	_, err := initializeRateLimitRedisClient(&config.Config{
		EnableRateLimit:  true,
		RateLimitStore:   config.RateLimitStoreRedis,
		RedisAddr:        "invalid-host:9999",
		RedisConnTimeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestSetupRateLimiting_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiters, err := setupRateLimiting(&config.Config{EnableRateLimit: false}, nil)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/", limiters.token, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestSetupRateLimiting_RedisWithoutClient(t *testing.T) {
	_, err := setupRateLimiting(&config.Config{
		EnableRateLimit: true,
		RateLimitStore:  config.RateLimitStoreRedis,
		TokenRateLimit:  10,
		LoginRateLimit:  10,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token rate limiter")
}

func TestNewSessionStore_DatabaseIsShared(t *testing.T) {
	cfg := testConfig(t)
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NotNil(t, newSessionStore(cfg, db))
	assert.True(t, db.DB().Migrator().HasTable(store.SessionTable))

	ctx := context.Background()
	require.NoError(t, db.DB().Exec(
		"INSERT INTO "+store.SessionTable+" (id, data, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		"stale", "", time.Now(), time.Now(), time.Now().Add(-time.Minute),
	).Error)
	deleted, err := db.DeleteExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestErrorLogger_Suppresses(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newErrorLogger()
	e.now = func() time.Time { return now }
	boom := errors.New("boom")

	assert.True(t, e.logIfNeeded("count_active_tokens", boom))
	assert.False(t, e.logIfNeeded("count_active_tokens", boom))
	assert.True(t, e.logIfNeeded("count_active_applications", boom))

	now = now.Add(e.rateLimitWindow)
	assert.True(t, e.logIfNeeded("count_active_tokens", boom))
}

type gaugeRecorder struct {
	metrics.Recorder
	tokens       int
	applications int
	queryErrors  []string
}

func (g *gaugeRecorder) SetActiveTokensCount(count int)       { g.tokens = count }
func (g *gaugeRecorder) SetActiveApplicationsCount(count int) { g.applications = count }
func (g *gaugeRecorder) RecordDatabaseQueryError(operation string) {
	g.queryErrors = append(g.queryErrors, operation)
}

func TestUpdateGaugeMetrics(t *testing.T) {
	app := newTestApplication(t, testConfig(t))
	ctx := context.Background()

	client, err := app.CredentialService.CreateApplication(ctx, services.CreateApplicationRequest{Name: "listings"})
	require.NoError(t, err)
	_, err = app.TokenService.IssueClientCredentials(ctx, client.ClientID, client.ClientSecretPlain, "")
	require.NoError(t, err)

	rec := &gaugeRecorder{Recorder: metrics.NewNoopMetrics()}
	updateGaugeMetrics(ctx, app.DB, rec, newErrorLogger())

	assert.Equal(t, 1, rec.tokens)
	assert.Equal(t, 1, rec.applications)
	assert.Empty(t, rec.queryErrors)
}

func TestNewApplication_RotatesPlaintextSecrets(t *testing.T) {
	cfg := testConfig(t)

	s, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg)
	require.NoError(t, err)
	require.NoError(t, s.CreateApplication(context.Background(), &models.Application{
		Name:             "legacy",
		ClientID:         "app_legacy",
		ClientSecretHash: "stored-in-the-clear",
		Active:           true,
	}))
	require.NoError(t, s.Close())

	app := newTestApplication(t, cfg)

	legacy, err := app.CredentialService.GetApplication(context.Background(), "app_legacy")
	require.NoError(t, err)
	assert.True(t, legacy.HasHashedSecret())
	assert.False(t, services.VerifySecret(legacy.ClientSecretHash, "stored-in-the-clear"))
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AccessTokenTTL = 0
	_, err := newApplication(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_TTL")
}

func TestRouter_Health(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","database":"connected"}`, w.Body.String())
}

func TestRouter_MetricsProtected(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = true
	cfg.MetricsToken = "scrape-token"
	app := newTestApplication(t, cfg)

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-token")
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_GrantAndProtectedAPI(t *testing.T) {
	app := newTestApplication(t, testConfig(t))
	client, err := app.CredentialService.CreateApplication(
		context.Background(),
		services.CreateApplicationRequest{Name: "listings", Scopes: "listings:read"},
	)
	require.NoError(t, err)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecretPlain},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	assert.Equal(t, 3600, tok.ExpiresIn)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tokeninfo", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), client.ClientID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tokeninfo", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The grant call and both API calls reach the access log
	require.NoError(t, app.AccessLogService.Shutdown(context.Background()))
	logs, _, err := app.DB.ListAccessLogs(
		context.Background(),
		store.NewPaginationParams(1, 50, ""),
		store.AccessLogFilters{},
	)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

// adminBrowser keeps the session cookie and CSRF token between requests
type adminBrowser struct {
	router  *gin.Engine
	cookies map[string]*http.Cookie
	csrf    string
}

func (b *adminBrowser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range b.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	if b.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, b.csrf)
	}
	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		b.cookies[ck.Name] = ck
	}
	if token := w.Header().Get(middleware.CSRFHeader); token != "" {
		b.csrf = token
	}
	return w
}

func TestRouter_AdminRequiresSession(t *testing.T) {
	app := newTestApplication(t, testConfig(t))
	b := &adminBrowser{router: app.Router, cookies: map[string]*http.Cookie{}}

	w := b.do(httptest.NewRequest(http.MethodGet, "/admin/applications", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	body := `{"login":"admin","password":"admin-password"}`
	req := httptest.NewRequest(http.MethodPost, "/session/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = b.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = b.do(httptest.NewRequest(http.MethodGet, "/admin/applications", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, b.csrf)

	req = httptest.NewRequest(http.MethodPost, "/admin/applications",
		strings.NewReader(`{"name":"listings","scopes":"listings:read"}`))
	req.Header.Set("Content-Type", "application/json")
	w = b.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "client_secret")

	// Without the CSRF header the same request is refused
	b.csrf = ""
	req = httptest.NewRequest(http.MethodPost, "/admin/applications",
		strings.NewReader(`{"name":"other"}`))
	req.Header.Set("Content-Type", "application/json")
	w = b.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_FingerprintMismatchEndsSession(t *testing.T) {
	app := newTestApplication(t, testConfig(t))
	b := &adminBrowser{router: app.Router, cookies: map[string]*http.Cookie{}}

	body := `{"login":"admin","password":"admin-password"}`
	req := httptest.NewRequest(http.MethodPost, "/session/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	require.Equal(t, http.StatusOK, b.do(req).Code)

	// First authenticated request binds the fingerprint
	w := b.do(httptest.NewRequest(http.MethodGet, "/session/info", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"admin"`)

	// Same cookie from another network
	req = httptest.NewRequest(http.MethodGet, "/session/info", nil)
	req.RemoteAddr = "198.51.100.20:40000"
	w = b.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":false`)

	// The server-side session is gone for the original client too
	w = b.do(httptest.NewRequest(http.MethodGet, "/session/info", nil))
	assert.Contains(t, w.Body.String(), `"uid":false`)
}

func TestRouter_StolenCookieReplayRejected(t *testing.T) {
	app := newTestApplication(t, testConfig(t))

	var logs bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(zerolog.SyncWriter(&logs))
	t.Cleanup(func() { log.Logger = previous })

	req := httptest.NewRequest(http.MethodPost, "/session/login",
		strings.NewReader(`{"login":"admin","password":"admin-password"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stolen *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == sessionCookieName {
			stolen = ck
		}
	}
	require.NotNil(t, stolen)

	infoFrom := func(ip string) string {
		req := httptest.NewRequest(http.MethodGet, "/session/info", nil)
		req.AddCookie(&http.Cookie{Name: stolen.Name, Value: stolen.Value})
		if ip != "" {
			req.RemoteAddr = ip + ":40000"
		}
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	// Victim binds the fingerprint, the thief replays the same cookie elsewhere
	assert.Contains(t, infoFrom(""), `"username":"admin"`)
	assert.Contains(t, infoFrom("198.51.100.20"), `"uid":false`)

	// The cookie value itself is dead now, from any address
	assert.Contains(t, infoFrom(""), `"uid":false`)
	assert.Contains(t, infoFrom("198.51.100.20"), `"uid":false`)

	var sessionID string
	scanner := bufio.NewScanner(&logs)
	for scanner.Scan() {
		var entry map[string]any
		if json.Unmarshal(scanner.Bytes(), &entry) != nil {
			continue
		}
		if entry["event"] == "session_hijack_suspected" {
			sessionID, _ = entry["session_id"].(string)
		}
	}
	assert.NotEmpty(t, sessionID, "the security entry names the destroyed session")
}
