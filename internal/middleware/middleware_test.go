package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter() *gin.Engine {
	r := gin.New()

	// Setup session middleware
	store := cookie.NewStore([]byte("test-secret"))
	r.Use(sessions.Sessions("test_session", store))

	return r
}

type testEnv struct {
	store       *store.Store
	credentials *services.CredentialService
	tokens      *services.TokenService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		BcryptCost:      bcrypt.MinCost,
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 720 * time.Hour,
	}
	s, err := store.New("sqlite", ":memory:", cfg)
	require.NoError(t, err)

	m := metrics.NewNoopMetrics()
	creds := services.NewCredentialService(s, cfg, m)
	return &testEnv{
		store:       s,
		credentials: creds,
		tokens:      services.NewTokenService(s, creds, cfg, m),
	}
}

// issueToken registers an application with scopes and returns a fresh access token for it
func (e *testEnv) issueToken(
	t *testing.T,
	scopes string,
) (*models.Token, *services.ApplicationWithSecret) {
	t.Helper()
	ctx := context.Background()

	app, err := e.credentials.CreateApplication(ctx, services.CreateApplicationRequest{
		Name:   "Portal Feed",
		Scopes: scopes,
	})
	require.NoError(t, err)

	tok, err := e.tokens.IssueClientCredentials(ctx, app.ClientID, app.ClientSecretPlain, "")
	require.NoError(t, err)
	return tok, app
}

// sessionClient replays the cookies a browser would keep between requests
type sessionClient struct {
	router    *gin.Engine
	cookies   map[string]*http.Cookie
	userAgent string
}

func newSessionClient(router *gin.Engine) *sessionClient {
	return &sessionClient{
		router:    router,
		cookies:   map[string]*http.Cookie{},
		userAgent: "Mozilla/5.0 (test)",
	}
}

func (sc *sessionClient) do(method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":40000"
	req.Header.Set("User-Agent", sc.userAgent)
	for _, ck := range sc.cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	w := httptest.NewRecorder()
	sc.router.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(sc.cookies, ck.Name)
			continue
		}
		sc.cookies[ck.Name] = ck
	}
	return w
}

// recordingMetrics captures the metrics the middleware under test emits
type recordingMetrics struct {
	metrics.Recorder
	invalidated []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{Recorder: metrics.NewNoopMetrics()}
}

func (m *recordingMetrics) RecordSessionInvalidated(reason string) {
	m.invalidated = append(m.invalidated, reason)
}
