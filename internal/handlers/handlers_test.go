package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	cfg         *config.Config
	store       *store.Store
	credentials *services.CredentialService
	tokens      *services.TokenService
	accessLogs  *services.AccessLogService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		BcryptCost:           bcrypt.MinCost,
		AccessTokenTTL:       time.Hour,
		RefreshTokenTTL:      720 * time.Hour,
		DefaultAdminPassword: "admin-password",
	}
	s, err := store.New("sqlite", ":memory:", cfg)
	require.NoError(t, err)

	m := metrics.NewNoopMetrics()
	creds := services.NewCredentialService(s, cfg, m)
	accessLogs := services.NewAccessLogService(s, true, 100, m)
	t.Cleanup(func() { _ = accessLogs.Shutdown(context.Background()) })

	return &testEnv{
		cfg:         cfg,
		store:       s,
		credentials: creds,
		tokens:      services.NewTokenService(s, creds, cfg, m),
		accessLogs:  accessLogs,
	}
}

func (e *testEnv) createApplication(t *testing.T, scopes string) *services.ApplicationWithSecret {
	t.Helper()
	app, err := e.credentials.CreateApplication(context.Background(), services.CreateApplicationRequest{
		Name:   "MLS Sync",
		Scopes: scopes,
	})
	require.NoError(t, err)
	return app
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierr.Response {
	t.Helper()
	var resp apierr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
