package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, cfg *config.Config) (*TokenService, *CredentialService, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	creds := NewCredentialService(s, cfg, metrics.NewNoopMetrics())
	return NewTokenService(s, creds, cfg, metrics.NewNoopMetrics()), creds, s
}

// --- client_credentials ---

func TestIssueClientCredentials_Success(t *testing.T) {
	svc, creds, s := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "read write")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	assert.Equal(t, models.TokenTypeBearer, tok.TokenType)
	assert.True(t, tok.ExpiresAt.After(time.Now()))
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)
	assert.True(t, tok.RefreshExpiresAt.After(tok.ExpiresAt))
	assert.Equal(t, "read write", tok.Scope, "scope defaults to the application's scopes")
	assert.NotEmpty(t, tok.RawAccessToken)
	assert.NotEmpty(t, tok.RawRefreshToken)
	assert.NotEqual(t, tok.RawAccessToken, tok.RawRefreshToken)

	// Only digests are persisted
	row, err := store.FindTokenByHash(s.DB().WithContext(ctx), util.SHA256Hex(tok.RawAccessToken))
	require.NoError(t, err)
	assert.Equal(t, tok.ID, row.ID)
	assert.NotEqual(t, tok.RawAccessToken, row.AccessTokenHash)
	assert.True(t, row.Active)
	assert.False(t, row.Revoked)
}

func TestIssueClientCredentials_DistinctTokens(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	first, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)
	second, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.RawAccessToken, second.RawAccessToken)
	assert.NotEqual(t, first.RawRefreshToken, second.RawRefreshToken)
}

func TestIssueClientCredentials_InvalidClient(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	app, _ := createTestApplication(t, creds, "read")

	tok, err := svc.IssueClientCredentials(context.Background(), app.ClientID, "wrong-secret", "")
	assert.ErrorIs(t, err, ErrInvalidClient)
	assert.Nil(t, tok)
}

func TestIssueClientCredentials_Scopes(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "properties:read leases:read")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "leases:read")
	require.NoError(t, err)
	assert.Equal(t, "leases:read", tok.Scope)

	_, err = svc.IssueClientCredentials(ctx, app.ClientID, secret, "leases:write")
	assert.ErrorIs(t, err, ErrInvalidScope)

	open, openSecret := createTestApplication(t, creds, "")
	tok, err = svc.IssueClientCredentials(ctx, open.ClientID, openSecret, "anything goes")
	require.NoError(t, err)
	assert.Equal(t, "anything goes", tok.Scope)
}

// --- refresh_token ---

func TestRefresh_IssuesNewAccessToken(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "read")

	original, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, original.RawRefreshToken, app.ClientID)
	require.NoError(t, err)

	assert.Equal(t, original.ID, refreshed.ID)
	assert.NotEqual(t, original.RawAccessToken, refreshed.RawAccessToken)
	assert.Equal(t, original.RawRefreshToken, refreshed.RawRefreshToken, "refresh token is kept without rotation")
	assert.Equal(t, "read", refreshed.Scope)

	_, err = svc.ValidateAccessToken(ctx, original.RawAccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "the replaced access token stops working")
	_, err = svc.ValidateAccessToken(ctx, refreshed.RawAccessToken)
	assert.NoError(t, err)

	// A second refresh again produces a fresh value
	again, err := svc.Refresh(ctx, original.RawRefreshToken, "")
	require.NoError(t, err)
	assert.NotEqual(t, refreshed.RawAccessToken, again.RawAccessToken)
}

func TestRefresh_WithRotation(t *testing.T) {
	cfg := newTestConfig()
	cfg.EnableTokenRotation = true
	svc, creds, _ := newTestTokenService(t, cfg)
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	original, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, original.RawRefreshToken, app.ClientID)
	require.NoError(t, err)
	assert.NotEqual(t, original.RawRefreshToken, refreshed.RawRefreshToken)

	_, err = svc.Refresh(ctx, original.RawRefreshToken, app.ClientID)
	assert.ErrorIs(t, err, ErrInvalidGrant, "rotated-out refresh token is single use")

	_, err = svc.Refresh(ctx, refreshed.RawRefreshToken, app.ClientID)
	assert.NoError(t, err)
}

func TestRefresh_InvalidGrant(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")
	other, _ := createTestApplication(t, creds, "")

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not-a-real-token", "")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "", "")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("access token presented as refresh token", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)
		_, err = svc.Refresh(ctx, tok.RawAccessToken, "")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("owned by another client", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)
		_, err = svc.Refresh(ctx, tok.RawRefreshToken, other.ClientID)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("revoked token", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)
		_, revoked, err := svc.Revoke(ctx, tok.RawAccessToken, app.ClientID, secret)
		require.NoError(t, err)
		require.True(t, revoked)

		_, err = svc.Refresh(ctx, tok.RawRefreshToken, app.ClientID)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(721 * time.Hour) }
		t.Cleanup(func() { svc.now = time.Now })

		_, err = svc.Refresh(ctx, tok.RawRefreshToken, app.ClientID)
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestRefresh_ReactivatesSweptToken(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	refreshed, err := svc.Refresh(ctx, tok.RawRefreshToken, app.ClientID)
	require.NoError(t, err)
	assert.True(t, refreshed.Active)

	_, err = svc.ValidateAccessToken(ctx, refreshed.RawAccessToken)
	assert.NoError(t, err)
}

func TestRefresh_ConcurrentRotationHasSingleWinner(t *testing.T) {
	cfg := newTestConfig()
	cfg.EnableTokenRotation = true
	svc, creds, _ := newTestTokenService(t, cfg)
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, tok.RawRefreshToken, app.ClientID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrInvalidGrant)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

// --- revoke ---

func TestRevoke(t *testing.T) {
	svc, creds, s := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")
	other, otherSecret := createTestApplication(t, creds, "")

	t.Run("access token", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)

		owner, revoked, err := svc.Revoke(ctx, tok.RawAccessToken, app.ClientID, secret)
		require.NoError(t, err)
		assert.True(t, revoked)
		require.NotNil(t, owner)
		assert.Equal(t, app.ID, owner.ID)

		row, err := store.FindTokenByHash(s.DB().WithContext(ctx), tok.AccessTokenHash)
		require.NoError(t, err)
		assert.True(t, row.Revoked)
		assert.False(t, row.Active)
		assert.NotNil(t, row.RevokedAt)

		_, err = svc.ValidateAccessToken(ctx, tok.RawAccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)

		// Already revoked is still a success
		_, revoked, err = svc.Revoke(ctx, tok.RawAccessToken, app.ClientID, secret)
		assert.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("refresh token revokes the pair", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)

		_, revoked, err := svc.Revoke(ctx, tok.RawRefreshToken, app.ClientID, secret)
		require.NoError(t, err)
		assert.True(t, revoked)

		_, err = svc.ValidateAccessToken(ctx, tok.RawAccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown token is a silent success", func(t *testing.T) {
		_, revoked, err := svc.Revoke(ctx, "never-issued", app.ClientID, secret)
		assert.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("missing token still authenticates the client", func(t *testing.T) {
		owner, revoked, err := svc.Revoke(ctx, "", app.ClientID, secret)
		assert.NoError(t, err)
		assert.False(t, revoked)
		require.NotNil(t, owner)
		assert.Equal(t, app.ClientID, owner.ClientID)
	})

	t.Run("another client's token is left alone", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)

		_, revoked, err := svc.Revoke(ctx, tok.RawAccessToken, other.ClientID, otherSecret)
		assert.NoError(t, err)
		assert.False(t, revoked)

		_, err = svc.ValidateAccessToken(ctx, tok.RawAccessToken)
		assert.NoError(t, err)
	})

	t.Run("bad client credentials are a silent no-op", func(t *testing.T) {
		tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)

		owner, revoked, err := svc.Revoke(ctx, tok.RawAccessToken, app.ClientID, "wrong")
		assert.NoError(t, err)
		assert.False(t, revoked)
		assert.Nil(t, owner)

		_, err = svc.ValidateAccessToken(ctx, tok.RawAccessToken)
		assert.NoError(t, err)
	})
}

// --- access guard lookups ---

func TestValidateAccessToken(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "read")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)

	got, err := svc.ValidateAccessToken(ctx, tok.RawAccessToken)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	require.NotNil(t, got.Application)
	assert.Equal(t, app.ClientID, got.Application.ClientID)

	_, err = svc.ValidateAccessToken(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateAccessToken(ctx, tok.RawRefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(61 * time.Minute) }
	_, err = svc.ValidateAccessToken(ctx, tok.RawAccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired tokens are rejected before the sweep runs")
}

func TestTouchLastUsed(t *testing.T) {
	svc, creds, s := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	tok, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
	require.NoError(t, err)
	require.NoError(t, svc.TouchLastUsed(ctx, tok))
	assert.NotNil(t, tok.LastUsed)

	row, err := store.FindTokenByHash(s.DB().WithContext(ctx), tok.AccessTokenHash)
	require.NoError(t, err)
	assert.NotNil(t, row.LastUsed)
}

func TestSweepExpired_Idempotent(t *testing.T) {
	svc, creds, _ := newTestTokenService(t, newTestConfig())
	ctx := context.Background()
	app, secret := createTestApplication(t, creds, "")

	for i := 0; i < 3; i++ {
		_, err := svc.IssueClientCredentials(ctx, app.ClientID, secret, "")
		require.NoError(t, err)
	}

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing has expired yet")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolveScope(t *testing.T) {
	tests := []struct {
		name      string
		allowed   string
		requested string
		want      string
		wantErr   error
	}{
		{name: "inherit", allowed: "read write", requested: "", want: "read write"},
		{name: "subset", allowed: "read write", requested: "write", want: "write"},
		{name: "duplicates collapse", allowed: "read write", requested: "read read", want: "read"},
		{name: "not a subset", allowed: "read", requested: "read admin", wantErr: ErrInvalidScope},
		{name: "case sensitive", allowed: "read", requested: "READ", wantErr: ErrInvalidScope},
		{name: "unrestricted", allowed: "", requested: "anything", want: "anything"},
		{name: "nothing at all", allowed: "", requested: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveScope(tt.allowed, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
