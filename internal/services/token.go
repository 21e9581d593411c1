package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Grant types accepted by the token endpoint
const (
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

// tokenValueBytes is the entropy of every access and refresh token value.
const tokenValueBytes = 32

// maxMintAttempts bounds the loop that guarantees a refreshed access token
// differs from the value it replaces.
const maxMintAttempts = 3

// TokenService implements the client_credentials, refresh_token and revoke
// grants, and validates bearer tokens for the access guard.
type TokenService struct {
	store       *store.Store
	credentials *CredentialService
	config      *config.Config
	metrics     metrics.Recorder
	now         func() time.Time
}

func NewTokenService(
	s *store.Store,
	credentials *CredentialService,
	cfg *config.Config,
	m metrics.Recorder,
) *TokenService {
	return &TokenService{
		store:       s,
		credentials: credentials,
		config:      cfg,
		metrics:     m,
		now:         time.Now,
	}
}

// AccessTokenTTL is the lifetime of issued access tokens
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

func generateTokenValue() (value, hash string, err error) {
	value, err = util.CryptoRandomURLString(tokenValueBytes)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	return value, util.SHA256Hex(value), nil
}

// IssueClientCredentials authenticates the client and mints a new
// access/refresh pair (RFC 6749 §4.4).
func (s *TokenService) IssueClientCredentials(
	ctx context.Context,
	clientID, clientSecret, requestedScope string,
) (*models.Token, error) {
	start := time.Now()

	app, err := s.credentials.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	scope, err := resolveScope(app.Scopes, requestedScope)
	if err != nil {
		return nil, err
	}

	access, accessHash, err := generateTokenValue()
	if err != nil {
		return nil, err
	}
	refresh, refreshHash, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	now := s.now()
	tok := &models.Token{
		ID:               uuid.New().String(),
		ApplicationID:    app.ID,
		AccessTokenHash:  accessHash,
		RefreshTokenHash: refreshHash,
		RawAccessToken:   access,
		RawRefreshToken:  refresh,
		TokenType:        models.TokenTypeBearer,
		ExpiresAt:        now.Add(s.config.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.config.RefreshTokenTTL),
		Scope:            scope,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	tok.Application = app

	s.metrics.RecordTokenIssued(GrantTypeClientCredentials, time.Since(start))
	log.Debug().
		Str("client_id", app.ClientID).
		Str("token_id", tok.ID).
		Str("scope", scope).
		Msg("token issued")

	return tok, nil
}

// Refresh exchanges a refresh token for a new access token. The row is
// re-read and conditionally updated inside one transaction, so a refresh
// racing a revoke or another refresh resolves to exactly one outcome.
// A non-empty clientID must own the token.
func (s *TokenService) Refresh(
	ctx context.Context,
	refreshToken, clientID string,
) (*models.Token, error) {
	tok, err := s.refresh(ctx, refreshToken, clientID)
	s.metrics.RecordTokenRefresh(err == nil)
	return tok, err
}

func (s *TokenService) refresh(
	ctx context.Context,
	refreshToken, clientID string,
) (*models.Token, error) {
	start := time.Now()
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}
	refreshHash := util.SHA256Hex(refreshToken)
	now := s.now()

	tx := s.store.DB().WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var current models.Token
	if err := tx.Where("refresh_token_hash = ? AND revoked = ?", refreshHash, false).
		First(&current).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if current.IsRefreshExpiredAt(now) {
		tx.Rollback()
		return nil, ErrInvalidGrant
	}

	var app models.Application
	if err := tx.Where("id = ?", current.ApplicationID).First(&app).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if !app.Active || (clientID != "" && app.ClientID != clientID) {
		tx.Rollback()
		return nil, ErrInvalidGrant
	}

	var access, accessHash string
	for attempt := 0; ; attempt++ {
		if attempt == maxMintAttempts {
			tx.Rollback()
			return nil, errors.New("failed to mint a distinct access token")
		}
		var err error
		access, accessHash, err = generateTokenValue()
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if accessHash != current.AccessTokenHash {
			break
		}
	}

	updates := map[string]any{
		"access_token_hash": accessHash,
		"expires_at":        now.Add(s.config.AccessTokenTTL),
		"active":            true,
		"updated_at":        now,
	}

	newRefresh := refreshToken
	if s.config.EnableTokenRotation {
		var newRefreshHash string
		var err error
		newRefresh, newRefreshHash, err = generateTokenValue()
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		updates["refresh_token_hash"] = newRefreshHash
		updates["refresh_expires_at"] = now.Add(s.config.RefreshTokenTTL)
	}

	// Guarded on the values read above: a conflict means a concurrent
	// revoke or refresh won.
	err := store.UpdateTokenIf(tx, current.ID, map[string]any{
		"access_token_hash": current.AccessTokenHash,
		"revoked":           false,
	}, updates)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, store.ErrTokenConflict) {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("failed to update token: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	current.AccessTokenHash = accessHash
	current.RawAccessToken = access
	current.RawRefreshToken = newRefresh
	current.ExpiresAt = updates["expires_at"].(time.Time)
	current.Active = true
	current.UpdatedAt = now
	if s.config.EnableTokenRotation {
		current.RefreshTokenHash = updates["refresh_token_hash"].(string)
		current.RefreshExpiresAt = updates["refresh_expires_at"].(time.Time)
		s.metrics.RecordTokensRevoked("token_rotation", 1)
	}
	current.Application = &app

	s.metrics.RecordTokenIssued(GrantTypeRefreshToken, time.Since(start))
	log.Debug().
		Str("client_id", app.ClientID).
		Str("token_id", current.ID).
		Bool("rotated", s.config.EnableTokenRotation).
		Msg("token refreshed")

	return &current, nil
}

// Revoke implements RFC 7009 revocation. The token may be an access or a
// refresh token. It is revoked only when the presented client credentials
// are valid and own it; every other case is a silent no-op. It returns the
// authenticated application, nil when the credentials were not valid, and
// whether a row changed.
func (s *TokenService) Revoke(
	ctx context.Context,
	token, clientID, clientSecret string,
) (*models.Application, bool, error) {
	app, err := s.credentials.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if token == "" {
		return app, false, nil
	}

	hash := util.SHA256Hex(token)
	now := s.now()

	tx := s.store.DB().WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	current, err := store.FindTokenByHash(tx, hash)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, store.ErrRecordNotFound) {
			return app, false, nil
		}
		return app, false, fmt.Errorf("failed to load token: %w", err)
	}
	if current.ApplicationID != app.ID || current.Revoked {
		tx.Rollback()
		return app, false, nil
	}

	err = store.UpdateTokenIf(tx, current.ID, map[string]any{"revoked": false}, map[string]any{
		"revoked":    true,
		"active":     false,
		"revoked_at": now,
		"updated_at": now,
	})
	if err != nil {
		tx.Rollback()
		if errors.Is(err, store.ErrTokenConflict) {
			return app, false, nil
		}
		return app, false, fmt.Errorf("failed to revoke token: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return app, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordTokensRevoked("client_request", 1)
	log.Info().
		Str("client_id", app.ClientID).
		Str("token_id", current.ID).
		Msg("token revoked")
	return app, true, nil
}

// ValidateAccessToken resolves a raw bearer token to its ledger row. Only a
// SHA-256 digest equality lookup is done here, never bcrypt.
func (s *TokenService) ValidateAccessToken(
	ctx context.Context,
	raw string,
) (*models.Token, error) {
	start := time.Now()
	if raw == "" {
		s.metrics.RecordTokenValidation("invalid", time.Since(start))
		return nil, ErrInvalidToken
	}

	tok, err := s.store.GetUsableTokenByAccessHash(ctx, util.SHA256Hex(raw), s.now())
	if err != nil {
		s.metrics.RecordTokenValidation("invalid", time.Since(start))
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	s.metrics.RecordTokenValidation("valid", time.Since(start))
	return tok, nil
}

// TouchLastUsed records that tok just authenticated a request
func (s *TokenService) TouchLastUsed(ctx context.Context, tok *models.Token) error {
	now := s.now()
	if err := s.store.TouchTokenLastUsed(ctx, tok.ID, now); err != nil {
		return err
	}
	tok.LastUsed = &now
	return nil
}

// SweepExpired deactivates every token whose access lifetime has ended.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpiredTokens(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordTokensSwept(n)
	return n, nil
}

// resolveScope returns the scope to grant. An empty request inherits the
// application's scopes. A non-empty request must be a subset of them unless
// the application is unrestricted.
func resolveScope(allowed, requested string) (string, error) {
	req := splitScopes(requested)
	if len(req) == 0 {
		return strings.Join(splitScopes(allowed), " "), nil
	}

	granted := make([]string, 0, len(req))
	for _, scope := range req {
		if !slices.Contains(granted, scope) {
			granted = append(granted, scope)
		}
	}

	allowedSet := splitScopes(allowed)
	if len(allowedSet) == 0 {
		return strings.Join(granted, " "), nil
	}
	for _, scope := range granted {
		if !slices.Contains(allowedSet, scope) {
			return "", ErrInvalidScope
		}
	}
	return strings.Join(granted, " "), nil
}

// splitScopes splits space-separated scope string
func splitScopes(scopes string) []string {
	if scopes == "" {
		return []string{}
	}
	return strings.Fields(scopes)
}
