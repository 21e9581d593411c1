package services

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/store"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// clientSecretBytes encodes to exactly 64 URL-safe base64 characters.
const clientSecretBytes = 48

// createApplicationAttempts bounds retries on a client_id collision.
const createApplicationAttempts = 3

// CreateApplicationRequest is the input for registering an API client
type CreateApplicationRequest struct {
	Name      string `json:"name"   form:"name"`
	Scopes    string `json:"scopes" form:"scopes"`
	CreatedBy string `json:"-"      form:"-"`
}

// ApplicationWithSecret carries the one and only plaintext disclosure of a
// client secret, returned from create and rotate.
type ApplicationWithSecret struct {
	*models.Application
	ClientSecretPlain string `json:"client_secret"`
}

// CredentialService owns application identity: id/secret generation,
// bcrypt hashing and verification, rotation and deactivation.
type CredentialService struct {
	store      *store.Store
	bcryptCost int
	metrics    metrics.Recorder
	now        func() time.Time

	// Compared against when the client_id is unknown so the response time
	// does not reveal whether an application exists.
	dummyHash func() []byte
}

func NewCredentialService(
	s *store.Store,
	cfg *config.Config,
	m metrics.Recorder,
) *CredentialService {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = config.MinBcryptCost
	}
	svc := &CredentialService{
		store:      s,
		bcryptCost: cost,
		metrics:    m,
		now:        time.Now,
	}
	svc.dummyHash = sync.OnceValue(func() []byte {
		h, _ := bcrypt.GenerateFromPassword([]byte("dummy-secret"), cost)
		return h
	})
	return svc
}

// GenerateClientID returns a new public client identifier: the app_ prefix
// followed by 16 random bytes in lowercase base32.
func GenerateClientID() (string, error) {
	rBytes, err := util.CryptoRandomBytes(16)
	if err != nil {
		return "", err
	}
	// Add a prefix to the base32, this is in order to make it easier
	// for code scanners to grab client identifiers.
	return models.ClientIDPrefix + base32Lower.EncodeToString(rBytes), nil
}

// GenerateClientSecret returns a 64-character secret over [A-Za-z0-9-_].
func GenerateClientSecret() (string, error) {
	return util.CryptoRandomURLString(clientSecretBytes)
}

// HashSecret hashes a plaintext secret with bcrypt.
func (s *CredentialService) HashSecret(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret reports whether plaintext matches hash. It never fails loudly:
// an empty plaintext, an empty or non-bcrypt hash and a mismatch all yield false.
func VerifySecret(hash, plaintext string) bool {
	if plaintext == "" || hash == "" {
		return false
	}
	app := models.Application{ClientSecretHash: hash}
	if !app.HasHashedSecret() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// CreateApplication registers a new application and returns its plaintext
// secret. The secret is never stored and cannot be recovered later.
func (s *CredentialService) CreateApplication(
	ctx context.Context,
	req CreateApplicationRequest,
) (*ApplicationWithSecret, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrApplicationName
	}

	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	hash, err := s.HashSecret(secret)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		clientID, err := GenerateClientID()
		if err != nil {
			return nil, err
		}

		app := &models.Application{
			Name:             name,
			ClientID:         clientID,
			ClientSecretHash: hash,
			Scopes:           strings.Join(strings.Fields(req.Scopes), " "),
			Active:           true,
			CreatedBy:        req.CreatedBy,
		}
		err = s.store.CreateApplication(ctx, app)
		if err == nil {
			log.Info().
				Str("client_id", app.ClientID).
				Str("name", app.Name).
				Str("created_by", app.CreatedBy).
				Msg("application created")
			return &ApplicationWithSecret{Application: app, ClientSecretPlain: secret}, nil
		}

		// Retry only when the unique client_id index rejected the row
		if _, lookupErr := s.store.GetApplicationByClientID(ctx, clientID); lookupErr != nil ||
			attempt == createApplicationAttempts {
			return nil, fmt.Errorf("failed to create application: %w", err)
		}
	}
}

// GetApplication returns the application for clientID
func (s *CredentialService) GetApplication(
	ctx context.Context,
	clientID string,
) (*models.Application, error) {
	app, err := s.store.GetApplicationByClientID(ctx, clientID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrApplicationNotFound
	}
	return app, err
}

// ListApplications returns one page of applications
func (s *CredentialService) ListApplications(
	ctx context.Context,
	params store.PaginationParams,
) ([]models.Application, store.PaginationResult, error) {
	return s.store.ListApplications(ctx, params)
}

// Authenticate verifies client credentials. Unknown, inactive and
// wrong-secret clients are indistinguishable to the caller.
func (s *CredentialService) Authenticate(
	ctx context.Context,
	clientID, secret string,
) (*models.Application, error) {
	if clientID == "" || secret == "" {
		s.metrics.RecordClientAuth(false)
		return nil, ErrInvalidClient
	}

	app, err := s.store.GetApplicationByClientID(ctx, clientID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load application: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(secret))
		s.metrics.RecordClientAuth(false)
		return nil, ErrInvalidClient
	}

	if !VerifySecret(app.ClientSecretHash, secret) || !app.Active {
		s.metrics.RecordClientAuth(false)
		return nil, ErrInvalidClient
	}

	s.metrics.RecordClientAuth(true)
	return app, nil
}

// RegenerateSecret revokes every token of the application and replaces its
// secret in one transaction. Each call yields a fresh secret, so retrying
// after an ambiguous failure is safe.
func (s *CredentialService) RegenerateSecret(
	ctx context.Context,
	clientID string,
) (*ApplicationWithSecret, error) {
	app, err := s.GetApplication(ctx, clientID)
	if err != nil {
		return nil, err
	}

	// Hash before opening the transaction; bcrypt is slow.
	secret, err := GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	hash, err := s.HashSecret(secret)
	if err != nil {
		return nil, err
	}

	now := s.now()
	tx := s.store.DB().WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	revoked, err := store.RevokeTokensByApplication(tx, app.ID, now)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to revoke application tokens: %w", err)
	}

	if err := tx.Model(&models.Application{}).
		Where("id = ?", app.ID).
		Updates(map[string]any{
			"client_secret_hash": hash,
			"updated_at":         now,
		}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to store new secret: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordTokensRevoked("secret_rotation", revoked)
	log.Info().
		Str("client_id", app.ClientID).
		Int64("revoked_tokens", revoked).
		Msg("application secret rotated")

	app.ClientSecretHash = hash
	app.UpdatedAt = now
	return &ApplicationWithSecret{Application: app, ClientSecretPlain: secret}, nil
}

// RotatePlaintextSecrets force-rotates every application whose stored secret
// is not a bcrypt hash. Such a secret is treated as compromised; the
// replacement is disclosed once through the security log.
func (s *CredentialService) RotatePlaintextSecrets(ctx context.Context) (int, error) {
	apps, err := s.store.ListApplicationsWithPlaintextSecret(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list applications: %w", err)
	}

	rotated := 0
	for _, app := range apps {
		result, err := s.RegenerateSecret(ctx, app.ClientID)
		if err != nil {
			return rotated, fmt.Errorf("failed to rotate secret of %s: %w", app.ClientID, err)
		}
		rotated++
		log.Warn().
			Str("event", "plaintext_secret_rotated").
			Str("client_id", app.ClientID).
			Str("client_secret", result.ClientSecretPlain).
			Msg("stored secret was not hashed; issued a new secret, save it now")
	}
	return rotated, nil
}

// DeactivateApplication soft-deletes an application and revokes its tokens
func (s *CredentialService) DeactivateApplication(ctx context.Context, clientID string) error {
	app, err := s.GetApplication(ctx, clientID)
	if err != nil {
		return err
	}

	now := s.now()
	tx := s.store.DB().WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.Model(&models.Application{}).
		Where("id = ?", app.ID).
		Updates(map[string]any{"active": false, "updated_at": now}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to deactivate application: %w", err)
	}

	revoked, err := store.RevokeTokensByApplication(tx, app.ID, now)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to revoke application tokens: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.RecordTokensRevoked("deactivation", revoked)
	log.Info().
		Str("client_id", app.ClientID).
		Int64("revoked_tokens", revoked).
		Msg("application deactivated")
	return nil
}
