package store

import (
	"context"
	"errors"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func New(driverName, dsn string, cfg *config.Config) (*Store, error) {
	d, err := lookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d.open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := d.configure(db); err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.User{},
		&models.Application{},
		&models.Token{},
		&models.AccessLog{},
	); err != nil {
		return nil, err
	}

	store := &Store{db: db}

	// Seed default data
	if err := store.seedData(cfg); err != nil {
		log.Warn().Err(err).Msg("failed to seed data")
	}

	return store, nil
}

func (s *Store) seedData(cfg *config.Config) error {
	var userCount int64
	if err := s.db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount > 0 {
		return nil
	}

	password := cfg.DefaultAdminPassword
	generated := password == ""
	if generated {
		var err error
		password, err = util.CryptoRandomURLString(12)
		if err != nil {
			return err
		}
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     "admin",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return err
	}

	if generated {
		log.Warn().Str("username", user.Username).Str("password", password).
			Msg("created default admin user, change this password")
	} else {
		log.Info().Str("username", user.Username).Msg("created default admin user")
	}
	return nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// User operations

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// Application operations

func (s *Store) CreateApplication(ctx context.Context, app *models.Application) error {
	return s.db.WithContext(ctx).Create(app).Error
}

func (s *Store) GetApplicationByClientID(
	ctx context.Context,
	clientID string,
) (*models.Application, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&app).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

// ListApplications returns one page of applications, newest first. The search
// keyword matches name or client_id.
func (s *Store) ListApplications(
	ctx context.Context,
	params PaginationParams,
) ([]models.Application, PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Application{})
	if params.Search != "" {
		like := "%" + params.Search + "%"
		query = query.Where("name LIKE ? OR client_id LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	var apps []models.Application
	if err := query.Order("created_at DESC").
		Offset(params.Offset()).
		Limit(params.PageSize).
		Find(&apps).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return apps, CalculatePagination(total, params.Page, params.PageSize), nil
}

// ListApplicationsWithPlaintextSecret returns every application whose stored
// secret is not a bcrypt hash.
func (s *Store) ListApplicationsWithPlaintextSecret(
	ctx context.Context,
) ([]models.Application, error) {
	var apps []models.Application
	err := s.db.WithContext(ctx).
		Where("client_secret_hash NOT LIKE ? OR LENGTH(client_secret_hash) <> ?",
			"$2%", models.BcryptHashLength).
		Find(&apps).Error
	return apps, err
}

// CountActiveApplications returns the number of applications with active=true
func (s *Store) CountActiveApplications(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("active = ?", true).
		Count(&n).Error
	return n, err
}

// Token operations

func (s *Store) CreateToken(ctx context.Context, token *models.Token) error {
	return s.db.WithContext(ctx).Omit("Application").Create(token).Error
}

// GetUsableTokenByAccessHash looks up a token by access-token digest and
// returns it only if it can still authenticate a request at now and its
// application is active. The application is preloaded.
func (s *Store) GetUsableTokenByAccessHash(
	ctx context.Context,
	accessHash string,
	now time.Time,
) (*models.Token, error) {
	var tok models.Token
	db := s.db.WithContext(ctx)
	err := db.
		InnerJoins("Application", db.Where(&models.Application{Active: true})).
		Where("tokens.access_token_hash = ?", accessHash).
		Where("tokens.revoked = ? AND tokens.active = ?", false, true).
		Where("tokens.expires_at > ?", now).
		First(&tok).Error
	if err != nil {
		return nil, notFound(err)
	}
	if tok.Application == nil || !tok.Application.Active {
		return nil, ErrRecordNotFound
	}
	return &tok, nil
}

// FindTokenByHash finds the token whose access or refresh digest equals
// hash, using db, which may be a transaction.
func FindTokenByHash(db *gorm.DB, hash string) (*models.Token, error) {
	var tok models.Token
	err := db.Where("access_token_hash = ? OR refresh_token_hash = ?", hash, hash).
		First(&tok).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tok, nil
}

// UpdateTokenIf applies updates to token id only while the row still matches
// every column in expect. When nothing matched, ErrTokenConflict is returned.
func UpdateTokenIf(db *gorm.DB, id string, expect, updates map[string]any) error {
	result := db.Model(&models.Token{}).
		Where("id = ?", id).
		Where(expect).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTokenConflict
	}
	return nil
}

// TouchTokenLastUsed records the time a token last authenticated a request
func (s *Store) TouchTokenLastUsed(ctx context.Context, tokenID string, now time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Token{}).
		Where("id = ?", tokenID).
		UpdateColumn("last_used", now).Error
}

// RevokeTokensByApplication revokes every live token of an application using
// db, which may be a transaction. It returns the number of rows revoked.
func RevokeTokensByApplication(db *gorm.DB, applicationID int64, now time.Time) (int64, error) {
	result := db.Model(&models.Token{}).
		Where("application_id = ? AND revoked = ?", applicationID, false).
		Updates(map[string]any{
			"revoked":    true,
			"active":     false,
			"revoked_at": now,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// SweepExpiredTokens flips active=false on every token past expires_at.
// Running it twice, or alongside live traffic, is harmless.
func (s *Store) SweepExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Token{}).
		Where("active = ? AND expires_at < ?", true, now).
		Updates(map[string]any{
			"active":     false,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// CountActiveTokens returns the number of tokens that are active, unrevoked and unexpired
func (s *Store) CountActiveTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Token{}).
		Where("active = ? AND revoked = ? AND expires_at > ?", true, false, now).
		Count(&n).Error
	return n, err
}
