package bootstrap

import (
	"context"
	"fmt"

	"github.com/luanalves/realestate-backend-sub002/internal/config"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/rs/zerolog/log"
)

// initializeDatabase creates and initializes the database connection
func initializeDatabase(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DBInitTimeout)
	defer cancel()

	sqlDB, err := db.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	log.Info().
		Str("driver", cfg.DatabaseDriver).
		Msg("database initialized")
	return db, nil
}

// rotatePlaintextSecrets replaces any client secret stored without a bcrypt
// hash before the server accepts traffic.
func rotatePlaintextSecrets(
	ctx context.Context,
	cfg *config.Config,
	credentials *services.CredentialService,
) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DBInitTimeout)
	defer cancel()

	rotated, err := credentials.RotatePlaintextSecrets(ctx)
	if err != nil {
		return fmt.Errorf("failed to rotate plaintext client secrets: %w", err)
	}
	if rotated > 0 {
		log.Warn().Int("rotated", rotated).Msg("rotated applications with plaintext secrets")
	}
	return nil
}
