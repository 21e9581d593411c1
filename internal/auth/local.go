package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// LocalAuthProvider checks interactive logins against the users table
type LocalAuthProvider struct {
	store *store.Store

	// Compared against for unknown users so both paths cost one bcrypt run
	dummyHash func() []byte
}

func NewLocalAuthProvider(s *store.Store) *LocalAuthProvider {
	return &LocalAuthProvider{
		store: s,
		dummyHash: sync.OnceValue(func() []byte {
			h, _ := bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.DefaultCost)
			return h
		}),
	}
}

// Authenticate returns the active user whose bcrypt password hash matches.
// Store failures are returned wrapped; every other rejection is
// ErrInvalidCredentials.
func (p *LocalAuthProvider) Authenticate(
	ctx context.Context,
	username, password string,
) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := p.store.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(p.dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil ||
		!user.Active {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Name identifies the provider in log lines
func (p *LocalAuthProvider) Name() string {
	return "local"
}
