package models

import (
	"slices"
	"strings"
	"time"
)

const TokenTypeBearer = "Bearer"

// Token is one ledger row. Only SHA-256 digests of the token values are stored.
type Token struct {
	ID               string       `gorm:"primaryKey"`
	ApplicationID    int64        `gorm:"not null;index"`
	Application      *Application `gorm:"foreignKey:ApplicationID"`
	AccessTokenHash  string       `gorm:"uniqueIndex;not null"`
	RefreshTokenHash string       `gorm:"uniqueIndex;not null"`
	RawAccessToken   string       `gorm:"-"` // In-memory only; never persisted to DB
	RawRefreshToken  string       `gorm:"-"` // In-memory only; never persisted to DB
	TokenType        string       `gorm:"not null;default:'Bearer'"`
	ExpiresAt        time.Time    `gorm:"index"`
	RefreshExpiresAt time.Time
	Scope            string `gorm:"not null;default:''"` // space-separated, case-sensitive
	Active           bool   `gorm:"not null;default:true;index"`
	Revoked          bool   `gorm:"not null;default:false;index"`
	RevokedAt        *time.Time
	LastUsed         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt is the pure form of IsExpired.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsRefreshExpiredAt reports whether the refresh half of the pair has lapsed.
func (t *Token) IsRefreshExpiredAt(now time.Time) bool {
	return now.After(t.RefreshExpiresAt)
}

// HasScopes reports whether every required scope is in the token's scope set.
func (t *Token) HasScopes(required ...string) bool {
	granted := strings.Fields(t.Scope)
	for _, s := range required {
		if !slices.Contains(granted, s) {
			return false
		}
	}
	return true
}
