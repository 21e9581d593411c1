package models

import (
	"strings"
	"time"
)

// ClientIDPrefix marks every generated client_id so code scanners can spot them.
const ClientIDPrefix = "app_"

// bcryptMarker prefixes every bcrypt hash ($2a$, $2b$, $2y$).
const bcryptMarker = "$2"

// BcryptHashLength is the fixed length of an encoded bcrypt hash.
const BcryptHashLength = 60

type Application struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	ClientID         string    `gorm:"uniqueIndex;not null" json:"client_id"`
	ClientSecretHash string    `gorm:"not null" json:"-"`
	Scopes           string    `gorm:"not null;default:''" json:"scopes"` // space-separated; empty means unrestricted
	Active           bool      `gorm:"not null;default:true" json:"active"`
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasHashedSecret reports whether the stored secret looks like a bcrypt hash.
// A secret without the marker is plaintext and must be force-rotated.
func (a *Application) HasHashedSecret() bool {
	return strings.HasPrefix(a.ClientSecretHash, bcryptMarker) &&
		len(a.ClientSecretHash) == BcryptHashLength
}

// ScopeList returns the allowed scopes as a slice.
func (a *Application) ScopeList() []string {
	return strings.Fields(a.Scopes)
}

// TableName overrides the table name used by Application to `applications`
func (Application) TableName() string {
	return "applications"
}
