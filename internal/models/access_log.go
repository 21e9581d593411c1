package models

import (
	"time"
)

// AccessLog is one immutable entry written for every grant-endpoint call
// and every bearer-protected request, whatever its outcome.
type AccessLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	// Request metadata
	Path      string `gorm:"type:varchar(500);index;not null" json:"path"`
	Method    string `gorm:"type:varchar(10);not null"        json:"method"`
	Status    int    `gorm:"index;not null"                   json:"status"`
	LatencyMS int64  `gorm:"not null"                         json:"latency_ms"`
	IP        string `gorm:"type:varchar(45);index"           json:"ip"` // Support IPv6
	UserAgent string `gorm:"type:varchar(500)"                json:"user_agent,omitempty"`

	// Resolved credentials, if any
	ApplicationID *int64  `gorm:"index"                  json:"application_id,omitempty"`
	TokenID       *string `gorm:"type:varchar(36);index" json:"token_id,omitempty"`

	// Timestamps (no UpdatedAt - immutable logs)
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (AccessLog) TableName() string {
	return "access_logs"
}
