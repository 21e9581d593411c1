package services

import "errors"

var (
	// ErrEmptySecret is a configuration error: a secret must never be hashed from empty input.
	ErrEmptySecret = errors.New("client secret must not be empty")

	ErrInvalidClient       = errors.New("invalid client credentials")
	ErrInvalidGrant        = errors.New("invalid, expired or revoked refresh token")
	ErrInvalidScope        = errors.New("requested scope exceeds the application's scopes")
	ErrInvalidToken        = errors.New("invalid, expired or revoked access token")
	ErrApplicationNotFound = errors.New("application not found")
	ErrApplicationName     = errors.New("application name is required")
)
