package store

import "errors"

// ErrRecordNotFound is returned by lookups that match no row. Callers
// compare against it instead of gorm.ErrRecordNotFound.
var ErrRecordNotFound = errors.New("record not found")

// ErrTokenConflict means a conditional token update matched zero rows: a
// concurrent request already rotated or revoked the token.
var ErrTokenConflict = errors.New("token was modified concurrently")
