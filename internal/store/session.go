package store

import (
	"context"
	"time"
)

// SessionTable is where the database session store keeps session rows.
const SessionTable = "sessions"

// DeleteExpiredSessions purges database-backed sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Exec("DELETE FROM "+SessionTable+" WHERE expires_at < ?", now)
	return result.RowsAffected, result.Error
}
