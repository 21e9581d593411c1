package store

import (
	"context"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/models"
)

// AccessLogFilters contains filter criteria for querying access logs
type AccessLogFilters struct {
	Path          string    `json:"path,omitempty"` // prefix match
	Method        string    `json:"method,omitempty"`
	Status        int       `json:"status,omitempty"`
	ApplicationID *int64    `json:"application_id,omitempty"`
	IP            string    `json:"ip,omitempty"`
	StartTime     time.Time `json:"start_time,omitzero"`
	EndTime       time.Time `json:"end_time,omitzero"`
}

// CreateAccessLogBatch inserts a batch of access log entries
func (s *Store) CreateAccessLogBatch(ctx context.Context, logs []*models.AccessLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// CreateAccessLog inserts a single access log entry
func (s *Store) CreateAccessLog(ctx context.Context, entry *models.AccessLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListAccessLogs returns one page of access logs matching filters, newest first
func (s *Store) ListAccessLogs(
	ctx context.Context,
	params PaginationParams,
	filters AccessLogFilters,
) ([]models.AccessLog, PaginationResult, error) {
	query := s.db.WithContext(ctx).Model(&models.AccessLog{})

	if filters.Path != "" {
		query = query.Where("path LIKE ?", filters.Path+"%")
	}
	if filters.Method != "" {
		query = query.Where("method = ?", filters.Method)
	}
	if filters.Status != 0 {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.ApplicationID != nil {
		query = query.Where("application_id = ?", *filters.ApplicationID)
	}
	if filters.IP != "" {
		query = query.Where("ip = ?", filters.IP)
	}
	if !filters.StartTime.IsZero() {
		query = query.Where("created_at >= ?", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query = query.Where("created_at <= ?", filters.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	var logs []models.AccessLog
	if err := query.Order("created_at DESC").
		Offset(params.Offset()).
		Limit(params.PageSize).
		Find(&logs).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	return logs, CalculatePagination(total, params.Page, params.PageSize), nil
}

// DeleteOldAccessLogs removes entries created before the cutoff
func (s *Store) DeleteOldAccessLogs(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.AccessLog{})
	return result.RowsAffected, result.Error
}
