package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/services"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-gonic/gin"
)

// AccessLogHandler handles access log queries
type AccessLogHandler struct {
	accessLogService *services.AccessLogService
}

// NewAccessLogHandler creates a new access log handler
func NewAccessLogHandler(s *services.AccessLogService) *AccessLogHandler {
	return &AccessLogHandler{accessLogService: s}
}

// ListAccessLogs handles GET /admin/access-logs
func (h *AccessLogHandler) ListAccessLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := store.PaginationParams{
		Page:     page,
		PageSize: pageSize,
	}

	filters := store.AccessLogFilters{
		Path:   c.Query("path"),
		Method: c.Query("method"),
		IP:     c.Query("ip"),
	}
	if status, err := strconv.Atoi(c.Query("status")); err == nil {
		filters.Status = status
	}
	if appID, err := strconv.ParseInt(c.Query("application_id"), 10, 64); err == nil {
		filters.ApplicationID = &appID
	}

	// Parse time range
	if startTimeStr := c.Query("start_time"); startTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filters.StartTime = t
		}
	}
	if endTimeStr := c.Query("end_time"); endTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filters.EndTime = t
		}
	}

	logs, pagination, err := h.accessLogService.List(c.Request.Context(), params, filters)
	if err != nil {
		apierr.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       logs,
		"pagination": pagination,
	})
}
