package middleware

import (
	"context"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"

	"github.com/gin-gonic/gin"
)

// AccessLogger receives one entry per handled request
type AccessLogger interface {
	Log(ctx context.Context, entry services.AccessLogEntry)
}

// AccessLog appends an entry for every request once the handler chain has
// run, whatever its outcome. The application and token are taken from the
// context when a handler or RequireBearer resolved them.
func AccessLog(logger AccessLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := services.AccessLogEntry{
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
			Status:    c.Writer.Status(),
			Latency:   time.Since(start),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if v, ok := c.Get(ContextApplication); ok {
			if app, ok := v.(*models.Application); ok && app != nil {
				entry.ApplicationID = &app.ID
			}
		}
		if v, ok := c.Get(ContextToken); ok {
			if tok, ok := v.(*models.Token); ok && tok != nil {
				entry.TokenID = &tok.ID
			}
		}

		logger.Log(c.Request.Context(), entry)
	}
}
