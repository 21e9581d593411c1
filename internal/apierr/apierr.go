// Package apierr renders the JSON error envelope shared by every HTTP handler
// and maps service errors onto it.
package apierr

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/luanalves/realestate-backend-sub002/internal/auth"
	"github.com/luanalves/realestate-backend-sub002/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Error codes
const (
	CodeInvalidRequest    = "invalid_request"
	CodeInvalidClient     = "invalid_client"
	CodeInvalidGrant      = "invalid_grant"
	CodeInvalidToken      = "invalid_token"
	CodeInsufficientScope = "insufficient_scope"
	CodeNotFound          = "not_found"
	CodeAccessDenied      = "access_denied"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

const debugKey = "apierr_debug"

// Response is the error envelope.
type Response struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Stack   string `json:"stack,omitempty"`
}

// DebugMiddleware marks every request with the debug flag so internal
// errors carry a stack trace.
func DebugMiddleware(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(debugKey, debug)
		c.Next()
	}
}

// Abort writes the envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	resp := Response{Error: code, Message: message, Status: status}
	if status >= http.StatusInternalServerError && c.GetBool(debugKey) {
		resp.Stack = string(debug.Stack())
	}
	c.AbortWithStatusJSON(status, resp)
}

// AbortWithError maps err onto the envelope. Errors that are not a known
// sentinel are logged and reported as internal_error without detail.
func AbortWithError(c *gin.Context, err error) {
	status, code, message := FromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		_ = c.Error(err)
	}
	Abort(c, status, code, message)
}

// FromError returns the status, code and client-facing message for err.
func FromError(err error) (int, string, string) {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		return http.StatusUnauthorized, CodeInvalidClient, "Client authentication failed"
	case errors.Is(err, services.ErrInvalidGrant):
		return http.StatusBadRequest, CodeInvalidGrant, "Refresh token is invalid, expired or revoked"
	case errors.Is(err, services.ErrInvalidScope):
		return http.StatusBadRequest, CodeInvalidRequest, "Requested scope exceeds the application's scopes"
	case errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, "Access token is invalid, expired or revoked"
	case errors.Is(err, services.ErrApplicationNotFound):
		return http.StatusNotFound, CodeNotFound, "Application not found"
	case errors.Is(err, services.ErrApplicationName):
		return http.StatusBadRequest, CodeInvalidRequest, "Application name is required"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeAccessDenied, "Invalid username or password"
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal server error"
	}
}
