package middleware

import (
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/gin-gonic/gin"
)

const metricsChallenge = `Bearer realm="Metrics"`

// MetricsAuthMiddleware guards the Prometheus endpoint with a static bearer
// token. An empty token leaves the endpoint public.
func MetricsAuthMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		provided, ok := bearerToken(c.GetHeader("Authorization"))
		switch {
		case !ok:
			c.Header("WWW-Authenticate", metricsChallenge)
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeInvalidToken, "Bearer token required")
		case !util.SecureCompare(provided, token):
			c.Header("WWW-Authenticate", metricsChallenge)
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeInvalidToken, "Invalid token")
		default:
			c.Next()
		}
	}
}
