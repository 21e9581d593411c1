package middleware

import (
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	csrfTokenKey = "csrf_token"
	CSRFHeader   = "X-CSRF-Token"
)

// CSRFMiddleware provides CSRF protection for state-changing operations on
// session-authenticated routes. The token is handed out in the X-CSRF-Token
// response header and must be echoed back in the same request header.
func CSRFMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		// Generate token if not exists
		token, _ := session.Get(csrfTokenKey).(string)
		if token == "" {
			var err error
			token, err = util.CryptoRandomURLString(32)
			if err != nil {
				apierr.AbortWithError(c, err)
				return
			}
			session.Set(csrfTokenKey, token)
			if err := session.Save(); err != nil {
				apierr.AbortWithError(c, err)
				return
			}
		}

		c.Header(CSRFHeader, token)
		c.Set(csrfTokenKey, token)

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			if !util.SecureCompare(c.GetHeader(CSRFHeader), token) {
				apierr.Abort(c, http.StatusForbidden, apierr.CodeAccessDenied, "Invalid CSRF token")
				return
			}
		}

		c.Next()
	}
}
