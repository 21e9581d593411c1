package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	SessionUserID = "user_id"
)

// Keys set on the gin context for downstream handlers
const (
	ContextUserID      = "user_id"
	ContextUser        = "user"
	ContextApplication = "application"
	ContextToken       = "token"
)

// UserLookup resolves a session user id to a user
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// RequireAuth is a middleware that requires the user to be logged in
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(SessionUserID)

		if userID == nil {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeAccessDenied, "Login required")
			return
		}

		c.Set(ContextUserID, fmt.Sprint(userID))
		c.Next()
	}
}

// RequireAdmin is a middleware that requires the user to have admin role
// This middleware should be used after RequireAuth
func RequireAdmin(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeAccessDenied, "Login required")
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil || !user.Active {
			apierr.Abort(c, http.StatusForbidden, apierr.CodeAccessDenied, "User not found")
			return
		}

		if !user.IsAdmin() {
			apierr.Abort(c, http.StatusForbidden, apierr.CodeAccessDenied, "Admin access required")
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}
