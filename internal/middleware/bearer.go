package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TokenValidator resolves a raw bearer token against the token ledger
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*models.Token, error)
	TouchLastUsed(ctx context.Context, tok *models.Token) error
}

// RequireBearer admits a request only with a live access token carrying every
// scope in scopes. The resolved application and token are set on the context.
func RequireBearer(tokens TokenValidator, scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer`)
			apierr.Abort(c, http.StatusUnauthorized, apierr.CodeInvalidToken, "Bearer token required")
			return
		}

		tok, err := tokens.ValidateAccessToken(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, services.ErrInvalidToken) {
				c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			}
			apierr.AbortWithError(c, err)
			return
		}

		if !tok.HasScopes(scopes...) {
			c.Header(
				"WWW-Authenticate",
				`Bearer error="insufficient_scope", scope="`+strings.Join(scopes, " ")+`"`,
			)
			apierr.Abort(c, http.StatusForbidden, apierr.CodeInsufficientScope,
				"Token does not grant the required scope")
			return
		}

		c.Set(ContextApplication, tok.Application)
		c.Set(ContextToken, tok)

		if err := tokens.TouchLastUsed(c.Request.Context(), tok); err != nil {
			log.Warn().Err(err).Str("token_id", tok.ID).Msg("failed to update token last_used")
		}

		c.Next()
	}
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive; anything but exactly two parts fails.
func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
