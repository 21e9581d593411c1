package handlers

import (
	"net/http"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"
	"github.com/luanalves/realestate-backend-sub002/internal/models"
	"github.com/luanalves/realestate-backend-sub002/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type TokenHandler struct {
	tokenService *services.TokenService
}

func NewTokenHandler(ts *services.TokenService) *TokenHandler {
	return &TokenHandler{tokenService: ts}
}

// tokenRequest is bound from a JSON or form body
type tokenRequest struct {
	GrantType    string `json:"grant_type"    form:"grant_type"`
	ClientID     string `json:"client_id"     form:"client_id"`
	ClientSecret string `json:"client_secret" form:"client_secret"`
	Scope        string `json:"scope"         form:"scope"`
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

type revokeRequest struct {
	Token         string `json:"token"           form:"token"`
	TokenTypeHint string `json:"token_type_hint" form:"token_type_hint"`
	ClientID      string `json:"client_id"       form:"client_id"`
	ClientSecret  string `json:"client_secret"   form:"client_secret"`
}

// TokenResponse is the body of a successful grant
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Token handles POST /auth/token for the client_credentials and
// refresh_token grants (RFC 6749 §4.4, §6).
func (h *TokenHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "Malformed request body")
		return
	}

	switch req.GrantType {
	case "":
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "grant_type is required")
	case services.GrantTypeClientCredentials:
		h.handleClientCredentialsGrant(c, req)
	case services.GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c, req)
	default:
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest,
			"Supported grant types: client_credentials, refresh_token")
	}
}

// Refresh handles POST /auth/refresh. grant_type may be omitted.
func (h *TokenHandler) Refresh(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "Malformed request body")
		return
	}

	if req.GrantType != "" && req.GrantType != services.GrantTypeRefreshToken {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest,
			"grant_type must be refresh_token")
		return
	}
	h.handleRefreshTokenGrant(c, req)
}

// Revoke handles POST /auth/revoke (RFC 7009). It answers 200 whether or not
// anything was revoked.
func (h *TokenHandler) Revoke(c *gin.Context) {
	var req revokeRequest
	_ = c.ShouldBind(&req)

	clientID, clientSecret := clientCredentials(c, req.ClientID, req.ClientSecret)

	app, revoked, err := h.tokenService.Revoke(c.Request.Context(), req.Token, clientID, clientSecret)
	if app != nil {
		c.Set(middleware.ContextApplication, app)
	}
	if err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("token revocation failed")
	}
	if revoked {
		log.Debug().Str("client_id", clientID).Msg("revocation request applied")
	}

	c.Status(http.StatusOK)
}

// handleClientCredentialsGrant issues a fresh access/refresh pair.
// Client authentication is accepted via HTTP Basic Auth (RFC 6749 §2.3.1)
// or as client_id / client_secret body parameters.
func (h *TokenHandler) handleClientCredentialsGrant(c *gin.Context, req tokenRequest) {
	clientID, clientSecret := clientCredentials(c, req.ClientID, req.ClientSecret)

	tok, err := h.tokenService.IssueClientCredentials(
		c.Request.Context(),
		clientID,
		clientSecret,
		req.Scope,
	)
	if err != nil {
		h.abortGrant(c, err)
		return
	}

	h.respondToken(c, tok)
}

func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context, req tokenRequest) {
	if req.RefreshToken == "" {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "refresh_token is required")
		return
	}

	clientID, _ := clientCredentials(c, req.ClientID, req.ClientSecret)

	tok, err := h.tokenService.Refresh(c.Request.Context(), req.RefreshToken, clientID)
	if err != nil {
		h.abortGrant(c, err)
		return
	}

	h.respondToken(c, tok)
}

func (h *TokenHandler) abortGrant(c *gin.Context, err error) {
	status, _, _ := apierr.FromError(err)
	if status == http.StatusUnauthorized {
		// RFC 6749 §5.2: 401 for invalid_client carries WWW-Authenticate
		c.Header("WWW-Authenticate", `Basic realm="authcore"`)
	}
	apierr.AbortWithError(c, err)
}

func (h *TokenHandler) respondToken(c *gin.Context, tok *models.Token) {
	// Exposed for the access log
	c.Set(middleware.ContextApplication, tok.Application)
	c.Set(middleware.ContextToken, tok)

	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:  tok.RawAccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    int(h.tokenService.AccessTokenTTL().Seconds()),
		RefreshToken: tok.RawRefreshToken,
		Scope:        tok.Scope,
	})
}

// TokenInfoResponse describes the bearer token presented to /api/v1/tokeninfo
type TokenInfoResponse struct {
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

// TokenInfo reports the application and scope behind the presented bearer
// token. It must run behind middleware.RequireBearer.
func (h *TokenHandler) TokenInfo(c *gin.Context) {
	tok, ok := c.MustGet(middleware.ContextToken).(*models.Token)
	if !ok || tok.Application == nil {
		apierr.Abort(c, http.StatusUnauthorized, apierr.CodeInvalidToken, "Bearer token required")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, TokenInfoResponse{
		ClientID:  tok.Application.ClientID,
		Scope:     tok.Scope,
		ExpiresAt: tok.ExpiresAt,
		ExpiresIn: int(time.Until(tok.ExpiresAt).Seconds()),
	})
}

// clientCredentials prefers HTTP Basic Auth and falls back to body parameters
func clientCredentials(c *gin.Context, bodyID, bodySecret string) (string, string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return bodyID, bodySecret
}
