package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/luanalves/realestate-backend-sub002/internal/apierr"
	"github.com/luanalves/realestate-backend-sub002/internal/auth"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"
	"github.com/luanalves/realestate-backend-sub002/internal/middleware"
	"github.com/luanalves/realestate-backend-sub002/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SessionHandler serves the interactive session bootstrap used by the admin UI
type SessionHandler struct {
	provider *auth.LocalAuthProvider
	store    *store.Store
	metrics  metrics.Recorder
}

func NewSessionHandler(
	provider *auth.LocalAuthProvider,
	s *store.Store,
	m metrics.Recorder,
) *SessionHandler {
	return &SessionHandler{provider: provider, store: s, metrics: m}
}

type loginRequest struct {
	Login    string `json:"login"    form:"login"`
	Password string `json:"password" form:"password"`
}

// SessionInfo is the session bootstrap payload. UID is the user id, or false
// for an anonymous session.
type SessionInfo struct {
	UID      any    `json:"uid"`
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
}

var anonymousSession = SessionInfo{UID: false}

// Login handles POST /session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		apierr.Abort(c, http.StatusBadRequest, apierr.CodeInvalidRequest, "Malformed request body")
		return
	}

	user, err := h.provider.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		h.metrics.RecordLogin(false)
		log.Warn().
			Str("event", "login_failed").
			Str("login", req.Login).
			Str("ip", c.ClientIP()).
			Msg("interactive login failed")
		apierr.AbortWithError(c, err)
		return
	}

	session := sessions.Default(c)
	// Start from a clean session so no earlier fingerprint survives the login
	session.Clear()
	session.Set(middleware.SessionUserID, user.ID)
	if err := session.Save(); err != nil {
		apierr.AbortWithError(c, fmt.Errorf("failed to save session: %w", err))
		return
	}

	h.metrics.RecordLogin(true)
	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Str("provider", h.provider.Name()).
		Msg("user logged in")

	c.JSON(http.StatusOK, SessionInfo{
		UID:      user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin(),
	})
}

// Info handles GET /session/info. The fingerprint middleware has already
// minted or verified the session fingerprint by the time this runs.
func (h *SessionHandler) Info(c *gin.Context) {
	userID, ok := sessions.Default(c).Get(middleware.SessionUserID).(string)
	if !ok || userID == "" {
		c.JSON(http.StatusOK, anonymousSession)
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrRecordNotFound) {
			apierr.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, anonymousSession)
		return
	}
	if !user.Active {
		c.JSON(http.StatusOK, anonymousSession)
		return
	}

	c.JSON(http.StatusOK, SessionInfo{
		UID:      user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin(),
	})
}

// Logout handles POST /session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		apierr.AbortWithError(c, fmt.Errorf("failed to clear session: %w", err))
		return
	}

	h.metrics.RecordLogout()
	c.JSON(http.StatusOK, anonymousSession)
}
