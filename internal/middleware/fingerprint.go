package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luanalves/realestate-backend-sub002/internal/fingerprint"
	"github.com/luanalves/realestate-backend-sub002/internal/metrics"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SessionFingerprintToken is the session key holding the signed fingerprint
const SessionFingerprintToken = "fp_token"

// sessionMintFailed is the invalidation reason when no fingerprint could be bound.
const sessionMintFailed = "mint_failed"

// FingerprintGuard is the part of *fingerprint.Guard the middleware uses.
type FingerprintGuard interface {
	Components(ip, userAgent, acceptLanguage string) fingerprint.Components
	Mint(uid string, cmp fingerprint.Components) (string, error)
	Verify(token, uid string, cmp fingerprint.Components) error
}

// SessionFingerprint binds logged-in sessions to the client that created them.
// The first authenticated request mints a fingerprint; later requests must
// match it or the session is destroyed and the request continues anonymously.
// A session that cannot be bound is destroyed as well. It never writes an
// error response.
func SessionFingerprint(
	guard FingerprintGuard,
	exemptPrefixes []string,
	m metrics.Recorder,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isExemptPath(c.Request.URL.Path, exemptPrefixes) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		userID := session.Get(SessionUserID)
		if userID == nil {
			c.Next()
			return
		}

		uid := fmt.Sprint(userID)
		cmp := guard.Components(
			c.ClientIP(),
			c.Request.UserAgent(),
			c.GetHeader("Accept-Language"),
		)

		stored, _ := session.Get(SessionFingerprintToken).(string)
		if stored == "" {
			token, err := guard.Mint(uid, cmp)
			if err != nil {
				log.Error().Err(err).Str("uid", uid).Msg("failed to mint session fingerprint")
				destroySession(session, uid)
				m.RecordSessionInvalidated(sessionMintFailed)
				c.Next()
				return
			}
			session.Set(SessionFingerprintToken, token)
			if err := session.Save(); err != nil {
				log.Error().Err(err).Str("uid", uid).Msg("failed to save session fingerprint")
			}
			c.Next()
			return
		}

		if err := guard.Verify(stored, uid, cmp); err != nil {
			component := fingerprint.ComponentSignature
			var mismatch *fingerprint.MismatchError
			if errors.As(err, &mismatch) {
				component = mismatch.Component
			}

			sessionID := sessionIDPrefix(session.ID())
			destroySession(session, uid)

			m.RecordSessionInvalidated(component)
			log.Warn().
				Str("event", "session_hijack_suspected").
				Str("session_id", sessionID).
				Str("uid", uid).
				Str("component", component).
				Str("ip", c.ClientIP()).
				Msg("session fingerprint mismatch, session invalidated")
		}

		c.Next()
	}
}

// destroySession clears the session and expires it. Server-side stores drop
// the stored state on save, so every copy of the cookie stops working.
func destroySession(session sessions.Session, uid string) {
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		log.Error().Err(err).Str("uid", uid).Msg("failed to destroy session")
	}
}

func isExemptPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// sessionIDPrefix keeps enough of a session id to correlate log lines
// without logging the whole value.
func sessionIDPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
