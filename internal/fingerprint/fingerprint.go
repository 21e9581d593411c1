// Package fingerprint binds an interactive session to a signed fingerprint of
// request attributes so that a replayed session cookie can be detected.
package fingerprint

import (
	"errors"
	"fmt"
	"time"

	"github.com/luanalves/realestate-backend-sub002/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Component names. The same names label mismatches in logs and metrics.
const (
	ComponentUID            = "uid"
	ComponentIP             = "ip"
	ComponentUserAgent      = "user_agent"
	ComponentAcceptLanguage = "accept_language"
	ComponentSignature      = "signature"
	ComponentExpired        = "expired"
)

// ErrNoSecret is returned by NewGuard when no signing secret is configured.
var ErrNoSecret = errors.New("fingerprint signing secret is required")

// Settings selects which request attributes are bound and how tokens are signed.
type Settings struct {
	Secret         []byte
	TTL            time.Duration
	Issuer         string
	IP             bool
	UserAgent      bool
	AcceptLanguage bool
}

// Components maps an enabled component name to the SHA-256 of its value.
type Components map[string]string

// Claims is the payload of a fingerprint token.
type Claims struct {
	UID        string     `json:"uid"`
	Components Components `json:"cmp"`
	jwt.RegisteredClaims
}

// MismatchError reports why a fingerprint token was rejected. Component is
// one of the Component* constants.
type MismatchError struct {
	Component string
	Err       error
}

func (e *MismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fingerprint mismatch on %s: %v", e.Component, e.Err)
	}
	return "fingerprint mismatch on " + e.Component
}

func (e *MismatchError) Unwrap() error { return e.Err }

// Guard mints and verifies fingerprint tokens. It has no HTTP or session
// dependencies; callers pass every input explicitly.
type Guard struct {
	settings Settings
	now      func() time.Time
}

func NewGuard(settings Settings) (*Guard, error) {
	if len(settings.Secret) == 0 {
		return nil, ErrNoSecret
	}
	if settings.TTL <= 0 {
		settings.TTL = 24 * time.Hour
	}
	return &Guard{settings: settings, now: time.Now}, nil
}

// Enabled returns the names of the components this guard binds, in a fixed order.
func (g *Guard) Enabled() []string {
	var names []string
	if g.settings.IP {
		names = append(names, ComponentIP)
	}
	if g.settings.UserAgent {
		names = append(names, ComponentUserAgent)
	}
	if g.settings.AcceptLanguage {
		names = append(names, ComponentAcceptLanguage)
	}
	return names
}

// Components hashes the enabled attributes of a request. Disabled
// attributes are left out entirely.
func (g *Guard) Components(ip, userAgent, acceptLanguage string) Components {
	cmp := make(Components, 3)
	if g.settings.IP {
		cmp[ComponentIP] = util.SHA256Hex(ip)
	}
	if g.settings.UserAgent {
		cmp[ComponentUserAgent] = util.SHA256Hex(userAgent)
	}
	if g.settings.AcceptLanguage {
		cmp[ComponentAcceptLanguage] = util.SHA256Hex(acceptLanguage)
	}
	return cmp
}

// Mint signs a new fingerprint token for uid.
func (g *Guard) Mint(uid string, cmp Components) (string, error) {
	now := g.now()
	claims := Claims{
		UID:        uid,
		Components: cmp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.settings.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.settings.TTL)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.settings.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign fingerprint: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature, issuer and expiry, then compares the
// bound uid and every enabled component with the live values. Any failure
// is a *MismatchError; a component enabled now but absent from the token
// counts as a mismatch.
func (g *Guard) Verify(token, uid string, cmp Components) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return g.settings.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.settings.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &MismatchError{Component: ComponentExpired, Err: err}
		}
		return &MismatchError{Component: ComponentSignature, Err: err}
	}
	if !parsed.Valid {
		return &MismatchError{Component: ComponentSignature}
	}

	if !util.SecureCompare(claims.UID, uid) {
		return &MismatchError{Component: ComponentUID}
	}

	for _, name := range g.Enabled() {
		bound, ok := claims.Components[name]
		if !ok || !util.SecureCompare(bound, cmp[name]) {
			return &MismatchError{Component: name}
		}
	}
	return nil
}
