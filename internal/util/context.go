package util

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey int

const clientKey ctxKey = 0

// Client describes who sent the request, as far as the server can tell
type Client struct {
	IP        string
	UserAgent string
}

// IPMiddleware copies the client IP and User-Agent into the request context
// so services can attribute work without access to the gin.Context
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP honours X-Forwarded-For only from trusted proxies
		client := Client{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		c.Request = c.Request.WithContext(WithClient(c.Request.Context(), client))
		c.Next()
	}
}

// WithClient returns a copy of ctx carrying client. A zero Client is not stored.
func WithClient(ctx context.Context, client Client) context.Context {
	if client == (Client{}) {
		return ctx
	}
	return context.WithValue(ctx, clientKey, client)
}

// SetIPContext returns a copy of ctx carrying only the client IP
func SetIPContext(ctx context.Context, ip string) context.Context {
	return WithClient(ctx, Client{IP: ip})
}

// ClientFromContext returns the client stored by IPMiddleware
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return Client{IP: ginCtx.ClientIP(), UserAgent: ginCtx.Request.UserAgent()}, true
	}
	client, ok := ctx.Value(clientKey).(Client)
	return client, ok
}

// GetIPFromContext returns the client IP, or "" when none is known
func GetIPFromContext(ctx context.Context) string {
	client, _ := ClientFromContext(ctx)
	return client.IP
}
