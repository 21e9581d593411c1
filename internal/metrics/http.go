package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultFailure = "failure"
)

// HTTPMetricsMiddleware counts and times every request by route pattern.
// Requests to the scrape endpoint itself are not recorded.
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	prom, ok := m.(*Metrics)
	if !ok {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		prom.HTTPRequestsInFlight.Inc()
		defer prom.HTTPRequestsInFlight.Dec()

		started := time.Now()
		c.Next()
		elapsed := time.Since(started)

		route := routeLabel(c.FullPath())
		prom.HTTPRequestsTotal.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
		prom.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route).
			Observe(elapsed.Seconds())
	}
}

// routeLabel keeps label cardinality bounded: unmatched paths share one label.
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}

// RecordTokenIssued records a token pair issued by a grant
func (m *Metrics) RecordTokenIssued(grantType string, generationTime time.Duration) {
	m.TokensIssuedTotal.WithLabelValues(grantType).Inc()
	m.TokenGenerationDuration.WithLabelValues(grantType).Observe(generationTime.Seconds())
}

// RecordTokensRevoked records count tokens revoked for reason
func (m *Metrics) RecordTokensRevoked(reason string, count int64) {
	if count > 0 {
		m.TokensRevokedTotal.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordTokenRefresh records a refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordTokenValidation records a bearer token validation
func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

// RecordTokensSwept records tokens deactivated by the expiry sweep
func (m *Metrics) RecordTokensSwept(count int64) {
	if count > 0 {
		m.TokensSweptTotal.Add(float64(count))
	}
}

// RecordClientAuth records a client credential verification
func (m *Metrics) RecordClientAuth(success bool) {
	m.ClientAuthTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordLogin records an interactive login attempt
func (m *Metrics) RecordLogin(success bool) {
	m.AuthLoginTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordLogout records an interactive logout
func (m *Metrics) RecordLogout() {
	m.AuthLogoutTotal.Inc()
}

// RecordSessionInvalidated records a session destroyed by the fingerprint guard
func (m *Metrics) RecordSessionInvalidated(reason string) {
	m.SessionsInvalidatedTotal.WithLabelValues(reason).Inc()
}

// RecordAccessLogDropped records an access log entry dropped on a full buffer
func (m *Metrics) RecordAccessLogDropped() {
	m.AccessLogDroppedTotal.Inc()
}

// SetActiveTokensCount sets the current number of usable access tokens
func (m *Metrics) SetActiveTokensCount(count int) {
	m.TokensActive.Set(float64(count))
}

// SetActiveApplicationsCount sets the current number of active applications
func (m *Metrics) SetActiveApplicationsCount(count int) {
	m.ApplicationsActive.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
