package metrics

import "time"

// Recorder is the metrics sink used by services and middleware.
// Metrics records to Prometheus; NoopMetrics discards everything.
type Recorder interface {
	// Token Operations
	RecordTokenIssued(grantType string, generationTime time.Duration)
	RecordTokensRevoked(reason string, count int64)
	RecordTokenRefresh(success bool)
	RecordTokenValidation(result string, duration time.Duration)
	RecordTokensSwept(count int64)

	// Authentication
	RecordClientAuth(success bool)
	RecordLogin(success bool)
	RecordLogout()

	// Session Management
	RecordSessionInvalidated(reason string)

	// Access log
	RecordAccessLogDropped()

	// Gauge Setters (for periodic updates)
	SetActiveTokensCount(count int)
	SetActiveApplicationsCount(count int)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}
