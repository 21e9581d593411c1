package metrics

import "time"

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NoopMetrics is a no-operation implementation of Recorder
// Used when metrics are disabled to avoid overhead
type NoopMetrics struct{}

// NewNoopMetrics creates a new no-op metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenIssued(grantType string, generationTime time.Duration) {}
func (n *NoopMetrics) RecordTokensRevoked(reason string, count int64)                   {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                                  {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration)      {}
func (n *NoopMetrics) RecordTokensSwept(count int64)                                    {}

func (n *NoopMetrics) RecordClientAuth(success bool) {}
func (n *NoopMetrics) RecordLogin(success bool)      {}
func (n *NoopMetrics) RecordLogout()                 {}

func (n *NoopMetrics) RecordSessionInvalidated(reason string) {}
func (n *NoopMetrics) RecordAccessLogDropped()                {}

func (n *NoopMetrics) SetActiveTokensCount(count int)       {}
func (n *NoopMetrics) SetActiveApplicationsCount(count int) {}

func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
