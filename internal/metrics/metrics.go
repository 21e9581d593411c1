package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authcore"

var _ Recorder = (*Metrics)(nil)

// Metrics is the Prometheus-backed Recorder. Every collector is registered
// on the default registry under the authcore namespace.
type Metrics struct {
	// oauth subsystem
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	TokensSweptTotal        prometheus.Counter
	TokenValidationTotal    *prometheus.CounterVec
	TokensActive            prometheus.Gauge
	ApplicationsActive      prometheus.Gauge
	TokenGenerationDuration *prometheus.HistogramVec
	TokenValidationDuration prometheus.Histogram
	ClientAuthTotal         *prometheus.CounterVec

	// interactive admin login
	AuthLoginTotal  *prometheus.CounterVec
	AuthLogoutTotal prometheus.Counter

	SessionsInvalidatedTotal *prometheus.CounterVec
	AccessLogDroppedTotal    prometheus.Counter

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	registered     *Metrics
	registeredOnce sync.Once
)

// Init returns the Prometheus recorder when enabled and a NoopMetrics
// otherwise. Collectors are registered at most once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	registeredOnce.Do(func() {
		registered = register()
	})
	return registered
}

func counter(subsystem, name, help string) prometheus.Counter {
	return promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func gauge(subsystem, name, help string) prometheus.Gauge {
	return promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func histogramOpts(subsystem, name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}
}

var (
	generationBuckets = []float64{.005, .01, .05, .1, .25, .5, 1}
	validationBuckets = []float64{.0005, .001, .005, .01, .05, .1}
)

func register() *Metrics {
	return &Metrics{
		// grant_type: client_credentials, refresh_token
		TokensIssuedTotal: counterVec("oauth", "tokens_issued_total",
			"Token pairs issued", "grant_type"),
		// reason: client_request, secret_rotation, deactivation, token_rotation
		TokensRevokedTotal: counterVec("oauth", "tokens_revoked_total",
			"Tokens revoked", "reason"),
		TokensRefreshedTotal: counterVec("oauth", "tokens_refreshed_total",
			"Refresh grant attempts", "result"),
		TokensSweptTotal: counter("oauth", "tokens_swept_total",
			"Expired tokens deactivated by the sweep job"),
		// result: valid, invalid, insufficient_scope
		TokenValidationTotal: counterVec("oauth", "token_validation_total",
			"Bearer token validations", "result"),
		TokensActive: gauge("oauth", "tokens_active",
			"Usable access tokens"),
		ApplicationsActive: gauge("oauth", "applications_active",
			"Active applications"),
		TokenGenerationDuration: promauto.NewHistogramVec(histogramOpts("oauth",
			"token_generation_duration_seconds",
			"Token generation duration, including client authentication",
			generationBuckets), []string{"grant_type"}),
		TokenValidationDuration: promauto.NewHistogram(histogramOpts("oauth",
			"token_validation_duration_seconds",
			"Bearer token validation duration",
			validationBuckets)),
		ClientAuthTotal: counterVec("oauth", "client_auth_total",
			"Client credential verifications", "result"),

		AuthLoginTotal: counterVec("admin", "login_total",
			"Interactive login attempts", "result"),
		AuthLogoutTotal: counter("admin", "logout_total",
			"Interactive logouts"),

		// reason: uid, ip, user_agent, accept_language, signature, expired, mint_failed
		SessionsInvalidatedTotal: counterVec("session", "invalidated_total",
			"Sessions destroyed by the fingerprint guard", "reason"),
		AccessLogDroppedTotal: counter("access_log", "dropped_total",
			"Access log entries dropped because the buffer was full"),

		HTTPRequestsTotal: counterVec("http", "requests_total",
			"HTTP requests served", "method", "path", "status"),
		HTTPRequestDuration: promauto.NewHistogramVec(histogramOpts("http",
			"request_duration_seconds",
			"HTTP request duration in seconds",
			prometheus.DefBuckets), []string{"method", "path"}),
		HTTPRequestsInFlight: gauge("http", "requests_in_flight",
			"HTTP requests currently being served"),

		// operation: count_active_tokens, count_active_applications
		DatabaseQueryErrorsTotal: counterVec("database", "query_errors_total",
			"Database errors during gauge collection", "operation"),
	}
}
