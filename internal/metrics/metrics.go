package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Authorization endpoint
	AuthorizeRequestsTotal *prometheus.CounterVec
	CodesIssuedTotal       *prometheus.CounterVec
	CodeExchangeTotal      *prometheus.CounterVec
	CodesActive            prometheus.Gauge

	// Token metrics
	TokensIssuedTotal       *prometheus.CounterVec
	TokensRevokedTotal      *prometheus.CounterVec
	TokensRefreshedTotal    *prometheus.CounterVec
	IntrospectionTotal      *prometheus.CounterVec
	TokensActive            *prometheus.GaugeVec
	TokenGenerationDuration *prometheus.HistogramVec
	IntrospectionDuration   prometheus.Histogram

	// Lifecycle sweep
	SweepRemovedTotal *prometheus.CounterVec
	SweepDuration     prometheus.Histogram

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database query metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		AuthorizeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorize_requests_total",
				Help: "Total number of authorization requests",
			},
			[]string{"result"}, // success, invalid_client, invalid_redirect, unauthenticated, error
		),
		CodesIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_codes_issued_total",
				Help: "Total number of authorization codes issued",
			},
			[]string{"result"}, // success, error
		),
		CodeExchangeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_code_exchange_total",
				Help: "Total number of authorization code exchanges",
			},
			[]string{"result"}, // success, expired, replayed, pkce_failed, invalid
		),
		CodesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "oauth_authorization_codes_active",
				Help: "Current number of unexpired, unused authorization codes",
			},
		),

		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{
				"token_type",
				"grant_type",
			}, // token_type: access, refresh, id; grant_type: authorization_code, refresh_token, client_credentials, implicit
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // user_request, cascade, rotation
		),
		TokensRefreshedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_refreshed_total",
				Help: "Total number of token refresh attempts",
			},
			[]string{"result"}, // success, error
		),
		IntrospectionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_introspection_total",
				Help: "Total number of token introspections",
			},
			[]string{"result"}, // active, inactive
		),
		TokensActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oauth_tokens_active",
				Help: "Current number of active tokens",
			},
			[]string{"token_type"}, // access, refresh
		),
		TokenGenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oauth_token_generation_duration_seconds",
				Help:    "Time taken to generate tokens",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"}, // local, http_api
		),
		IntrospectionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "oauth_introspection_duration_seconds",
				Help:    "Time taken to introspect tokens",
				Buckets: prometheus.DefBuckets,
			},
		),

		SweepRemovedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lifecycle_sweep_removed_total",
				Help: "Total number of expired records removed by the lifecycle sweep",
			},
			[]string{"collection"}, // authorization_codes, access_tokens, refresh_tokens, id_tokens
		),
		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lifecycle_sweep_duration_seconds",
				Help:    "Time taken to complete a lifecycle sweep",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"}, // count_access_tokens, count_refresh_tokens, count_codes
		),
	}

	return m
}

const (
	resultSuccess = "success"
	resultError   = "error"
)

// RecordAuthorizeRequest records the outcome of an authorization request
func (m *Metrics) RecordAuthorizeRequest(result string) {
	m.AuthorizeRequestsTotal.WithLabelValues(result).Inc()
}

// RecordAuthorizationCodeIssued records authorization code issuance
func (m *Metrics) RecordAuthorizationCodeIssued(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.CodesIssuedTotal.WithLabelValues(result).Inc()
}

// RecordCodeExchange records the outcome of an authorization code exchange
func (m *Metrics) RecordCodeExchange(result string) {
	m.CodeExchangeTotal.WithLabelValues(result).Inc()
}

// RecordTokenIssued records token issuance with generation time
func (m *Metrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
	provider string,
) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
	m.TokenGenerationDuration.WithLabelValues(provider).Observe(generationTime.Seconds())
}

// RecordTokenRevoked records token revocation
func (m *Metrics) RecordTokenRevoked(tokenType, reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh records a token refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokensRefreshedTotal.WithLabelValues(result).Inc()
}

// RecordIntrospection records a token introspection with its duration
func (m *Metrics) RecordIntrospection(result string, duration time.Duration) {
	m.IntrospectionTotal.WithLabelValues(result).Inc()
	m.IntrospectionDuration.Observe(duration.Seconds())
}

// RecordSweep records the outcome of a lifecycle sweep pass
func (m *Metrics) RecordSweep(collection string, removed int64, duration time.Duration) {
	m.SweepRemovedTotal.WithLabelValues(collection).Add(float64(removed))
	m.SweepDuration.Observe(duration.Seconds())
}

// SetActiveTokensCount sets the active token gauge for a token type
func (m *Metrics) SetActiveTokensCount(tokenType string, count int) {
	m.TokensActive.WithLabelValues(tokenType).Set(float64(count))
}

// SetActiveCodesCount sets the active authorization code gauge
func (m *Metrics) SetActiveCodesCount(count int) {
	m.CodesActive.Set(float64(count))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
