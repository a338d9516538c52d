package metrics

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Authorization endpoint
	RecordAuthorizeRequest(result string)
	RecordAuthorizationCodeIssued(success bool)
	RecordCodeExchange(result string)

	// Token operations
	RecordTokenIssued(tokenType, grantType string, generationTime time.Duration, provider string)
	RecordTokenRevoked(tokenType, reason string)
	RecordTokenRefresh(success bool)
	RecordIntrospection(result string, duration time.Duration)

	// Lifecycle sweep
	RecordSweep(collection string, removed int64, duration time.Duration)

	// Gauge setters (for periodic updates)
	SetActiveTokensCount(tokenType string, count int)
	SetActiveCodesCount(count int)

	// Database operations
	RecordDatabaseQueryError(operation string)
}
