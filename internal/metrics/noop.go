package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Authorization endpoint - noop implementations
func (n *NoopMetrics) RecordAuthorizeRequest(result string)       {}
func (n *NoopMetrics) RecordAuthorizationCodeIssued(success bool) {}
func (n *NoopMetrics) RecordCodeExchange(result string)           {}

// Token operations - noop implementations
func (n *NoopMetrics) RecordTokenIssued(
	tokenType, grantType string,
	generationTime time.Duration,
	provider string,
) {
}

func (n *NoopMetrics) RecordTokenRevoked(tokenType, reason string) {}

func (n *NoopMetrics) RecordTokenRefresh(success bool) {}

func (n *NoopMetrics) RecordIntrospection(result string, duration time.Duration) {}

// Lifecycle sweep - noop implementations
func (n *NoopMetrics) RecordSweep(collection string, removed int64, duration time.Duration) {}

// Gauge setters - noop implementations
func (n *NoopMetrics) SetActiveTokensCount(tokenType string, count int) {}
func (n *NoopMetrics) SetActiveCodesCount(count int)                    {}

// Database operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
