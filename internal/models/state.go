package models

import "time"

// HealthStatus describes the manager's view of connection health.
type HealthStatus string

const (
	HealthUnknown HealthStatus = "unknown"
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// ConnectionState is the canonical in-memory state owned by the lifecycle manager.
//
// Subscribers receive value copies; only the manager mutates it.
// Invariant: Connected == true implies Connection != nil. LastCheck only
// advances forward and gates the check-deduplication cooldown.
type ConnectionState struct {
	Connected  bool
	Loading    bool
	Connection *Connection
	Err        string
	LastCheck  time.Time
	Health     HealthStatus
}

// Snapshot returns a copy safe to hand to subscribers.
//
// The Connection pointer is shared; subscribers treat it as read-only.
func (s ConnectionState) Snapshot() ConnectionState {
	return s
}

// ConnectionStatus summarizes overall connectivity for health metrics.
type ConnectionStatus string

const (
	StatusHealthy      ConnectionStatus = "healthy"
	StatusWarning      ConnectionStatus = "warning"
	StatusCritical     ConnectionStatus = "critical"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// TokenHealthStatus describes the freshness of the stored token pair.
type TokenHealthStatus string

const (
	TokenValid    TokenHealthStatus = "valid"
	TokenExpiring TokenHealthStatus = "expiring"
	TokenExpired  TokenHealthStatus = "expired"
	TokenInvalid  TokenHealthStatus = "invalid"
)

// HealthMetrics is the rolling window summary recomputed on each monitor cycle.
//
// Uptime is an exponentially smoothed estimate bounded to [0,100], not an
// exact ratio. ConsecutiveFailures resets to 0 on any successful probe.
type HealthMetrics struct {
	Status                ConnectionStatus
	TokenHealth           TokenHealthStatus
	LastSuccessfulRefresh *time.Time
	ConsecutiveFailures   int
	LastError             string
	Uptime                float64
	ResponseTime          time.Duration // 0 means not yet measured
}

// AlertType identifies the condition an alert reports.
type AlertType string

const (
	AlertTokenExpiring  AlertType = "token_expiring"
	AlertTokenExpired   AlertType = "token_expired"
	AlertRefreshFailed  AlertType = "refresh_failed"
	AlertConnectionLost AlertType = "connection_lost"
	AlertRateLimited    AlertType = "rate_limited"
	AlertLowUptime      AlertType = "low_uptime"
	AlertSlowResponse   AlertType = "slow_response"
)

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a raised condition requiring attention.
//
// At most one unacknowledged alert of a given type exists at a time; a new
// occurrence updates the existing alert's message and timestamp in place.
type Alert struct {
	ID           string
	Type         AlertType
	Severity     AlertSeverity
	Message      string
	Timestamp    time.Time
	Acknowledged bool
	AutoResolve  bool
}
