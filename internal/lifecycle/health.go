package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

const (
	// defaultHealthInterval is how often the monitor probes the connection.
	defaultHealthInterval = 5 * time.Minute

	// failureThreshold is the default consecutive-failure count that
	// escalates the connection-lost alert.
	failureThreshold = 3

	// uptimeWarning is the EWMA uptime percentage below which status degrades.
	uptimeWarning = 95.0

	// responseWarning is the default probe latency above which status degrades.
	responseWarning = 5 * time.Second
)

// CheckFunc probes the connection and returns its current state.
type CheckFunc func(ctx context.Context) (*models.ConnectionState, error)

// HealthListener receives a metrics snapshot and active alerts after each cycle.
type HealthListener func(models.HealthMetrics, []models.Alert)

// Monitor runs periodic connection probes, maintains rolling health metrics,
// and raises deduplicated alerts on degradation.
type Monitor struct {
	check    CheckFunc
	interval time.Duration
	logger   *log.Logger

	mu           sync.Mutex
	running      bool
	stop         chan struct{}
	metrics      models.HealthMetrics
	alerts       *alertBook
	listeners    map[string]HealthListener
	now          func() time.Time
	failureLimit int
	expiryWindow time.Duration
	responseMax  time.Duration
}

// NewMonitor creates a monitor around the given probe. A non-positive
// interval falls back to the five-minute default.
func NewMonitor(check CheckFunc, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		check:    check,
		interval: interval,
		logger:   shared.ComponentLogger(logger, "monitor"),
		metrics: models.HealthMetrics{
			Status: models.StatusDisconnected,
			Uptime: 100,
		},
		alerts:       newAlertBook(),
		listeners:    make(map[string]HealthListener),
		now:          time.Now,
		failureLimit: failureThreshold,
		expiryWindow: expiryWarning,
		responseMax:  responseWarning,
	}
}

// SetLimits overrides the monitor's escalation thresholds. Non-positive
// values keep the current ones.
func (m *Monitor) SetLimits(failures int, expiryWindow, responseMax time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failures > 0 {
		m.failureLimit = failures
	}
	if expiryWindow > 0 {
		m.expiryWindow = expiryWindow
	}
	if responseMax > 0 {
		m.responseMax = responseMax
	}
}

// SetNow replaces the monitor's time source. Test hook.
func (m *Monitor) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Start launches the periodic probe loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.logger.Info("health monitoring started", "interval", m.interval)

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.RunCycle(ctx)

		for {
			select {
			case <-ticker.C:
				m.RunCycle(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				m.Stop()
				return
			}
		}
	}()
}

// Stop halts the probe loop. Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	m.logger.Info("health monitoring stopped")
}

// Running reports whether the probe loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunCycle performs one probe, folds the result into the rolling metrics,
// updates alerts, and notifies listeners.
func (m *Monitor) RunCycle(ctx context.Context) models.HealthMetrics {
	started := time.Now()
	state, err := m.check(ctx)
	elapsed := time.Since(started)

	m.mu.Lock()

	now := m.now()
	m.metrics.ResponseTime = elapsed

	healthy := err == nil && state != nil && state.Connected
	if healthy {
		m.metrics.ConsecutiveFailures = 0
		m.metrics.LastError = ""
		m.metrics.Uptime = ewma(m.metrics.Uptime, 100)
	} else {
		m.metrics.ConsecutiveFailures++
		if err != nil {
			m.metrics.LastError = err.Error()
		} else if state != nil && state.Err != "" {
			m.metrics.LastError = state.Err
		} else {
			m.metrics.LastError = "not connected"
		}
		m.metrics.Uptime = ewma(m.metrics.Uptime, 0)
	}

	m.metrics.TokenHealth = models.TokenInvalid
	if state != nil && state.Connection != nil {
		m.metrics.TokenHealth = validateTokenWindows(state.Connection, now, refreshLead, m.expiryWindow).Status
	}

	m.metrics.Status = m.deriveStatus(state, healthy)
	m.updateAlerts(state, err, healthy, now)

	snapshot := m.metrics
	alerts := m.alerts.snapshot()
	listeners := make([]HealthListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, listener := range listeners {
		notifyHealth(listener, snapshot, alerts)
	}

	return snapshot
}

// RecordRefresh marks a successful token refresh so the metrics reflect it
// without waiting for the next probe cycle. A working refresh clears the
// failure streak and every token alert along with it.
func (m *Monitor) RecordRefresh(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.LastSuccessfulRefresh = &at
	m.metrics.ConsecutiveFailures = 0
	m.alerts.resolve(models.AlertRefreshFailed)
	m.alerts.resolve(models.AlertTokenExpired)
	m.alerts.resolve(models.AlertTokenExpiring)
}

// RecordRefreshFailure raises (or refreshes) the refresh-failure alert.
func (m *Monitor) RecordRefreshFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts.raise(models.AlertRefreshFailed, models.SeverityError,
		fmt.Sprintf("token refresh failed: %v", err), true, m.now())
}

// Metrics returns a snapshot of the rolling health metrics.
func (m *Monitor) Metrics() models.HealthMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// ActiveAlerts returns the currently active alerts.
func (m *Monitor) ActiveAlerts() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts.snapshot()
}

// AlertHistory returns past alerts, oldest first, bounded.
func (m *Monitor) AlertHistory() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts.log()
}

// Acknowledge dismisses the active alert with the given ID.
func (m *Monitor) Acknowledge(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts.acknowledge(id)
}

// AddListener registers a listener and returns its handle for removal.
func (m *Monitor) AddListener(listener HealthListener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := shared.GenerateID()
	m.listeners[id] = listener
	return id
}

// RemoveListener deregisters the listener with the given handle.
func (m *Monitor) RemoveListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func (m *Monitor) deriveStatus(state *models.ConnectionState, healthy bool) models.ConnectionStatus {
	if state == nil || (!state.Connected && state.Connection == nil) {
		return models.StatusDisconnected
	}
	if !healthy || m.metrics.TokenHealth == models.TokenExpired || m.metrics.TokenHealth == models.TokenInvalid {
		return models.StatusCritical
	}
	if m.metrics.Uptime < uptimeWarning || m.metrics.ResponseTime > m.responseMax || m.metrics.TokenHealth == models.TokenExpiring {
		return models.StatusWarning
	}
	return models.StatusHealthy
}

func (m *Monitor) updateAlerts(state *models.ConnectionState, err error, healthy bool, now time.Time) {
	switch m.metrics.TokenHealth {
	case models.TokenExpired:
		m.alerts.resolve(models.AlertTokenExpiring)
		m.alerts.raise(models.AlertTokenExpired, models.SeverityCritical, "Spotify token has expired; refresh required", true, now)
	case models.TokenExpiring:
		m.alerts.raise(models.AlertTokenExpiring, models.SeverityWarning, "Spotify token expires soon", true, now)
	default:
		m.alerts.resolve(models.AlertTokenExpiring)
		m.alerts.resolve(models.AlertTokenExpired)
	}

	if err != nil {
		result := Classify("Spotify", err)
		if result.RateLimited {
			m.alerts.raise(models.AlertRateLimited, models.SeverityWarning,
				fmt.Sprintf("Spotify rate limit hit; retry after %s", result.RetryAfter), true, now)
		}
	} else {
		m.alerts.resolve(models.AlertRateLimited)
	}

	// A missing connection raises a standing alert that only an explicit
	// acknowledgement clears; repeated probe failures escalate instead.
	switch {
	case state == nil || (!state.Connected && state.Connection == nil):
		m.alerts.raise(models.AlertConnectionLost, models.SeverityError,
			shared.ErrNotConnected.Error(), false, now)
	case m.metrics.ConsecutiveFailures >= m.failureLimit:
		m.alerts.raise(models.AlertConnectionLost, models.SeverityCritical,
			fmt.Sprintf("Spotify connection failed %d consecutive checks", m.metrics.ConsecutiveFailures), true, now)
	case healthy:
		m.alerts.resolve(models.AlertConnectionLost)
	}

	if m.metrics.Uptime < uptimeWarning {
		m.alerts.raise(models.AlertLowUptime, models.SeverityWarning,
			fmt.Sprintf("connection uptime at %.1f%% over the recent window", m.metrics.Uptime), true, now)
	} else {
		m.alerts.resolve(models.AlertLowUptime)
	}

	if m.metrics.ResponseTime > m.responseMax {
		m.alerts.raise(models.AlertSlowResponse, models.SeverityWarning,
			fmt.Sprintf("health probe took %s", m.metrics.ResponseTime.Round(time.Millisecond)), true, now)
	} else {
		m.alerts.resolve(models.AlertSlowResponse)
	}
}

// ewma folds a probe sample into the rolling uptime percentage.
func ewma(current, sample float64) float64 {
	value := current*0.8 + sample*0.2
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// notifyHealth shields the monitor from panicking listeners.
func notifyHealth(listener HealthListener, metrics models.HealthMetrics, alerts []models.Alert) {
	defer func() { _ = recover() }()
	listener(metrics, alerts)
}
