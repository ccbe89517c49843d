// package formatter renders connection status, health metrics, and alerts for terminal output
package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/tasks"
)

// StatusText renders a connection state as plain text.
func StatusText(state models.ConnectionState, now time.Time) []byte {
	var buf bytes.Buffer

	if !state.Connected {
		buf.WriteString("Spotify: not connected\n")
		if state.Err != "" {
			buf.WriteString(fmt.Sprintf("Reason: %s\n", state.Err))
		}
		buf.WriteString("Run `makosync connect` to link your Spotify account.\n")
		return buf.Bytes()
	}

	conn := state.Connection
	buf.WriteString("Spotify: connected\n")
	if conn != nil {
		account := conn.DisplayName()
		if account == "" {
			account = conn.SpotifyUserID()
		}
		buf.WriteString(fmt.Sprintf("Account: %s\n", account))
		if conn.Email() != "" {
			buf.WriteString(fmt.Sprintf("Email: %s\n", conn.Email()))
		}
		until := conn.ExpiresAt().Sub(now)
		if until > 0 {
			buf.WriteString(fmt.Sprintf("Token expires in: %s\n", shared.FormatDuration(until)))
		} else {
			buf.WriteString("Token expired\n")
		}
	}
	buf.WriteString(fmt.Sprintf("Health: %s\n", state.Health))
	if !state.LastCheck.IsZero() {
		buf.WriteString(fmt.Sprintf("Last checked: %s ago\n", shared.FormatDuration(now.Sub(state.LastCheck))))
	}
	if state.Err != "" {
		buf.WriteString(fmt.Sprintf("Warning: %s\n", state.Err))
	}

	return buf.Bytes()
}

// statusPayload is the JSON shape for a connection state.
type statusPayload struct {
	Connected     bool      `json:"connected"`
	Loading       bool      `json:"loading,omitempty"`
	Account       string    `json:"account,omitempty"`
	SpotifyUserID string    `json:"spotify_user_id,omitempty"`
	Email         string    `json:"email,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	Health        string    `json:"health"`
	LastCheck     time.Time `json:"last_check,omitzero"`
	Error         string    `json:"error,omitempty"`
}

// StatusJSON renders a connection state as indented JSON.
func StatusJSON(state models.ConnectionState) ([]byte, error) {
	payload := statusPayload{
		Connected: state.Connected,
		Loading:   state.Loading,
		Health:    string(state.Health),
		LastCheck: state.LastCheck,
		Error:     state.Err,
	}
	if conn := state.Connection; conn != nil {
		payload.Account = conn.DisplayName()
		payload.SpotifyUserID = conn.SpotifyUserID()
		payload.Email = conn.Email()
		payload.ExpiresAt = conn.ExpiresAt()
	}
	return shared.MarshalJSON(payload, true)
}

// HealthText renders health metrics plus any active alerts as plain text.
func HealthText(metrics models.HealthMetrics, alerts []models.Alert) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Status: %s\n", metrics.Status))
	buf.WriteString(fmt.Sprintf("Token: %s\n", metrics.TokenHealth))
	buf.WriteString(fmt.Sprintf("Uptime: %.1f%%\n", metrics.Uptime))
	if metrics.ResponseTime > 0 {
		buf.WriteString(fmt.Sprintf("Response time: %s\n", metrics.ResponseTime.Round(time.Millisecond)))
	}
	if metrics.LastSuccessfulRefresh != nil {
		buf.WriteString(fmt.Sprintf("Last refresh: %s\n", metrics.LastSuccessfulRefresh.Format(time.RFC3339)))
	}
	if metrics.ConsecutiveFailures > 0 {
		buf.WriteString(fmt.Sprintf("Consecutive failures: %d\n", metrics.ConsecutiveFailures))
	}
	if metrics.LastError != "" {
		buf.WriteString(fmt.Sprintf("Last error: %s\n", metrics.LastError))
	}

	if len(alerts) > 0 {
		buf.WriteString("\nAlerts:\n")
		for _, alert := range alerts {
			buf.WriteString(fmt.Sprintf("  [%s] %s: %s\n", strings.ToUpper(string(alert.Severity)), alert.Type, alert.Message))
		}
	}

	return buf.Bytes()
}

// healthPayload is the JSON shape for health metrics.
type healthPayload struct {
	Status                string         `json:"status"`
	TokenHealth           string         `json:"token_health"`
	Uptime                float64        `json:"uptime"`
	ResponseTimeMS        int64          `json:"response_time_ms"`
	ConsecutiveFailures   int            `json:"consecutive_failures"`
	LastSuccessfulRefresh *time.Time     `json:"last_successful_refresh,omitempty"`
	LastError             string         `json:"last_error,omitempty"`
	Alerts                []alertPayload `json:"alerts,omitempty"`
}

type alertPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthJSON renders health metrics and alerts as indented JSON.
func HealthJSON(metrics models.HealthMetrics, alerts []models.Alert) ([]byte, error) {
	payload := healthPayload{
		Status:                string(metrics.Status),
		TokenHealth:           string(metrics.TokenHealth),
		Uptime:                metrics.Uptime,
		ResponseTimeMS:        metrics.ResponseTime.Milliseconds(),
		ConsecutiveFailures:   metrics.ConsecutiveFailures,
		LastSuccessfulRefresh: metrics.LastSuccessfulRefresh,
		LastError:             metrics.LastError,
	}
	for _, alert := range alerts {
		payload.Alerts = append(payload.Alerts, alertPayload{
			ID:        alert.ID,
			Type:      string(alert.Type),
			Severity:  string(alert.Severity),
			Message:   alert.Message,
			Timestamp: alert.Timestamp,
		})
	}
	return shared.MarshalJSON(payload, true)
}

// SyncText renders a sync run summary as plain text.
func SyncText(result *tasks.SyncRunResult) []byte {
	var buf bytes.Buffer
	buf.WriteString("Sync complete\n")
	buf.WriteString(fmt.Sprintf("Synced: %d\n", result.Synced))
	buf.WriteString(fmt.Sprintf("Skipped: %d\n", result.Skipped))
	buf.WriteString(fmt.Sprintf("Total: %d\n", result.Total))
	return buf.Bytes()
}

// SyncJSON renders a sync run summary as indented JSON.
func SyncJSON(result *tasks.SyncRunResult) ([]byte, error) {
	payload := map[string]any{
		"synced":  result.Synced,
		"skipped": result.Skipped,
		"total":   result.Total,
	}
	if len(result.Data) > 0 {
		payload["data"] = result.Data
	}
	return shared.MarshalJSON(payload, true)
}
