package lifecycle

import (
	"fmt"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// alertHistoryCap bounds the retained alert history.
const alertHistoryCap = 50

// alertBook tracks active alerts keyed by type plus a bounded history.
//
// Not safe for concurrent use; the monitor serializes access under its mutex.
type alertBook struct {
	active  map[models.AlertType]*models.Alert
	history []models.Alert
}

func newAlertBook() *alertBook {
	return &alertBook{active: make(map[models.AlertType]*models.Alert)}
}

// raise records an alert unless one of the same type is already active,
// which keeps repeated check cycles from stacking duplicates.
func (b *alertBook) raise(kind models.AlertType, severity models.AlertSeverity, message string, autoResolve bool, now time.Time) *models.Alert {
	if existing, ok := b.active[kind]; ok {
		existing.Message = message
		existing.Timestamp = now
		return existing
	}

	alert := &models.Alert{
		ID:          shared.GenerateID(),
		Type:        kind,
		Severity:    severity,
		Message:     message,
		Timestamp:   now,
		AutoResolve: autoResolve,
	}
	b.active[kind] = alert

	b.history = append(b.history, *alert)
	if len(b.history) > alertHistoryCap {
		b.history = b.history[len(b.history)-alertHistoryCap:]
	}
	return alert
}

// resolve clears the active alert of the given type if it is marked
// auto-resolvable. Manually raised alerts stay until acknowledged.
func (b *alertBook) resolve(kind models.AlertType) {
	if alert, ok := b.active[kind]; ok && alert.AutoResolve {
		delete(b.active, kind)
	}
}

// acknowledge marks the alert with the given ID and removes it from the
// active set. Unknown IDs are an error.
func (b *alertBook) acknowledge(id string) error {
	for kind, alert := range b.active {
		if alert.ID == id {
			alert.Acknowledged = true
			delete(b.active, kind)
			return nil
		}
	}
	return fmt.Errorf("%w: no alert with id %s", shared.ErrInvalidArgument, id)
}

// snapshot returns copies of the currently active alerts.
func (b *alertBook) snapshot() []models.Alert {
	out := make([]models.Alert, 0, len(b.active))
	for _, alert := range b.active {
		out = append(out, *alert)
	}
	return out
}

// log returns a copy of the alert history, oldest first.
func (b *alertBook) log() []models.Alert {
	out := make([]models.Alert, len(b.history))
	copy(out, b.history)
	return out
}
