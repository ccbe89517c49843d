package lifecycle

import (
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

// TokenStore is the persistence collaborator owning connection records.
//
// Keyed uniquely by user id: one active connection per user. The manager's
// in-memory copy is a read-mostly cache invalidated on every mutation; the
// store is the cross-process source of truth.
type TokenStore interface {
	// GetByUser returns the user's connection, or (nil, nil) when absent.
	GetByUser(userID string) (*models.Connection, error)

	// Upsert inserts or replaces the connection row for the record's user.
	Upsert(conn *models.Connection) error

	// UpdateTokens replaces the stored token pair after a refresh.
	UpdateTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error

	// DeleteByUser removes the user's connection.
	DeleteByUser(userID string) error
}

// StateStore persists the OAuth state nonce between the authorize redirect
// and the provider callback. Two independent implementations back each
// manager (database row and config-directory file) so validation survives
// either store going missing.
type StateStore interface {
	Save(userID, state string) error
	Get(userID string) (string, error)
	Clear(userID string) error
}
