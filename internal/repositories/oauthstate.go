package repositories

import (
	"database/sql"
	"fmt"
	"time"
)

// OAuthStateRepository persists the OAuth state nonce per user.
//
// The nonce is stored in two independent locations (this table and a file in
// the user's config directory) so redirect validation survives either store
// going missing between the authorize call and the callback.
type OAuthStateRepository struct {
	db *sql.DB
}

// NewOAuthStateRepository creates a new [OAuthStateRepository] with the given database connection
func NewOAuthStateRepository(db *sql.DB) *OAuthStateRepository {
	return &OAuthStateRepository{db: db}
}

// Save stores or replaces the state nonce for a user.
func (r *OAuthStateRepository) Save(userID, state string) error {
	query := `
		INSERT INTO oauth_states (user_id, state, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, created_at = excluded.created_at
	`

	if _, err := r.db.Exec(query, userID, state, time.Now()); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}

	return nil
}

// Get returns the stored state nonce for a user, or an empty string if absent.
func (r *OAuthStateRepository) Get(userID string) (string, error) {
	var state string
	err := r.db.QueryRow("SELECT state FROM oauth_states WHERE user_id = ?", userID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query oauth state: %w", err)
	}

	return state, nil
}

// Clear removes the stored state nonce for a user.
func (r *OAuthStateRepository) Clear(userID string) error {
	if _, err := r.db.Exec("DELETE FROM oauth_states WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear oauth state: %w", err)
	}

	return nil
}
