package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// ConnectionRepository persists [models.Connection] records keyed uniquely by user id.
//
// This is the token store collaborator of the lifecycle manager: one active
// connection per user, created on OAuth exchange, mutated on refresh, deleted
// on disconnect.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByUser retrieves the connection for a user, excluding soft-deleted rows.
//
// Returns (nil, nil) when the user has never connected; absence is a normal
// steady state, not an error.
func (r *ConnectionRepository) GetByUser(userID string) (*models.Connection, error) {
	query := `
		SELECT id, sequence, user_id, spotify_user_id, access_token, refresh_token,
			expires_at, display_name, email, created_at, updated_at, deleted_at
		FROM connections
		WHERE user_id = ? AND deleted_at IS NULL
	`

	conn, err := scanConnection(r.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}

	return conn, nil
}

// Upsert inserts or replaces the connection row for the record's user.
func (r *ConnectionRepository) Upsert(conn *models.Connection) error {
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	existing, err := r.GetByUser(conn.UserID())
	if err != nil {
		return err
	}

	now := time.Now()
	conn.SetUpdatedAt(now)

	if existing != nil {
		conn.SetID(existing.ID())
		conn.SetCreatedAt(existing.CreatedAt())

		query := `
			UPDATE connections
			SET spotify_user_id = ?, access_token = ?, refresh_token = ?, expires_at = ?,
				display_name = ?, email = ?, updated_at = ?
			WHERE user_id = ? AND deleted_at IS NULL
		`
		_, err := r.db.Exec(query,
			conn.SpotifyUserID(), conn.AccessToken(), nullable(conn.RefreshToken()),
			conn.ExpiresAt(), nullable(conn.DisplayName()), nullable(conn.Email()),
			now, conn.UserID(),
		)
		if err != nil {
			return fmt.Errorf("failed to update connection: %w", err)
		}
		return nil
	}

	sequence, err := NextSequence(r.db, "connections")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if conn.ID() == "" {
		conn.SetID(shared.GenerateID())
	}

	query := `
		INSERT INTO connections (
			id, sequence, user_id, spotify_user_id, access_token, refresh_token,
			expires_at, display_name, email, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		conn.ID(), sequence, conn.UserID(), conn.SpotifyUserID(), conn.AccessToken(),
		nullable(conn.RefreshToken()), conn.ExpiresAt(), nullable(conn.DisplayName()),
		nullable(conn.Email()), conn.CreatedAt(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	return nil
}

// UpdateTokens replaces the stored token pair after a successful refresh.
func (r *ConnectionRepository) UpdateTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error {
	now := time.Now()

	query := `
		UPDATE connections
		SET access_token = ?, refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
			expires_at = ?, updated_at = ?
		WHERE user_id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, accessToken, refreshToken, expiresAt, now, userID)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection not found for user: %s", userID)
	}

	return nil
}

// DeleteByUser soft-deletes the user's connection.
func (r *ConnectionRepository) DeleteByUser(userID string) error {
	now := time.Now()

	query := `
		UPDATE connections
		SET deleted_at = ?
		WHERE user_id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, userID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection not found or already deleted for user: %s", userID)
	}

	return nil
}

// scanConnection scans a single [sql.Row] into a [models.Connection]
func scanConnection(row *sql.Row) (*models.Connection, error) {
	var (
		id            string
		sequence      int
		userID        string
		spotifyUserID string
		accessToken   string
		refreshToken  sql.NullString
		expiresAt     sql.NullTime
		displayName   sql.NullString
		email         sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
		deletedAt     sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &userID, &spotifyUserID, &accessToken, &refreshToken,
		&expiresAt, &displayName, &email, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	conn := models.NewConnection(sequence, userID, spotifyUserID)
	conn.SetID(id)
	conn.SetAccessToken(accessToken)
	if refreshToken.Valid {
		conn.SetRefreshToken(refreshToken.String)
	}
	if expiresAt.Valid {
		conn.SetExpiresAt(expiresAt.Time)
	}
	if displayName.Valid {
		conn.SetDisplayName(displayName.String)
	}
	if email.Valid {
		conn.SetEmail(email.String)
	}
	conn.SetCreatedAt(createdAt)
	conn.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		conn.SetDeletedAt(&deletedAt.Time)
	}

	return conn, nil
}

// nullable converts empty strings to NULL for optional columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
