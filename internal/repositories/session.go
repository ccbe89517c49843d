package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// SessionRepository persists the locally authenticated user.
//
// The session provider collaborator reads the most recent session to resolve
// the current user and the access credential for backend calls.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session with generated ID and sequence.
func (r *SessionRepository) Create(session *models.Session) error {
	sequence, err := NextSequence(r.db, "sessions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	session.SetID(id)

	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sessions (id, sequence, user_id, email, access_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, session.UserID(), session.Email(),
		session.AccessToken(), session.CreatedAt(), session.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Current retrieves the most recent active session.
//
// Returns (nil, nil) when no user is signed in.
func (r *SessionRepository) Current() (*models.Session, error) {
	query := `
		SELECT id, sequence, user_id, email, access_token, created_at, updated_at, deleted_at
		FROM sessions
		WHERE deleted_at IS NULL
		ORDER BY sequence DESC
		LIMIT 1
	`

	var (
		id          string
		sequence    int
		userID      string
		email       sql.NullString
		accessToken string
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := r.db.QueryRow(query).Scan(&id, &sequence, &userID, &email, &accessToken, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session := models.NewSession(sequence, userID, email.String, accessToken)
	session.SetID(id)
	session.SetCreatedAt(createdAt)
	session.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		session.SetDeletedAt(&deletedAt.Time)
	}

	return session, nil
}

// DeleteAll soft-deletes every active session (full sign-out).
func (r *SessionRepository) DeleteAll() error {
	now := time.Now()

	_, err := r.db.Exec("UPDATE sessions SET deleted_at = ? WHERE deleted_at IS NULL", now)
	if err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	return nil
}
