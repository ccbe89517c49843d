// package models defines the data model for the mako-sync connection service
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models in the connection service.
// Implementations include Connection and Session.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Connection represents one user's link to Spotify.
//
// The token pair is treated as opaque after the initial OAuth exchange; the
// lifecycle manager never inspects token contents, only ExpiresAt.
type Connection struct {
	id            string
	sequence      int
	userID        string
	spotifyUserID string
	accessToken   string
	refreshToken  string
	expiresAt     time.Time
	displayName   string
	email         string
	createdAt     time.Time
	updatedAt     time.Time
	deletedAt     *time.Time
}

// NewConnection creates a connection for the given owning user and Spotify account.
func NewConnection(sequence int, userID, spotifyUserID string) *Connection {
	now := time.Now()
	return &Connection{
		sequence:      sequence,
		userID:        userID,
		spotifyUserID: spotifyUserID,
		createdAt:     now,
		updatedAt:     now,
	}
}

func (c *Connection) ID() string            { return c.id }
func (c *Connection) Sequence() int         { return c.sequence }
func (c *Connection) UserID() string        { return c.userID }
func (c *Connection) SpotifyUserID() string { return c.spotifyUserID }
func (c *Connection) AccessToken() string   { return c.accessToken }
func (c *Connection) RefreshToken() string  { return c.refreshToken }
func (c *Connection) ExpiresAt() time.Time  { return c.expiresAt }
func (c *Connection) DisplayName() string   { return c.displayName }
func (c *Connection) Email() string         { return c.email }
func (c *Connection) CreatedAt() time.Time  { return c.createdAt }
func (c *Connection) UpdatedAt() time.Time  { return c.updatedAt }
func (c *Connection) DeletedAt() *time.Time { return c.deletedAt }

func (c *Connection) SetID(id string)              { c.id = id }
func (c *Connection) SetSpotifyUserID(id string)   { c.spotifyUserID = id }
func (c *Connection) SetDisplayName(name string)   { c.displayName = name }
func (c *Connection) SetEmail(email string)        { c.email = email }
func (c *Connection) SetCreatedAt(t time.Time)     { c.createdAt = t }
func (c *Connection) SetUpdatedAt(t time.Time)     { c.updatedAt = t }
func (c *Connection) SetDeletedAt(t *time.Time)    { c.deletedAt = t }
func (c *Connection) SetExpiresAt(t time.Time)     { c.expiresAt = t }
func (c *Connection) SetAccessToken(token string)  { c.accessToken = token }
func (c *Connection) SetRefreshToken(token string) { c.refreshToken = token }

// SetTokens replaces the stored token pair and bumps the expiry window.
//
// An empty refresh token keeps the previous one; Spotify omits it on refresh grants.
func (c *Connection) SetTokens(accessToken, refreshToken string, expiresAt time.Time) {
	c.accessToken = accessToken
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}
	c.expiresAt = expiresAt
	c.updatedAt = time.Now()
}

// HasRefreshToken reports whether a refresh token was granted during the exchange.
func (c *Connection) HasRefreshToken() bool {
	return strings.TrimSpace(c.refreshToken) != ""
}

// Validate checks required connection fields.
func (c *Connection) Validate() error {
	if strings.TrimSpace(c.userID) == "" {
		return fmt.Errorf("connection requires a user id")
	}
	if strings.TrimSpace(c.spotifyUserID) == "" {
		return fmt.Errorf("connection requires a spotify user id")
	}
	if strings.TrimSpace(c.accessToken) == "" {
		return fmt.Errorf("connection requires an access token")
	}
	return nil
}

// Session represents the locally authenticated user whose credential authorizes backend calls.
type Session struct {
	id          string
	sequence    int
	userID      string
	email       string
	accessToken string
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewSession creates a session for the given user.
func NewSession(sequence int, userID, email, accessToken string) *Session {
	now := time.Now()
	return &Session{
		sequence:    sequence,
		userID:      userID,
		email:       email,
		accessToken: accessToken,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Sequence() int         { return s.sequence }
func (s *Session) UserID() string        { return s.userID }
func (s *Session) Email() string         { return s.email }
func (s *Session) AccessToken() string   { return s.accessToken }
func (s *Session) CreatedAt() time.Time  { return s.createdAt }
func (s *Session) UpdatedAt() time.Time  { return s.updatedAt }
func (s *Session) DeletedAt() *time.Time { return s.deletedAt }

func (s *Session) SetID(id string)           { s.id = id }
func (s *Session) SetCreatedAt(t time.Time)  { s.createdAt = t }
func (s *Session) SetUpdatedAt(t time.Time)  { s.updatedAt = t }
func (s *Session) SetDeletedAt(t *time.Time) { s.deletedAt = t }

// Validate checks required session fields.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.userID) == "" {
		return fmt.Errorf("session requires a user id")
	}
	if strings.TrimSpace(s.accessToken) == "" {
		return fmt.Errorf("session requires an access token")
	}
	return nil
}
