// package services defines clients for the external collaborators of the connection core
package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

// OAuthService is the provider OAuth collaborator: authorization URL
// construction, code exchange, and refresh-token grants.
type OAuthService interface {
	// AuthURL returns the provider authorization URL carrying the given state nonce.
	AuthURL(state string) string

	// Exchange trades an authorization code for a token pair.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh performs a refresh_token grant and returns the new token pair.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Profile fetches the provider-side user profile for a token.
	Profile(ctx context.Context, token *oauth2.Token) (*SpotifyUser, error)

	// Name returns the provider name.
	Name() string
}

// SessionProvider resolves the locally authenticated user and the credential
// used to authorize backend calls.
type SessionProvider interface {
	// CurrentUser returns the active session, or nil when no user is signed in.
	CurrentUser() (*models.Session, error)

	// AccessCredential returns the backend authorization token for the active session.
	AccessCredential() (string, error)
}

// Backend is the edge-function collaborator: a single request-style operation
// accepting flags and an authorization credential.
type Backend interface {
	// Invoke calls the sync function with the given flags.
	Invoke(ctx context.Context, credential string, req SyncRequest) (*SyncResponse, error)
}

// SyncRequest carries the flags understood by the backend sync operation.
type SyncRequest struct {
	RefreshOnly   bool `json:"refresh_only,omitempty"`
	ForceFullSync bool `json:"force_full_sync,omitempty"`
	HealthCheck   bool `json:"health_check,omitempty"`
}

// SyncResponse is the result shape returned by the backend.
type SyncResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// APIError is a structured failure from an HTTP collaborator.
//
// RetryAfter is populated from the Retry-After header or error payload on 429
// responses; zero means the server supplied no hint.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: status %d", e.StatusCode)
}

// SessionService implements [SessionProvider] over the session repository.
type SessionService struct {
	sessions sessionStore
}

type sessionStore interface {
	Current() (*models.Session, error)
}

// NewSessionService creates a session provider backed by the given store.
func NewSessionService(sessions sessionStore) *SessionService {
	return &SessionService{sessions: sessions}
}

// CurrentUser returns the active session, or nil when no user is signed in.
func (s *SessionService) CurrentUser() (*models.Session, error) {
	return s.sessions.Current()
}

// AccessCredential returns the backend authorization token for the active session.
func (s *SessionService) AccessCredential() (string, error) {
	session, err := s.sessions.Current()
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", nil
	}
	return session.AccessToken(), nil
}
