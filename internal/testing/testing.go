// package testing contains shared test doubles for the connection core.
package testing

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
)

// MockTokenStore is an in-memory token store with error injection.
type MockTokenStore struct {
	mu    sync.Mutex
	conns map[string]*models.Connection

	GetErr    error
	UpsertErr error
	UpdateErr error
	DeleteErr error

	GetCalls    int
	UpsertCalls int
	DeleteCalls int
}

func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{conns: make(map[string]*models.Connection)}
}

// Seed installs a connection without counting as a call.
func (s *MockTokenStore) Seed(conn *models.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.UserID()] = conn
}

func (s *MockTokenStore) GetByUser(userID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	return s.conns[userID], nil
}

func (s *MockTokenStore) Upsert(conn *models.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.conns[conn.UserID()] = conn
	return nil
}

func (s *MockTokenStore) UpdateTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if conn, ok := s.conns[userID]; ok {
		conn.SetTokens(accessToken, refreshToken, expiresAt)
	}
	return nil
}

func (s *MockTokenStore) DeleteByUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.conns, userID)
	return nil
}

// MockStateStore is an in-memory OAuth nonce store with error injection.
type MockStateStore struct {
	mu     sync.Mutex
	states map[string]string

	SaveErr  error
	GetErr   error
	ClearErr error

	SaveCalls  int
	ClearCalls int
}

func NewMockStateStore() *MockStateStore {
	return &MockStateStore{states: make(map[string]string)}
}

func (s *MockStateStore) Save(userID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.states[userID] = state
	return nil
}

func (s *MockStateStore) Get(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", s.GetErr
	}
	return s.states[userID], nil
}

func (s *MockStateStore) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCalls++
	if s.ClearErr != nil {
		return s.ClearErr
	}
	delete(s.states, userID)
	return nil
}

// Saved returns the nonce currently stored for the user.
func (s *MockStateStore) Saved(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

// MockSession is a fixed-session [services.SessionProvider].
type MockSession struct {
	Session    *models.Session
	Err        error
	Credential string
}

func (m *MockSession) CurrentUser() (*models.Session, error) {
	return m.Session, m.Err
}

func (m *MockSession) AccessCredential() (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.Credential != "" {
		return m.Credential, nil
	}
	if m.Session == nil {
		return "", nil
	}
	return m.Session.AccessToken(), nil
}

// MockOAuth is a configurable [services.OAuthService].
type MockOAuth struct {
	ExchangeToken *oauth2.Token
	ExchangeErr   error
	RefreshToken  *oauth2.Token
	RefreshErr    error
	User          *services.SpotifyUser
	ProfileErr    error
}

func (m *MockOAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockOAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.ExchangeToken, m.ExchangeErr
}

func (m *MockOAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return m.RefreshToken, m.RefreshErr
}

func (m *MockOAuth) Profile(ctx context.Context, token *oauth2.Token) (*services.SpotifyUser, error) {
	return m.User, m.ProfileErr
}

func (m *MockOAuth) Name() string { return "Spotify" }

// MockBackend records invocations and replays a scripted sequence of results.
type MockBackend struct {
	mu       sync.Mutex
	Requests []services.SyncRequest

	// Errs is consumed one per call; past its end, calls succeed.
	Errs     []error
	Response *services.SyncResponse

	// InvokeFunc overrides the scripted behavior entirely when set.
	InvokeFunc func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error)
}

func (m *MockBackend) Invoke(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	call := len(m.Requests) - 1
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, credential, req)
	}
	if call < len(m.Errs) && m.Errs[call] != nil {
		return nil, m.Errs[call]
	}
	if m.Response != nil {
		return m.Response, nil
	}
	return &services.SyncResponse{Success: true}, nil
}

// Calls returns how many times the backend was invoked.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// FWriter always returns an error on Write.
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

var _ io.Writer = (*FWriter)(nil)
