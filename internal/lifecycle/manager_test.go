package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	tu "github.com/gwherrett/mako-sync-ai-sub002/internal/testing"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []models.ConnectionState
}

func (r *stateRecorder) record(s models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) list() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ConnectionState, len(r.states))
	copy(out, r.states)
	return out
}

type fixture struct {
	store     *tu.MockTokenStore
	dbState   *tu.MockStateStore
	fileState *tu.MockStateStore
	session   *tu.MockSession
	oauth     *tu.MockOAuth
	backend   *tu.MockBackend
	clock     *fakeClock
	opened    []string
	mgr       *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, ManagerConfig{
		CheckCooldown:      5 * time.Second,
		AutoRefresh:        true,
		HealthMonitoring:   true,
		SecurityValidation: true,
	})
}

func newFixtureWith(t *testing.T, cfg ManagerConfig) *fixture {
	t.Helper()

	f := &fixture{
		store:     tu.NewMockTokenStore(),
		dbState:   tu.NewMockStateStore(),
		fileState: tu.NewMockStateStore(),
		session:   &tu.MockSession{Session: models.NewSession(1, "user-1", "user@example.com", "session-token")},
		oauth:     &tu.MockOAuth{},
		backend:   &tu.MockBackend{},
		clock:     &fakeClock{t: time.Now()},
	}

	f.mgr = New(cfg, ManagerDeps{
		Store:   f.store,
		States:  []StateStore{f.dbState, f.fileState},
		Session: f.session,
		OAuth:   f.oauth,
		Backend: f.backend,
		OpenURL: func(url string) error {
			f.opened = append(f.opened, url)
			return nil
		},
	})
	f.mgr.SetClock(f.clock.Now, func(ctx context.Context, d time.Duration) error { return nil })
	t.Cleanup(f.mgr.Destroy)
	return f
}

// slowStore injects latency into reads so concurrent checks overlap.
type slowStore struct {
	*tu.MockTokenStore
	delay time.Duration
}

func (s *slowStore) GetByUser(userID string) (*models.Connection, error) {
	time.Sleep(s.delay)
	return s.MockTokenStore.GetByUser(userID)
}

// seedConnection installs a connection expiring after the given duration.
func (f *fixture) seedConnection(expiry time.Duration) *models.Connection {
	conn := models.NewConnection(1, "user-1", "spotify-1")
	conn.SetID("conn-1")
	conn.SetTokens("access", "refresh", f.clock.Now().Add(expiry))
	f.store.Seed(conn)
	return conn
}

func TestManagerCheckConnection(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		f.session.Session = nil

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("error = %v, want ErrNotAuthenticated", err)
		}
		if state.Connected {
			t.Error("expected disconnected state")
		}
	})

	t.Run("missing connection names the condition without an error", func(t *testing.T) {
		f := newFixture(t)

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err != nil {
			t.Fatalf("CheckConnection() error = %v", err)
		}
		if state.Connected {
			t.Error("expected disconnected state")
		}
		if state.Err != shared.ErrNotConnected.Error() {
			t.Errorf("state.Err = %q, want %q", state.Err, shared.ErrNotConnected.Error())
		}
	})

	t.Run("concurrent unforced checks share one store read", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		slow := &slowStore{MockTokenStore: f.store, delay: 20 * time.Millisecond}
		mgr := New(ManagerConfig{CheckCooldown: 5 * time.Second, AutoRefresh: true}, ManagerDeps{
			Store:   slow,
			States:  []StateStore{f.dbState},
			Session: f.session,
			OAuth:   f.oauth,
			Backend: f.backend,
			OpenURL: func(string) error { return nil },
		})
		t.Cleanup(mgr.Destroy)

		const callers = 8
		var wg sync.WaitGroup
		states := make([]models.ConnectionState, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				state, err := mgr.CheckConnection(context.Background(), false)
				if err != nil {
					t.Errorf("CheckConnection() error = %v", err)
				}
				states[i] = state
			}(i)
		}
		wg.Wait()

		if f.store.GetCalls != 1 {
			t.Errorf("store reads = %d for %d concurrent checks, want 1", f.store.GetCalls, callers)
		}
		for i, state := range states {
			if !state.Connected {
				t.Errorf("caller %d saw a disconnected state", i)
			}
		}
	})

	t.Run("auto-refresh disabled leaves the stale token alone", func(t *testing.T) {
		f := newFixtureWith(t, ManagerConfig{CheckCooldown: 5 * time.Second, SecurityValidation: true})
		f.seedConnection(2 * time.Minute)

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err != nil {
			t.Fatalf("CheckConnection() error = %v", err)
		}
		if !state.Connected || state.Health != models.HealthWarning {
			t.Errorf("state = %+v, want connected with warning health", state)
		}
		if f.backend.Calls() != 0 {
			t.Errorf("backend calls = %d, refresh must not run when disabled", f.backend.Calls())
		}
	})

	t.Run("auto-refresh disabled reports an expired token", func(t *testing.T) {
		f := newFixtureWith(t, ManagerConfig{CheckCooldown: 5 * time.Second})
		f.seedConnection(-time.Minute)

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err != nil {
			t.Fatalf("CheckConnection() error = %v", err)
		}
		if state.Health != models.HealthError || state.Err == "" {
			t.Errorf("state = %+v, want error health with a message", state)
		}
		if f.backend.Calls() != 0 {
			t.Errorf("backend calls = %d, want 0", f.backend.Calls())
		}
	})

	t.Run("malformed stored row fails the security check", func(t *testing.T) {
		f := newFixture(t)
		conn := models.NewConnection(1, "user-1", "spotify-1")
		conn.SetAccessToken("access")
		conn.SetExpiresAt(f.clock.Now().Add(time.Hour))
		f.store.Seed(conn)

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Fatalf("error = %v, want ErrNoRefreshToken", err)
		}
		if state.Health != models.HealthError {
			t.Errorf("health = %s, want error", state.Health)
		}
	})

	t.Run("fresh token connects without backend traffic", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err != nil {
			t.Fatalf("CheckConnection() error = %v", err)
		}
		if !state.Connected || state.Health != models.HealthHealthy {
			t.Errorf("state = %+v, want connected and healthy", state)
		}
		if f.backend.Calls() != 0 {
			t.Errorf("backend calls = %d, want 0", f.backend.Calls())
		}
	})

	t.Run("cooldown serves the cached result", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		if _, err := f.mgr.CheckConnection(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if _, err := f.mgr.CheckConnection(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if f.store.GetCalls != 1 {
			t.Errorf("store reads = %d inside cooldown, want 1", f.store.GetCalls)
		}

		f.clock.Advance(6 * time.Second)
		if _, err := f.mgr.CheckConnection(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if f.store.GetCalls != 2 {
			t.Errorf("store reads = %d after cooldown, want 2", f.store.GetCalls)
		}
	})

	t.Run("cooldown caches failures too", func(t *testing.T) {
		f := newFixture(t)
		f.store.GetErr = errors.New("disk gone")

		_, err1 := f.mgr.CheckConnection(context.Background(), false)
		_, err2 := f.mgr.CheckConnection(context.Background(), false)
		if !errors.Is(err1, shared.ErrPersistence) || !errors.Is(err2, shared.ErrPersistence) {
			t.Fatalf("errors = %v, %v; want ErrPersistence twice", err1, err2)
		}
		if f.store.GetCalls != 1 {
			t.Errorf("store reads = %d, failure must be cached too", f.store.GetCalls)
		}
	})

	t.Run("force bypasses the cooldown", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		if _, err := f.mgr.CheckConnection(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}
		if f.store.GetCalls != 2 {
			t.Errorf("store reads = %d, want 2", f.store.GetCalls)
		}
	})

	t.Run("stale token triggers a refresh round trip", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Minute)
		f.backend.InvokeFunc = func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
			if !req.RefreshOnly {
				t.Error("expected a refresh-only request")
			}
			if err := f.store.UpdateTokens("user-1", "new-access", "", f.clock.Now().Add(time.Hour)); err != nil {
				t.Fatal(err)
			}
			return &services.SyncResponse{Success: true}, nil
		}

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err != nil {
			t.Fatalf("CheckConnection() error = %v", err)
		}
		if !state.Connected {
			t.Error("expected connected after refresh")
		}
		if got := state.Connection.AccessToken(); got != "new-access" {
			t.Errorf("access token = %q, want the refreshed one", got)
		}
	})

	t.Run("permanent refresh failure disconnects", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(-time.Minute)
		f.backend.InvokeFunc = func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
			return nil, &services.APIError{StatusCode: http.StatusUnauthorized}
		}

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err == nil {
			t.Fatal("expected error")
		}
		if state.Connected {
			t.Error("expected disconnected after rejected authorization")
		}
		if f.backend.Calls() != 1 {
			t.Errorf("backend calls = %d, permanent failures must not retry", f.backend.Calls())
		}
	})

	t.Run("transient refresh failure keeps the stale connection", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Minute)
		f.backend.InvokeFunc = func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
			return nil, &services.APIError{StatusCode: http.StatusServiceUnavailable}
		}

		state, err := f.mgr.CheckConnection(context.Background(), false)
		if err == nil {
			t.Fatal("expected error")
		}
		if !state.Connected {
			t.Error("still-valid token should keep the connection alive")
		}
		if state.Health != models.HealthWarning {
			t.Errorf("health = %s, want warning", state.Health)
		}
	})
}

func TestManagerConnect(t *testing.T) {
	t.Run("saves the nonce everywhere and opens the URL", func(t *testing.T) {
		f := newFixture(t)

		url, err := f.mgr.Connect(context.Background())
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		nonce := f.dbState.Saved("user-1")
		if nonce == "" {
			t.Fatal("no nonce saved in the database store")
		}
		if got := f.fileState.Saved("user-1"); got != nonce {
			t.Errorf("file store nonce = %q, want %q", got, nonce)
		}
		if !strings.Contains(url, nonce) {
			t.Errorf("authorization URL %q does not carry the nonce", url)
		}
		if len(f.opened) != 1 || f.opened[0] != url {
			t.Errorf("opened URLs = %v, want exactly the authorization URL", f.opened)
		}
	})

	t.Run("requires a session", func(t *testing.T) {
		f := newFixture(t)
		f.session.Session = nil
		if _, err := f.mgr.Connect(context.Background()); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("error = %v, want ErrNotAuthenticated", err)
		}
	})
}

func TestManagerValidateState(t *testing.T) {
	t.Run("match in a single store passes and clears all", func(t *testing.T) {
		f := newFixture(t)
		if err := f.fileState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}

		if err := f.mgr.ValidateState("user-1", "nonce-1"); err != nil {
			t.Fatalf("ValidateState() error = %v", err)
		}
		if f.dbState.ClearCalls == 0 || f.fileState.ClearCalls == 0 {
			t.Error("expected both stores cleared after validation")
		}
	})

	t.Run("unreadable store does not block the other", func(t *testing.T) {
		f := newFixture(t)
		f.dbState.GetErr = errors.New("db locked")
		if err := f.fileState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}
		if err := f.mgr.ValidateState("user-1", "nonce-1"); err != nil {
			t.Fatalf("ValidateState() error = %v", err)
		}
	})

	t.Run("mismatch fails", func(t *testing.T) {
		f := newFixture(t)
		if err := f.dbState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}
		if err := f.mgr.ValidateState("user-1", "wrong"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
	})

	t.Run("empty nonce fails", func(t *testing.T) {
		f := newFixture(t)
		if err := f.mgr.ValidateState("user-1", ""); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
	})
}

func TestManagerCompleteConnect(t *testing.T) {
	setupOAuth := func(f *fixture) {
		f.oauth.ExchangeToken = &oauth2.Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			Expiry:       f.clock.Now().Add(time.Hour),
		}
		f.oauth.User = &services.SpotifyUser{ID: "spotify-1", DisplayName: "Mako", Email: "mako@example.com"}
	}

	t.Run("persists the connection", func(t *testing.T) {
		f := newFixture(t)
		setupOAuth(f)
		if err := f.dbState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}

		conn, err := f.mgr.CompleteConnect(context.Background(), "nonce-1", "code-1")
		if err != nil {
			t.Fatalf("CompleteConnect() error = %v", err)
		}
		if conn.SpotifyUserID() != "spotify-1" || conn.DisplayName() != "Mako" {
			t.Errorf("connection profile = %q/%q", conn.SpotifyUserID(), conn.DisplayName())
		}

		stored, err := f.store.GetByUser("user-1")
		if err != nil || stored == nil {
			t.Fatalf("stored connection = %v, err %v", stored, err)
		}
		if got := f.mgr.State(); !got.Connected {
			t.Error("expected connected state after callback")
		}
	})

	t.Run("missing refresh token is rejected", func(t *testing.T) {
		f := newFixture(t)
		setupOAuth(f)
		f.oauth.ExchangeToken.RefreshToken = ""
		if err := f.dbState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}

		if _, err := f.mgr.CompleteConnect(context.Background(), "nonce-1", "code-1"); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Fatalf("error = %v, want ErrNoRefreshToken", err)
		}
		if got := f.mgr.State(); got.Err == "" {
			t.Error("expected an error message in state")
		}
	})

	t.Run("bad nonce is rejected before exchange", func(t *testing.T) {
		f := newFixture(t)
		setupOAuth(f)

		if _, err := f.mgr.CompleteConnect(context.Background(), "forged", "code-1"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("error = %v, want ErrAuthFailed", err)
		}
	})

	t.Run("save failure surfaces as persistence error", func(t *testing.T) {
		f := newFixture(t)
		setupOAuth(f)
		f.store.UpsertErr = errors.New("disk full")
		if err := f.dbState.Save("user-1", "nonce-1"); err != nil {
			t.Fatal(err)
		}

		if _, err := f.mgr.CompleteConnect(context.Background(), "nonce-1", "code-1"); !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("error = %v, want ErrPersistence", err)
		}
	})
}

func TestManagerDisconnect(t *testing.T) {
	t.Run("removes the connection", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}

		if err := f.mgr.Disconnect(context.Background()); err != nil {
			t.Fatalf("Disconnect() error = %v", err)
		}
		if f.store.DeleteCalls != 1 {
			t.Errorf("store deletes = %d, want 1", f.store.DeleteCalls)
		}
		if got := f.mgr.State(); got.Connected {
			t.Error("expected disconnected state")
		}
	})

	t.Run("store failure still clears local state", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}
		f.store.DeleteErr = errors.New("disk gone")

		err := f.mgr.Disconnect(context.Background())
		if !errors.Is(err, shared.ErrPersistence) {
			t.Fatalf("error = %v, want ErrPersistence", err)
		}
		if got := f.mgr.State(); got.Connected {
			t.Error("local state must clear even when the store delete fails")
		}
	})
}

func TestManagerRefreshTokens(t *testing.T) {
	t.Run("updates state on success", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(10 * time.Minute)
		f.backend.InvokeFunc = func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
			if err := f.store.UpdateTokens("user-1", "new-access", "", f.clock.Now().Add(time.Hour)); err != nil {
				t.Fatal(err)
			}
			return &services.SyncResponse{Success: true}, nil
		}

		outcome, err := f.mgr.RefreshTokens(context.Background())
		if err != nil {
			t.Fatalf("RefreshTokens() error = %v", err)
		}
		if outcome.Connection.AccessToken() != "new-access" {
			t.Errorf("access token = %q", outcome.Connection.AccessToken())
		}
		if got := f.mgr.State(); !got.Connected || got.Health != models.HealthHealthy {
			t.Errorf("state = %+v, want connected and healthy", got)
		}
		if f.mgr.Monitor().Metrics().LastSuccessfulRefresh == nil {
			t.Error("expected the refresh recorded in health metrics")
		}
	})

	t.Run("no connection", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.mgr.RefreshTokens(context.Background()); !errors.Is(err, shared.ErrNotConnected) {
			t.Fatalf("error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("permanent failure marks disconnected", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(10 * time.Minute)
		f.backend.InvokeFunc = func(ctx context.Context, credential string, req services.SyncRequest) (*services.SyncResponse, error) {
			return nil, &services.APIError{StatusCode: http.StatusUnauthorized}
		}

		if _, err := f.mgr.RefreshTokens(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if got := f.mgr.State(); got.Connected || got.Err == "" {
			t.Errorf("state = %+v, want disconnected with message", got)
		}
	})
}

func TestManagerSyncLikedSongs(t *testing.T) {
	t.Run("invokes the backend with the force flag", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		f.backend.Response = &services.SyncResponse{Success: true, Data: map[string]any{"synced": float64(12)}}

		resp, err := f.mgr.SyncLikedSongs(context.Background(), true)
		if err != nil {
			t.Fatalf("SyncLikedSongs() error = %v", err)
		}
		if !resp.Success {
			t.Error("expected success")
		}
		last := f.backend.Requests[len(f.backend.Requests)-1]
		if !last.ForceFullSync || last.RefreshOnly {
			t.Errorf("request = %+v, want force full sync", last)
		}
	})

	t.Run("not connected", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.mgr.SyncLikedSongs(context.Background(), false); !errors.Is(err, shared.ErrNotConnected) {
			t.Fatalf("error = %v, want ErrNotConnected", err)
		}
	})
}

func TestManagerValidateSecurity(t *testing.T) {
	t.Run("well-formed connection passes", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		if err := f.mgr.ValidateSecurity(context.Background()); err != nil {
			t.Fatalf("ValidateSecurity() error = %v", err)
		}
		if got := f.mgr.State(); got.Health != models.HealthHealthy {
			t.Errorf("health = %s, want healthy", got.Health)
		}
	})

	t.Run("missing access token degrades health but not connectivity", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}

		broken := models.NewConnection(1, "user-1", "spotify-1")
		broken.SetRefreshToken("refresh")
		broken.SetExpiresAt(f.clock.Now().Add(time.Hour))
		f.store.Seed(broken)

		if err := f.mgr.ValidateSecurity(context.Background()); err == nil {
			t.Fatal("expected error for a tokenless row")
		}
		got := f.mgr.State()
		if got.Health != models.HealthError {
			t.Errorf("health = %s, want error", got.Health)
		}
		if !got.Connected {
			t.Error("security check must not flip the connected flag")
		}
	})

	t.Run("expiring token is a warning", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(10 * time.Minute)

		if err := f.mgr.ValidateSecurity(context.Background()); err != nil {
			t.Fatalf("ValidateSecurity() error = %v", err)
		}
		if got := f.mgr.State(); got.Health != models.HealthWarning {
			t.Errorf("health = %s, want warning", got.Health)
		}
	})

	t.Run("no connection", func(t *testing.T) {
		f := newFixture(t)
		if err := f.mgr.ValidateSecurity(context.Background()); !errors.Is(err, shared.ErrNotConnected) {
			t.Fatalf("error = %v, want ErrNotConnected", err)
		}
	})
}

func TestManagerHealthCheck(t *testing.T) {
	t.Run("rides the backend round trip", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		metrics := f.mgr.PerformHealthCheck(context.Background())
		if metrics.Status != models.StatusHealthy {
			t.Errorf("status = %s, want healthy", metrics.Status)
		}
		if f.backend.Calls() != 1 {
			t.Fatalf("backend calls = %d, want 1", f.backend.Calls())
		}
		if last := f.backend.Requests[len(f.backend.Requests)-1]; !last.HealthCheck {
			t.Errorf("request = %+v, want a health-check round trip", last)
		}
	})

	t.Run("backend failure counts against the connection", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		f.backend.Errs = []error{&services.APIError{StatusCode: http.StatusServiceUnavailable}}

		metrics := f.mgr.PerformHealthCheck(context.Background())
		if metrics.ConsecutiveFailures != 1 {
			t.Errorf("consecutive failures = %d, want 1", metrics.ConsecutiveFailures)
		}
		if metrics.Status != models.StatusCritical {
			t.Errorf("status = %s, want critical", metrics.Status)
		}
	})

	t.Run("monitoring disabled by config never starts", func(t *testing.T) {
		f := newFixtureWith(t, ManagerConfig{CheckCooldown: 5 * time.Second})
		f.mgr.StartMonitoring(context.Background())
		if f.mgr.Monitor().Running() {
			t.Error("monitor running despite health monitoring being disabled")
		}
	})
}

func TestManagerSubscribe(t *testing.T) {
	t.Run("replays the current state on subscribe", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}

		rec := &stateRecorder{}
		unsub := f.mgr.Subscribe(rec.record)
		defer unsub()

		states := rec.list()
		if len(states) != 1 || !states[0].Connected {
			t.Fatalf("replayed states = %+v, want one connected snapshot", states)
		}
	})

	t.Run("mutations notify and unsubscribe stops them", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}

		rec := &stateRecorder{}
		unsub := f.mgr.Subscribe(rec.record)

		if err := f.mgr.Disconnect(context.Background()); err != nil {
			t.Fatal(err)
		}
		states := rec.list()
		if last := states[len(states)-1]; last.Connected {
			t.Error("expected the final broadcast to be disconnected")
		}

		unsub()
		seen := len(rec.list())
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}
		if got := len(rec.list()); got != seen {
			t.Errorf("received %d states after unsubscribe, want %d", got, seen)
		}
	})

	t.Run("subscribers can call back into the manager", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)
		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}

		reentered := 0
		f.mgr.Subscribe(func(s models.ConnectionState) {
			_ = f.mgr.State()
			if _, err := f.mgr.CheckConnection(context.Background(), false); err != nil {
				t.Errorf("re-entrant CheckConnection() error = %v", err)
			}
			reentered++
		})

		if err := f.mgr.Disconnect(context.Background()); err != nil {
			t.Fatal(err)
		}
		if reentered < 2 {
			t.Errorf("subscriber ran %d times, want the replay plus the disconnect broadcast", reentered)
		}
	})

	t.Run("panicking subscriber does not break others", func(t *testing.T) {
		f := newFixture(t)
		f.seedConnection(2 * time.Hour)

		f.mgr.Subscribe(func(models.ConnectionState) { panic("bad subscriber") })
		rec := &stateRecorder{}
		f.mgr.Subscribe(rec.record)

		if _, err := f.mgr.CheckConnection(context.Background(), true); err != nil {
			t.Fatal(err)
		}
		states := rec.list()
		if !states[len(states)-1].Connected {
			t.Error("healthy subscriber missed the broadcast")
		}
	})
}

func TestManagerDestroy(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(2 * time.Hour)

	f.mgr.Destroy()
	f.mgr.Destroy() // idempotent

	if _, err := f.mgr.CheckConnection(context.Background(), false); !errors.Is(err, shared.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestAdapter(t *testing.T) {
	t.Run("drops updates that change nothing observable", func(t *testing.T) {
		f := newFixture(t)
		rec := &stateRecorder{}
		adapter := NewAdapter(f.mgr, rec.record)

		conn := models.NewConnection(1, "user-1", "spotify-1")
		conn.SetID("conn-1")

		connected := models.ConnectionState{Connected: true, Connection: conn, Health: models.HealthHealthy}
		adapter.receive(connected)
		adapter.receive(connected)
		if got := len(rec.list()); got != 1 {
			t.Fatalf("deliveries = %d, want identical update dropped", got)
		}

		degraded := connected
		degraded.Health = models.HealthWarning
		adapter.receive(degraded)
		if got := len(rec.list()); got != 2 {
			t.Errorf("deliveries = %d, want 2 after an observable change", got)
		}
	})

	t.Run("timestamp-only updates are not observable", func(t *testing.T) {
		f := newFixture(t)
		rec := &stateRecorder{}
		adapter := NewAdapter(f.mgr, rec.record)

		state := models.ConnectionState{Connected: true, LastCheck: time.Now()}
		adapter.receive(state)
		state.LastCheck = state.LastCheck.Add(time.Minute)
		adapter.receive(state)

		if got := len(rec.list()); got != 1 {
			t.Errorf("deliveries = %d, LastCheck alone must not redeliver", got)
		}
	})

	t.Run("attach replays and detach stops delivery", func(t *testing.T) {
		f := newFixture(t)
		rec := &stateRecorder{}
		adapter := NewAdapter(f.mgr, rec.record)

		adapter.Attach(context.Background())
		if got := len(rec.list()); got == 0 {
			t.Fatal("expected the current state replayed on attach")
		}

		adapter.Detach()
		adapter.Detach() // idempotent
	})
}
