package lifecycle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

const (
	defaultCheckCooldown = 5 * time.Second
	defaultCheckTimeout  = 5 * time.Second
)

// ManagerConfig bounds the manager's check and retry behavior and carries
// the lifecycle feature toggles.
type ManagerConfig struct {
	CheckCooldown  time.Duration
	CheckTimeout   time.Duration
	HealthInterval time.Duration
	Retry          RetryConfig

	// AutoRefresh lets status checks refresh a stale token in place.
	// Disabled, a stale token is only reported, never refreshed.
	AutoRefresh bool

	// HealthMonitoring permits the periodic probe loop. One-shot health
	// checks work regardless.
	HealthMonitoring bool

	// SecurityValidation adds a stored-row shape check to every probe.
	SecurityValidation bool

	// ExpiryWarning overrides the monitor's token expiry-warning window.
	ExpiryWarning time.Duration

	// MaxFailures overrides the consecutive-failure count that escalates
	// the connection-lost alert.
	MaxFailures int
}

// ManagerDeps are the manager's injected collaborators.
//
// States holds the nonce stores consulted during OAuth callback validation;
// a nonce matching ANY of them passes, so the flow survives one store going
// missing mid-handshake.
type ManagerDeps struct {
	Store   TokenStore
	States  []StateStore
	Session services.SessionProvider
	OAuth   services.OAuthService
	Backend services.Backend
	OpenURL func(url string) error
	Logger  *log.Logger
}

// Manager owns the connection lifecycle for the active user: status checks,
// the OAuth connect handshake, token refresh, disconnect, sync, and health
// monitoring. It is the single writer of [models.ConnectionState]; everyone
// else observes through Subscribe.
//
// Construct with New and release with Destroy. All exported methods are safe
// for concurrent use.
type Manager struct {
	cfg   ManagerConfig
	deps  ManagerDeps
	retry RetryConfig

	logger    *log.Logger
	refresher *RefreshEngine
	monitor   *Monitor
	flight    singleflight.Group

	mu            sync.Mutex
	state         models.ConnectionState
	lastCheckErr  error
	subscribers   map[string]func(models.ConnectionState)
	cancelRefresh func()
	destroyed     bool
	now           func() time.Time
}

// New creates a lifecycle manager. Zero config durations fall back to the
// 5s cooldown, 5s timeout, and 5m health interval defaults.
func New(cfg ManagerConfig, deps ManagerDeps) *Manager {
	if cfg.CheckCooldown <= 0 {
		cfg.CheckCooldown = defaultCheckCooldown
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	cfg.Retry = cfg.Retry.normalized()

	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.OpenURL == nil {
		deps.OpenURL = shared.OpenBrowser
	}

	m := &Manager{
		cfg:         cfg,
		deps:        deps,
		retry:       cfg.Retry,
		logger:      shared.ComponentLogger(deps.Logger, "lifecycle"),
		refresher:   NewRefreshEngine(deps.Store, deps.Session, deps.OAuth, deps.Backend, cfg.Retry, deps.Logger),
		subscribers: make(map[string]func(models.ConnectionState)),
		state:       models.ConnectionState{Health: models.HealthUnknown},
		now:         time.Now,
	}
	m.monitor = NewMonitor(m.healthProbe, cfg.HealthInterval, deps.Logger)
	m.monitor.SetLimits(cfg.MaxFailures, cfg.ExpiryWarning, 0)
	return m
}

// healthProbe is the monitor's check function: the local status probe plus a
// lightweight backend round trip, so the measured response time covers the
// path syncs actually take.
func (m *Manager) healthProbe(ctx context.Context) (*models.ConnectionState, error) {
	state, err := m.CheckConnection(ctx, true)
	if err != nil || !state.Connected {
		return &state, err
	}

	credential, err := m.deps.Session.AccessCredential()
	if err != nil || credential == "" {
		return &state, shared.ErrNotAuthenticated
	}
	if _, err := m.deps.Backend.Invoke(ctx, credential, services.SyncRequest{HealthCheck: true}); err != nil {
		return &state, fmt.Errorf("backend health check failed: %w", err)
	}
	return &state, nil
}

// SetClock replaces the manager's time source and propagates the sleep
// function to the refresh engine. Test hook.
func (m *Manager) SetClock(now func() time.Time, sleep SleepFunc) {
	m.mu.Lock()
	if now != nil {
		m.now = now
	}
	m.mu.Unlock()
	m.refresher.SetClock(now, sleep)
	if now != nil {
		m.monitor.SetNow(now)
	}
}

// Monitor exposes the health monitor for alert queries and listeners.
func (m *Manager) Monitor() *Monitor { return m.monitor }

// State returns a snapshot of the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Snapshot()
}

// Subscribe registers a listener and immediately replays the current state
// to it. Returns an unsubscribe function.
func (m *Manager) Subscribe(fn func(models.ConnectionState)) func() {
	m.mu.Lock()
	id := shared.GenerateID()
	m.subscribers[id] = fn
	current := m.state.Snapshot()
	m.mu.Unlock()

	notify(fn, current)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}

// CheckConnection determines the current connection status.
//
// Non-forced calls inside the cooldown window return the cached state and
// cached error without touching any collaborator; concurrent non-forced
// calls coalesce into a single underlying check. Forced calls always probe.
func (m *Manager) CheckConnection(ctx context.Context, force bool) (models.ConnectionState, error) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return models.ConnectionState{}, fmt.Errorf("%w: manager destroyed", shared.ErrInvalidState)
	}
	if !force && !m.state.LastCheck.IsZero() && m.now().Sub(m.state.LastCheck) < m.cfg.CheckCooldown {
		state, err := m.state.Snapshot(), m.lastCheckErr
		m.mu.Unlock()
		return state, err
	}
	m.mu.Unlock()

	if force {
		return m.runCheck(ctx)
	}

	type checkResult struct {
		state models.ConnectionState
		err   error
	}
	v, _, _ := m.flight.Do("check", func() (any, error) {
		state, err := m.runCheck(ctx)
		return checkResult{state, err}, nil
	})
	res := v.(checkResult)
	return res.state, res.err
}

// runCheck performs the real status probe and publishes the result.
func (m *Manager) runCheck(ctx context.Context) (models.ConnectionState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	m.merge(func(s *models.ConnectionState) { s.Loading = true })

	state, err := m.probe(ctx)
	state.Loading = false
	state.LastCheck = m.now()

	m.mu.Lock()
	m.state = state
	m.lastCheckErr = err
	subs := m.subscriberList()
	snapshot := m.state.Snapshot()
	m.mu.Unlock()

	for _, fn := range subs {
		notify(fn, snapshot)
	}

	m.scheduleNextRefresh(state.Connection)
	return snapshot, err
}

// probe computes the connection state from the session and token store,
// refreshing proactively when the token is inside the refresh lead.
func (m *Manager) probe(ctx context.Context) (models.ConnectionState, error) {
	session, err := m.deps.Session.CurrentUser()
	if err != nil {
		return models.ConnectionState{Err: err.Error(), Health: models.HealthError}, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return models.ConnectionState{Err: shared.ErrNotAuthenticated.Error(), Health: models.HealthUnknown}, shared.ErrNotAuthenticated
	}

	conn, err := m.deps.Store.GetByUser(session.UserID())
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", shared.ErrPersistence, err)
		return models.ConnectionState{Err: wrapped.Error(), Health: models.HealthError}, wrapped
	}
	if conn == nil {
		// Not an error, but the state names the condition for callers
		// that render it.
		return models.ConnectionState{Err: shared.ErrNotConnected.Error(), Health: models.HealthUnknown}, nil
	}

	if m.cfg.SecurityValidation {
		if err := validateConnectionShape(conn, session.UserID()); err != nil {
			verdict := Classify(m.deps.OAuth.Name(), err)
			return models.ConnectionState{
				Connected:  true,
				Connection: conn,
				Err:        verdict.UserMessage,
				Health:     models.HealthError,
			}, err
		}
	}

	health := ValidateTokenHealth(conn, m.now())
	if health.NeedsRefresh && !m.cfg.AutoRefresh {
		state := models.ConnectionState{Connected: true, Connection: conn, Health: models.HealthWarning}
		if !health.Valid {
			state.Health = models.HealthError
			state.Err = shared.ErrTokenExpired.Error()
		}
		return state, nil
	}
	if health.NeedsRefresh {
		outcome, refreshErr := m.refresher.RefreshWithRetry(ctx, conn, &m.retry)
		if refreshErr != nil {
			m.monitor.RecordRefreshFailure(refreshErr)
			verdict := Classify(m.deps.OAuth.Name(), refreshErr)
			state := models.ConnectionState{
				Connection: conn,
				Err:        verdict.UserMessage,
				Health:     models.HealthError,
			}
			// Stale but usable tokens keep the connection alive through
			// transient refresh failures.
			if health.Valid && !verdict.Permanent {
				state.Connected = true
				state.Health = models.HealthWarning
			}
			return state, refreshErr
		}
		m.monitor.RecordRefresh(m.now())
		conn = outcome.Connection
	}

	return models.ConnectionState{
		Connected:  true,
		Connection: conn,
		Health:     models.HealthHealthy,
	}, nil
}

// Connect starts the OAuth handshake: generates a state nonce, persists it
// to every nonce store, and opens the provider authorization URL.
func (m *Manager) Connect(ctx context.Context) (string, error) {
	session, err := m.requireSession()
	if err != nil {
		return "", err
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	for _, store := range m.deps.States {
		if err := store.Save(session.UserID(), nonce); err != nil {
			return "", fmt.Errorf("%w: failed to save oauth state: %w", shared.ErrPersistence, err)
		}
	}

	url := m.deps.OAuth.AuthURL(nonce)

	m.merge(func(s *models.ConnectionState) {
		s.Loading = true
		s.Err = ""
	})

	m.logger.Info("opening authorization URL", "provider", m.deps.OAuth.Name())
	if err := m.deps.OpenURL(url); err != nil {
		m.logger.Warn("could not open browser, visit the URL manually", "error", err)
	}
	return url, nil
}

// ValidateState checks the callback nonce against every nonce store.
// A match in any store passes; all stores are cleared on success.
func (m *Manager) ValidateState(userID, nonce string) error {
	if nonce == "" {
		return fmt.Errorf("%w: empty oauth state", shared.ErrAuthFailed)
	}

	matched := false
	for _, store := range m.deps.States {
		saved, err := store.Get(userID)
		if err != nil {
			m.logger.Warn("oauth state store unreadable", "error", err)
			continue
		}
		if saved != "" && saved == nonce {
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: oauth state mismatch", shared.ErrAuthFailed)
	}

	for _, store := range m.deps.States {
		if err := store.Clear(userID); err != nil {
			m.logger.Warn("failed to clear oauth state", "error", err)
		}
	}
	return nil
}

// CompleteConnect finishes the handshake after the provider callback:
// validates the nonce, exchanges the code, fetches the profile, and persists
// the connection.
func (m *Manager) CompleteConnect(ctx context.Context, nonce, code string) (*models.Connection, error) {
	session, err := m.requireSession()
	if err != nil {
		return nil, err
	}

	if err := m.ValidateState(session.UserID(), nonce); err != nil {
		m.publishError(err)
		return nil, err
	}

	token, err := m.deps.OAuth.Exchange(ctx, code)
	if err != nil {
		err = fmt.Errorf("%w: code exchange failed: %w", shared.ErrAuthFailed, err)
		m.publishError(err)
		return nil, err
	}
	if token.RefreshToken == "" {
		m.publishError(shared.ErrNoRefreshToken)
		return nil, shared.ErrNoRefreshToken
	}

	profile, err := m.deps.OAuth.Profile(ctx, token)
	if err != nil {
		err = fmt.Errorf("failed to fetch %s profile: %w", m.deps.OAuth.Name(), err)
		m.publishError(err)
		return nil, err
	}

	conn := models.NewConnection(0, session.UserID(), profile.ID)
	conn.SetTokens(token.AccessToken, token.RefreshToken, token.Expiry)
	conn.SetDisplayName(profile.DisplayName)
	conn.SetEmail(profile.Email)

	if err := m.deps.Store.Upsert(conn); err != nil {
		err = fmt.Errorf("%w: failed to save connection: %w", shared.ErrPersistence, err)
		m.publishError(err)
		return nil, err
	}

	m.merge(func(s *models.ConnectionState) {
		s.Connected = true
		s.Loading = false
		s.Connection = conn
		s.Err = ""
		s.LastCheck = m.now()
		s.Health = models.HealthHealthy
	})
	m.scheduleNextRefresh(conn)

	m.logger.Info("connected", "provider", m.deps.OAuth.Name(), "account", profile.DisplayName)
	return conn, nil
}

// Disconnect removes the stored connection. Local state is always cleared,
// even when the store delete fails, so the user is never stuck connected.
func (m *Manager) Disconnect(ctx context.Context) error {
	session, err := m.requireSession()
	if err != nil {
		return err
	}

	deleteErr := m.deps.Store.DeleteByUser(session.UserID())
	for _, store := range m.deps.States {
		if err := store.Clear(session.UserID()); err != nil {
			m.logger.Warn("failed to clear oauth state", "error", err)
		}
	}

	m.mu.Lock()
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	m.mu.Unlock()

	m.merge(func(s *models.ConnectionState) {
		*s = models.ConnectionState{LastCheck: m.now(), Health: models.HealthUnknown}
	})

	if deleteErr != nil {
		m.logger.Warn("connection removed locally but the store delete failed", "error", deleteErr)
		return fmt.Errorf("%w: %w", shared.ErrPersistence, deleteErr)
	}

	m.logger.Info("disconnected", "provider", m.deps.OAuth.Name())
	return nil
}

// RefreshTokens forces a token refresh for the active user's connection.
func (m *Manager) RefreshTokens(ctx context.Context) (*RefreshOutcome, error) {
	session, err := m.requireSession()
	if err != nil {
		return nil, err
	}

	conn, err := m.deps.Store.GetByUser(session.UserID())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
	if conn == nil {
		return nil, shared.ErrNotConnected
	}

	outcome, err := m.refresher.RefreshWithRetry(ctx, conn, nil)
	if err != nil {
		m.monitor.RecordRefreshFailure(err)
		verdict := Classify(m.deps.OAuth.Name(), err)
		m.merge(func(s *models.ConnectionState) {
			s.Err = verdict.UserMessage
			if verdict.Permanent {
				s.Connected = false
				s.Health = models.HealthError
			} else {
				s.Health = models.HealthWarning
			}
		})
		return nil, err
	}

	m.monitor.RecordRefresh(m.now())
	m.merge(func(s *models.ConnectionState) {
		s.Connected = true
		s.Connection = outcome.Connection
		s.Err = ""
		s.Health = models.HealthHealthy
	})
	m.scheduleNextRefresh(outcome.Connection)
	return outcome, nil
}

// SyncLikedSongs invokes the backend liked-songs sync for the active user.
func (m *Manager) SyncLikedSongs(ctx context.Context, force bool) (*services.SyncResponse, error) {
	if _, err := m.requireSession(); err != nil {
		return nil, err
	}

	credential, err := m.deps.Session.AccessCredential()
	if err != nil || credential == "" {
		return nil, shared.ErrNotAuthenticated
	}

	state, err := m.CheckConnection(ctx, false)
	if err != nil {
		return nil, err
	}
	if !state.Connected {
		return nil, shared.ErrNotConnected
	}

	resp, err := m.deps.Backend.Invoke(ctx, credential, services.SyncRequest{ForceFullSync: force})
	if err != nil {
		verdict := Classify("sync backend", err)
		m.merge(func(s *models.ConnectionState) { s.Err = verdict.UserMessage })
		return resp, err
	}
	return resp, nil
}

// PerformHealthCheck runs one monitor cycle immediately.
func (m *Manager) PerformHealthCheck(ctx context.Context) models.HealthMetrics {
	return m.monitor.RunCycle(ctx)
}

// ValidateSecurity runs the on-demand security check: the stored connection
// must belong to the active user and carry a complete token set. It updates
// the health in state but never the connected flag.
func (m *Manager) ValidateSecurity(ctx context.Context) error {
	session, err := m.requireSession()
	if err != nil {
		return err
	}

	conn, err := m.deps.Store.GetByUser(session.UserID())
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
	}
	if conn == nil {
		return shared.ErrNotConnected
	}

	if err := validateConnectionShape(conn, session.UserID()); err != nil {
		verdict := Classify(m.deps.OAuth.Name(), err)
		m.merge(func(s *models.ConnectionState) {
			s.Err = verdict.UserMessage
			s.Health = models.HealthError
		})
		return err
	}

	health := ValidateTokenHealth(conn, m.now())
	m.merge(func(s *models.ConnectionState) {
		s.Err = ""
		switch {
		case !health.Valid:
			s.Health = models.HealthError
		case health.Status == models.TokenExpiring:
			s.Health = models.HealthWarning
		default:
			s.Health = models.HealthHealthy
		}
	})
	return nil
}

// StartMonitoring begins periodic health checks. A no-op when health
// monitoring is disabled by config.
func (m *Manager) StartMonitoring(ctx context.Context) {
	if !m.cfg.HealthMonitoring {
		m.logger.Debug("health monitoring disabled by config")
		return
	}
	m.monitor.Start(ctx)
}

// StopMonitoring halts periodic health checks.
func (m *Manager) StopMonitoring() { m.monitor.Stop() }

// Destroy releases the manager: stops monitoring, cancels any scheduled
// refresh, and drops all subscribers. The manager is unusable afterwards.
func (m *Manager) Destroy() {
	m.monitor.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.destroyed = true
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	m.subscribers = make(map[string]func(models.ConnectionState))
}

// merge applies a mutation under the state lock and broadcasts the resulting
// snapshot after releasing it. Subscribers may call back into the manager
// from their callbacks.
func (m *Manager) merge(mutate func(*models.ConnectionState)) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}

	mutate(&m.state)
	snapshot := m.state.Snapshot()
	subs := m.subscriberList()
	m.mu.Unlock()

	for _, fn := range subs {
		notify(fn, snapshot)
	}
}

func (m *Manager) publishError(err error) {
	verdict := Classify(m.deps.OAuth.Name(), err)
	m.merge(func(s *models.ConnectionState) {
		s.Loading = false
		s.Err = verdict.UserMessage
		s.Health = models.HealthError
	})
}

// scheduleNextRefresh re-arms the proactive refresh timer for the connection,
// replacing any previously scheduled one.
func (m *Manager) scheduleNextRefresh(conn *models.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelRefresh != nil {
		m.cancelRefresh()
		m.cancelRefresh = nil
	}
	if m.destroyed || conn == nil {
		return
	}

	m.cancelRefresh = m.refresher.ScheduleRefresh(conn, func(outcome *RefreshOutcome, err error) {
		if err != nil {
			m.monitor.RecordRefreshFailure(err)
			m.publishError(err)
			return
		}
		m.monitor.RecordRefresh(m.now())
		m.merge(func(s *models.ConnectionState) {
			s.Connection = outcome.Connection
			s.Err = ""
			s.Health = models.HealthHealthy
		})
		m.scheduleNextRefresh(outcome.Connection)
	})
}

func (m *Manager) subscriberList() []func(models.ConnectionState) {
	subs := make([]func(models.ConnectionState), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func (m *Manager) requireSession() (*models.Session, error) {
	session, err := m.deps.Session.CurrentUser()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return session, nil
}

// validateConnectionShape checks the stored row's basic integrity: owned by
// the expected user, both tokens present, expiry and provider account set.
func validateConnectionShape(conn *models.Connection, userID string) error {
	if conn.UserID() != userID {
		return fmt.Errorf("%w: connection belongs to another user", shared.ErrInvalidState)
	}
	if conn.AccessToken() == "" {
		return fmt.Errorf("%w: connection has no access token", shared.ErrInvalidState)
	}
	if !conn.HasRefreshToken() {
		return shared.ErrNoRefreshToken
	}
	if conn.ExpiresAt().IsZero() {
		return fmt.Errorf("%w: connection has no token expiry", shared.ErrInvalidState)
	}
	if conn.SpotifyUserID() == "" {
		return fmt.Errorf("%w: connection has no provider account", shared.ErrInvalidState)
	}
	return nil
}

// generateNonce returns 32 bytes of hex-encoded randomness for the OAuth
// state parameter.
func generateNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// notify shields the manager from panicking subscribers.
func notify(fn func(models.ConnectionState), state models.ConnectionState) {
	defer func() { _ = recover() }()
	fn(state)
}
