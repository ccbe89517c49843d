package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

const (
	// refreshLead is how far before expiry a proactive refresh fires.
	refreshLead = 5 * time.Minute

	// expiryWarning is the window in which a token counts as expiring.
	expiryWarning = 30 * time.Minute
)

// TokenHealth is the freshness verdict for one connection's token pair.
type TokenHealth struct {
	Valid           bool
	NeedsRefresh    bool
	TimeUntilExpiry time.Duration
	Status          models.TokenHealthStatus
}

// ValidateTokenHealth classifies the connection's token freshness at the given instant.
//
// Expired at or past expiry; needs-refresh under 5 minutes out; expiring-only
// under 30 minutes; otherwise valid. A missing expiry is invalid and needs refresh.
func ValidateTokenHealth(conn *models.Connection, now time.Time) TokenHealth {
	return validateTokenWindows(conn, now, refreshLead, expiryWarning)
}

// validateTokenWindows is ValidateTokenHealth with explicit refresh-lead and
// expiry-warning windows, for callers that tune them.
func validateTokenWindows(conn *models.Connection, now time.Time, lead, warning time.Duration) TokenHealth {
	if conn == nil || conn.ExpiresAt().IsZero() {
		return TokenHealth{NeedsRefresh: true, Status: models.TokenInvalid}
	}

	until := conn.ExpiresAt().Sub(now)

	switch {
	case until <= 0:
		return TokenHealth{NeedsRefresh: true, Status: models.TokenExpired}
	case until < lead:
		return TokenHealth{Valid: true, NeedsRefresh: true, TimeUntilExpiry: until, Status: models.TokenExpiring}
	case until < warning:
		return TokenHealth{Valid: true, TimeUntilExpiry: until, Status: models.TokenExpiring}
	default:
		return TokenHealth{Valid: true, TimeUntilExpiry: until, Status: models.TokenValid}
	}
}

// RefreshOutcome reports the final result of a refresh sequence.
type RefreshOutcome struct {
	Connection *models.Connection
	ExpiresAt  time.Time
	Attempts   int
}

// RefreshEngine performs token refresh round trips against the backend.
//
// One attempt: resolve the session credential (absent fails fast as
// permanent), invoke the backend refresh operation, then re-read the updated
// connection from the token store. When the backend reports success without
// the stored expiry moving forward, the engine performs the refresh grant
// itself and persists the new token pair.
type RefreshEngine struct {
	store   TokenStore
	session services.SessionProvider
	oauth   services.OAuthService
	backend services.Backend
	retry   RetryConfig
	logger  *log.Logger

	sleep SleepFunc
	now   func() time.Time
}

// NewRefreshEngine creates a refresh engine with the given collaborators.
func NewRefreshEngine(store TokenStore, session services.SessionProvider, oauth services.OAuthService, backend services.Backend, retry RetryConfig, logger *log.Logger) *RefreshEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshEngine{
		store:   store,
		session: session,
		oauth:   oauth,
		backend: backend,
		retry:   retry.normalized(),
		logger:  shared.ComponentLogger(logger, "refresh"),
		sleep:   ContextSleep,
		now:     time.Now,
	}
}

// SetClock replaces the time source and sleep function. Test hook.
func (e *RefreshEngine) SetClock(now func() time.Time, sleep SleepFunc) {
	if now != nil {
		e.now = now
	}
	if sleep != nil {
		e.sleep = sleep
	}
}

// RefreshWithRetry refreshes the connection's tokens, retrying transient
// failures per the engine's retry config (or cfg when non-nil).
//
// Permanent errors (rejected refresh token, no session) surface immediately;
// transient errors surface only after retries are exhausted.
func (e *RefreshEngine) RefreshWithRetry(ctx context.Context, conn *models.Connection, cfg *RetryConfig) (*RefreshOutcome, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: no connection to refresh", shared.ErrNotConnected)
	}
	if !conn.HasRefreshToken() {
		return nil, shared.ErrNoRefreshToken
	}

	retryCfg := e.retry
	if cfg != nil {
		retryCfg = cfg.normalized()
	}

	retryer := NewRetryer("Spotify", retryCfg, e.logger)
	retryer.SetSleep(e.sleep)

	var refreshed *models.Connection

	attempts, err := retryer.Do(ctx, func(ctx context.Context) error {
		prevExpiry := conn.ExpiresAt()

		credential, err := e.session.AccessCredential()
		if err != nil {
			return fmt.Errorf("failed to resolve session: %w", err)
		}
		if credential == "" {
			return shared.ErrNotAuthenticated
		}

		if _, err := e.backend.Invoke(ctx, credential, services.SyncRequest{RefreshOnly: true}); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
		}

		// The backend rewrote the row; pick up the new expiry.
		updated, err := e.store.GetByUser(conn.UserID())
		if err != nil {
			return fmt.Errorf("failed to re-read connection: %w", err)
		}
		if updated == nil {
			return fmt.Errorf("%w: connection disappeared during refresh", shared.ErrReconnectRequired)
		}

		// A backend running out of process cannot touch this store. When the
		// expiry did not advance, run the grant locally and persist it.
		if !updated.ExpiresAt().After(prevExpiry) {
			token, err := e.oauth.Refresh(ctx, updated.RefreshToken())
			if err != nil {
				return fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
			}
			if err := e.store.UpdateTokens(conn.UserID(), token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
				return fmt.Errorf("%w: %w", shared.ErrPersistence, err)
			}
			updated, err = e.store.GetByUser(conn.UserID())
			if err != nil {
				return fmt.Errorf("failed to re-read connection: %w", err)
			}
			if updated == nil {
				return fmt.Errorf("%w: connection disappeared during refresh", shared.ErrReconnectRequired)
			}
		}

		refreshed = updated
		return nil
	})
	if err != nil {
		e.logger.Error("token refresh failed", "user", conn.UserID(), "attempts", attempts, "error", err)
		return nil, err
	}

	e.logger.Info("token refresh succeeded", "user", conn.UserID(), "attempts", attempts, "expires_at", refreshed.ExpiresAt())

	return &RefreshOutcome{
		Connection: refreshed,
		ExpiresAt:  refreshed.ExpiresAt(),
		Attempts:   attempts,
	}, nil
}

// ScheduleRefresh arms a one-shot timer firing at max(1s, untilExpiry - 5m)
// that refreshes the connection and reports the outcome to onDone.
//
// Returns a cancellation handle; callers must invoke it on teardown. An
// already expired or invalid token returns a no-op handle without scheduling.
func (e *RefreshEngine) ScheduleRefresh(conn *models.Connection, onDone func(*RefreshOutcome, error)) func() {
	health := ValidateTokenHealth(conn, e.now())
	if !health.Valid {
		return func() {}
	}

	delay := health.TimeUntilExpiry - refreshLead
	if delay < time.Second {
		delay = time.Second
	}

	e.logger.Debug("scheduled proactive refresh", "user", conn.UserID(), "in", delay)

	timer := time.AfterFunc(delay, func() {
		outcome, err := e.RefreshWithRetry(context.Background(), conn, nil)
		if onDone != nil {
			onDone(outcome, err)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() { timer.Stop() })
	}
}
