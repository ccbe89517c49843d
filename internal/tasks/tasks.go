// package tasks orchestrates multi-step connection operations.
//
// The core abstraction is Engine, which drives the OAuth connect handshake
// and library syncs end to end. Operations emit progress updates via
// channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/server"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// ConnectionManager is the lifecycle surface the engine drives.
type ConnectionManager interface {
	Connect(ctx context.Context) (string, error)
	CompleteConnect(ctx context.Context, nonce, code string) (*models.Connection, error)
	CheckConnection(ctx context.Context, force bool) (models.ConnectionState, error)
	SyncLikedSongs(ctx context.Context, force bool) (*services.SyncResponse, error)
}

// SyncRunResult summarizes one liked-songs sync.
type SyncRunResult struct {
	Synced  int            // Tracks written on this run
	Skipped int            // Tracks already present
	Total   int            // Tracks examined
	Data    map[string]any // Raw backend payload for display layers
}

// Engine defines the long-running connection operations.
type Engine interface {
	// ConnectFlow runs the full OAuth handshake: starts the loopback callback
	// server, opens the authorization URL, and waits for the redirect.
	ConnectFlow(ctx context.Context, progress chan<- ProgressUpdate) (*models.Connection, error)

	// SyncFlow verifies the connection and runs a liked-songs sync.
	SyncFlow(ctx context.Context, progress chan<- ProgressUpdate, force bool) (*SyncRunResult, error)
}

// LifecycleEngine implements [Engine] over a connection manager and a
// short-lived loopback callback server.
type LifecycleEngine struct {
	manager ConnectionManager
	addr    string
	timeout time.Duration
	logger  *log.Logger
}

// NewLifecycleEngine creates an engine binding callbacks to addr, e.g.
// "127.0.0.1:8080". The timeout bounds how long ConnectFlow waits for the
// user to finish authorizing in the browser.
func NewLifecycleEngine(manager ConnectionManager, addr string, timeout time.Duration, logger *log.Logger) *LifecycleEngine {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LifecycleEngine{
		manager: manager,
		addr:    addr,
		timeout: timeout,
		logger:  shared.ComponentLogger(logger, "tasks"),
	}
}

// ConnectFlow runs the OAuth handshake end to end.
//
// The AwaitCallback update carries the bound callback address in Data so
// advanced consumers (and tests) can reach the listener.
func (e *LifecycleEngine) ConnectFlow(ctx context.Context, progress chan<- ProgressUpdate) (*models.Connection, error) {
	handler := server.NewCallbackHandler(e.manager, 30*time.Second)
	router := server.NewBasicRouter()
	router.Use(server.Logging(e.logger))
	router.Handler(handler)

	srv := server.NewCallbackServer(e.addr, router, e.logger)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", e.addr, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("callback listener shutdown failed", "error", err)
		}
	}()

	sendUpdate(progress, ProgressUpdate{Phase: Authorize, Step: 1, Total: 3, Message: "Opening the Spotify authorization page..."})

	url, err := e.manager.Connect(ctx)
	if err != nil {
		return nil, err
	}

	sendUpdate(progress, ProgressUpdate{
		Phase:   AwaitCallback,
		Step:    2,
		Total:   3,
		Message: "Waiting for you to authorize in the browser...",
		Data:    map[string]string{"url": url, "callback": srv.Addr()},
	})

	select {
	case result := <-handler.Result():
		if result.Error() != nil {
			return nil, result.Error()
		}
		sendUpdate(progress, ProgressUpdate{Phase: Persist, Step: 3, Total: 3, Message: "Spotify connection saved."})
		return result.Connection, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: authorization not completed: %w", shared.ErrTimeout, ctx.Err())
	case <-time.After(e.timeout):
		return nil, fmt.Errorf("%w: no authorization callback within %s", shared.ErrTimeout, e.timeout)
	}
}

// SyncFlow verifies the connection then invokes the backend sync.
func (e *LifecycleEngine) SyncFlow(ctx context.Context, progress chan<- ProgressUpdate, force bool) (*SyncRunResult, error) {
	sendUpdate(progress, ProgressUpdate{Phase: CheckStatus, Step: 1, Total: 2, Message: "Checking your Spotify connection..."})

	state, err := e.manager.CheckConnection(ctx, false)
	if err != nil {
		return nil, err
	}
	if !state.Connected {
		return nil, shared.ErrNotConnected
	}

	sendUpdate(progress, ProgressUpdate{Phase: SyncLibrary, Step: 2, Total: 2, Message: "Syncing liked songs..."})

	resp, err := e.manager.SyncLikedSongs(ctx, force)
	if err != nil {
		return nil, err
	}

	result := &SyncRunResult{Data: resp.Data}
	result.Synced = intField(resp.Data, "synced")
	result.Skipped = intField(resp.Data, "skipped")
	result.Total = intField(resp.Data, "total")
	if result.Total == 0 {
		result.Total = result.Synced + result.Skipped
	}

	e.logger.Info("sync completed", "synced", result.Synced, "skipped", result.Skipped, "total", result.Total)
	return result, nil
}

// intField reads a numeric field from a decoded JSON payload.
// encoding/json decodes numbers into float64.
func intField(data map[string]any, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
