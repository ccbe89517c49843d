package lifecycle

import (
	"context"
	"sync"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

// Adapter bridges the manager's state broadcast to a consumer callback.
//
// Updates that change nothing the consumer can observe are dropped by a
// shallow comparison, so chatty merge cycles do not redraw UIs. Attach kicks
// off an initial non-forced check in the background; broadcasts run after
// the manager releases its state lock, so callbacks may call back into it.
type Adapter struct {
	manager  *Manager
	onChange func(models.ConnectionState)

	mu          sync.Mutex
	last        models.ConnectionState
	seen        bool
	unsubscribe func()
}

// NewAdapter creates an adapter delivering deduplicated state updates to onChange.
func NewAdapter(manager *Manager, onChange func(models.ConnectionState)) *Adapter {
	return &Adapter{manager: manager, onChange: onChange}
}

// Attach subscribes to the manager and triggers an initial connection check.
// Attaching an already attached adapter is a no-op.
func (a *Adapter) Attach(ctx context.Context) {
	a.mu.Lock()
	if a.unsubscribe != nil {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	unsub := a.manager.Subscribe(a.receive)

	a.mu.Lock()
	a.unsubscribe = unsub
	a.mu.Unlock()

	// Deferred so the subscription's replayed snapshot lands first.
	go func() {
		_, _ = a.manager.CheckConnection(ctx, false)
	}()
}

// Detach unsubscribes from the manager. Safe to call repeatedly.
func (a *Adapter) Detach() {
	a.mu.Lock()
	unsub := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Last returns the most recently delivered state.
func (a *Adapter) Last() models.ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Adapter) receive(state models.ConnectionState) {
	a.mu.Lock()
	if a.seen && !stateChanged(a.last, state) {
		a.mu.Unlock()
		return
	}
	a.last = state
	a.seen = true
	a.mu.Unlock()

	a.onChange(state)
}

// stateChanged is the shallow comparison deciding whether an update is worth
// delivering. Connection identity stands in for the whole record.
func stateChanged(prev, next models.ConnectionState) bool {
	if prev.Connected != next.Connected || prev.Loading != next.Loading ||
		prev.Err != next.Err || prev.Health != next.Health {
		return true
	}
	return connectionID(prev.Connection) != connectionID(next.Connection)
}

func connectionID(c *models.Connection) string {
	if c == nil {
		return ""
	}
	return c.ID()
}
