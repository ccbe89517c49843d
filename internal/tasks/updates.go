package tasks

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CheckStatus Phase = iota
	Authorize
	AwaitCallback
	Persist
	RefreshTokens
	SyncLibrary
)

func (p Phase) String() string {
	switch p {
	case CheckStatus:
		return "check_status"
	case Authorize:
		return "authorize"
	case AwaitCallback:
		return "await_callback"
	case Persist:
		return "persist"
	case RefreshTokens:
		return "refresh_tokens"
	case SyncLibrary:
		return "sync_library"
	default:
		return ""
	}
}

// sendUpdate delivers an update without blocking; slow consumers drop events.
func sendUpdate(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
