package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
)

// ConnectCompleter finishes the handshake once the provider redirects back
// with a state nonce and authorization code.
type ConnectCompleter interface {
	CompleteConnect(ctx context.Context, nonce, code string) (*models.Connection, error)
}

// CallbackResult is the outcome of one authorization callback.
type CallbackResult struct {
	Connection *models.Connection
	err        error
}

func (r *CallbackResult) Error() error {
	return r.err
}

// CallbackHandler serves the provider redirect endpoint.
//
// Exactly one callback is processed; later hits get a 400. The outcome is
// delivered once on the Result channel, which is then closed.
type CallbackHandler struct {
	completer  ConnectCompleter
	timeout    time.Duration
	resultChan chan CallbackResult

	once sync.Once
	mu   sync.Mutex
	hit  bool
}

// NewCallbackHandler creates a handler delegating callback completion to the
// given completer. The timeout bounds the exchange-and-persist work.
func NewCallbackHandler(completer ConnectCompleter, timeout time.Duration) *CallbackHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CallbackHandler{
		completer:  completer,
		timeout:    timeout,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP handles the provider redirect.
//
// Denial and missing-code redirects fail the handshake without touching the
// completer; otherwise the nonce and code are handed off and the outcome
// decides the page shown to the user.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		err := fmt.Errorf("authorization denied: %s - %s", errParam, query.Get("error_description"))
		h.send(CallbackResult{err: err})
		h.writeFailure(w, "Spotify reported the authorization was denied.")
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization callback carried no code")
		h.send(CallbackResult{err: err})
		h.writeFailure(w, "The callback was missing an authorization code.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	conn, err := h.completer.CompleteConnect(ctx, query.Get("state"), code)
	if err != nil {
		h.send(CallbackResult{err: err})
		h.writeFailure(w, "Connecting your Spotify account failed. Return to the terminal for details.")
		return
	}

	h.send(CallbackResult{Connection: conn})
	h.writeSuccess(w, conn.DisplayName())
}

// Result returns the channel carrying the single handshake outcome.
// The channel is closed after delivery.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

func (h *CallbackHandler) writeSuccess(w http.ResponseWriter, account string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, callbackPage,
		"Spotify Connected",
		"#1DB954",
		"✓ Spotify Connected",
		fmt.Sprintf("Connected as %s. You can close this window and return to the terminal.", account))
}

func (h *CallbackHandler) writeFailure(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, callbackPage,
		"Connection Failed",
		"#E22134",
		"✗ Connection Failed",
		message)
}

const callbackPage = `
<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: %s; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`
