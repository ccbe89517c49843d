// Backend service for invoking the spotify-sync edge function
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// BackendService implements [Backend] against the sync edge function.
//
// Calls are paced by a token-bucket limiter and bounded by a per-call timeout
// so status checks fail fast instead of hanging a health cycle.
type BackendService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewBackendService creates a client for the sync backend.
//
// requestsPerSecond <= 0 disables pacing; timeout <= 0 defaults to 5s.
func NewBackendService(baseURL string, client *http.Client, requestsPerSecond float64, timeout time.Duration) *BackendService {
	if baseURL == "" {
		baseURL = "http://localhost:8787"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &BackendService{
		baseURL:    baseURL,
		httpClient: client,
		limiter:    limiter,
		timeout:    timeout,
	}
}

// Invoke calls the sync function with the given flags and bearer credential.
//
// Non-2xx responses return an [*APIError] carrying the status code and, for
// 429 responses, the server's Retry-After hint.
func (b *BackendService) Invoke(ctx context.Context, credential string, syncReq SyncRequest) (*SyncResponse, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	payload, err := json.Marshal(syncReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/spotify-sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var syncResp SyncResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&syncResp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp),
		}
		if decodeErr == nil && syncResp.Error != "" {
			apiErr.Message = syncResp.Error
		}
		return nil, apiErr
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if !syncResp.Success && syncResp.Error != "" {
		// 200 with an application-level failure; callers classify the message.
		return &syncResp, fmt.Errorf("backend operation failed: %s", syncResp.Error)
	}

	return &syncResp, nil
}
