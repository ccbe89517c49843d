package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing client credentials")

	// Session and authentication errors
	ErrNotAuthenticated = fmt.Errorf("no active session")
	ErrNotConnected     = fmt.Errorf("no Spotify connection found")
	ErrAuthFailed       = fmt.Errorf("authentication failed")

	// Token lifecycle errors
	ErrTokenExpired      = fmt.Errorf("access token expired")
	ErrRefreshFailed     = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken    = fmt.Errorf("no refresh token available")
	ErrReconnectRequired = fmt.Errorf("spotify connection requires re-authorization")
	ErrRateLimited       = fmt.Errorf("rate limited by provider")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPersistence        = fmt.Errorf("failed to persist connection")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidState    = fmt.Errorf("invalid oauth state")
)
