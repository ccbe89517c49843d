package lifecycle

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
)

// defaultRetryAfter applies when a rate-limited response carries no hint.
const defaultRetryAfter = 60 * time.Second

// Classification is the verdict for one raw failure from a named subsystem.
type Classification struct {
	Severity    models.AlertSeverity
	UserMessage string
	Permanent   bool
	RateLimited bool
	RetryAfter  time.Duration // populated only when RateLimited
}

// Classify maps a raw error from the named service to a taxonomy bucket and a
// remediation message. Pure; no side effects.
//
// Permanent failures (never retried): rejected or missing refresh tokens,
// unauthorized/forbidden responses, explicit reconnect signals, absent
// sessions, and missing client configuration. Everything else is transient.
func Classify(service string, err error) Classification {
	if err == nil {
		return Classification{Severity: models.SeverityInfo}
	}

	switch {
	case errors.Is(err, shared.ErrNoRefreshToken):
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Spotify did not grant a refresh token. Reconnect your Spotify account.",
			Permanent:   true,
		}
	case errors.Is(err, shared.ErrReconnectRequired):
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Your Spotify connection is no longer valid. Reconnect your Spotify account.",
			Permanent:   true,
		}
	case errors.Is(err, shared.ErrNotAuthenticated):
		return Classification{
			Severity:    models.SeverityWarning,
			UserMessage: "Sign in before managing your Spotify connection.",
			Permanent:   true,
		}
	case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrInvalidConfig):
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Spotify client credentials are not configured. Run setup first.",
			Permanent:   true,
		}
	case errors.Is(err, shared.ErrPersistence):
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Failed to save your Spotify connection. Reconnect your Spotify account.",
			Permanent:   true,
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return classifyOAuth(retrieveErr)
	}

	var apiErr *services.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTP(service, apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{
			Severity:    models.SeverityWarning,
			UserMessage: "The " + service + " request timed out. It will be retried automatically.",
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{
			Severity:    models.SeverityWarning,
			UserMessage: "Network problem reaching " + service + ". Check your connection; the operation will be retried.",
		}
	}

	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "refresh token") &&
		(strings.Contains(msg, "invalid") || strings.Contains(msg, "revoked") || strings.Contains(msg, "expired")) {
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Your Spotify authorization was revoked. Reconnect your Spotify account.",
			Permanent:   true,
		}
	}

	return Classification{
		Severity:    models.SeverityError,
		UserMessage: "Something went wrong talking to " + service + ". Try again in a moment.",
	}
}

// classifyOAuth handles token-endpoint rejections.
//
// invalid_grant means the refresh token itself was rejected; only a fresh
// authorization fixes that, so it is permanent.
func classifyOAuth(err *oauth2.RetrieveError) Classification {
	switch err.ErrorCode {
	case "invalid_grant":
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Spotify rejected your saved authorization. Reconnect your Spotify account.",
			Permanent:   true,
		}
	case "invalid_client", "unauthorized_client":
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Spotify rejected the application credentials. Check your client id and secret.",
			Permanent:   true,
		}
	}

	if err.Response != nil {
		return classifyStatus("Spotify", err.Response.StatusCode, 0)
	}

	return Classification{
		Severity:    models.SeverityError,
		UserMessage: "Spotify token request failed. It will be retried automatically.",
	}
}

func classifyHTTP(service string, err *services.APIError) Classification {
	return classifyStatus(service, err.StatusCode, err.RetryAfter)
}

func classifyStatus(service string, status int, retryAfter time.Duration) Classification {
	switch {
	case status == 401 || status == 403:
		return Classification{
			Severity:    models.SeverityCritical,
			UserMessage: "Authorization with " + service + " was rejected. Reconnect your Spotify account.",
			Permanent:   true,
		}
	case status == 429:
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return Classification{
			Severity:    models.SeverityWarning,
			UserMessage: service + " is rate limiting requests. Waiting before retrying.",
			RateLimited: true,
			RetryAfter:  retryAfter,
		}
	case status >= 500:
		return Classification{
			Severity:    models.SeverityWarning,
			UserMessage: service + " is having trouble right now. The operation will be retried.",
		}
	}

	return Classification{
		Severity:    models.SeverityError,
		UserMessage: "The " + service + " request failed. Try again in a moment.",
	}
}
