package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

// RetryConfig bounds a retry sequence.
type RetryConfig struct {
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // first backoff delay
	MaxDelay   time.Duration // cap on any single delay
	Multiplier float64       // backoff growth factor
}

// DefaultRetryConfig returns the standard bounds: 3 retries with delays of
// 1s, 2s, 4s, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = def.Multiplier
	}
	return c
}

// delay returns the backoff before retry number retry (1-based), capped at MaxDelay.
func (c RetryConfig) delay(retry int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(retry-1))
	if capped := float64(c.MaxDelay); backoff > capped {
		backoff = capped
	}
	return time.Duration(backoff)
}

// SleepFunc pauses for d or returns early with ctx's error.
// Injectable so tests observe backoff without wall-clock waits.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default [SleepFunc], honoring context cancellation.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retryer executes operations with bounded exponential backoff.
//
// Failures are classified per attempt: permanent errors abort the sequence
// immediately, transient errors back off and retry, and rate-limited errors
// wait the server-provided interval instead of the computed backoff.
type Retryer struct {
	service string
	cfg     RetryConfig
	sleep   SleepFunc
	logger  *log.Logger
}

// NewRetryer creates a retryer for operations against the named service.
func NewRetryer(service string, cfg RetryConfig, logger *log.Logger) *Retryer {
	if logger == nil {
		logger = log.Default()
	}
	return &Retryer{
		service: service,
		cfg:     cfg.normalized(),
		sleep:   ContextSleep,
		logger:  logger,
	}
}

// SetSleep replaces the sleep function. Test hook.
func (r *Retryer) SetSleep(sleep SleepFunc) {
	if sleep != nil {
		r.sleep = sleep
	}
}

// Do runs op until it succeeds, fails permanently, or retries are exhausted.
//
// Returns the attempt count alongside the final error. Intermediate attempts
// are logged but never surfaced; only the final outcome reaches the caller.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxRetries+1; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		verdict := Classify(r.service, lastErr)
		if verdict.Permanent {
			r.logger.Warn("permanent failure, not retrying", "service", r.service, "attempt", attempt, "error", lastErr)
			return attempt, lastErr
		}

		if attempt > r.cfg.MaxRetries {
			break
		}

		wait := r.cfg.delay(attempt)
		if verdict.RateLimited && verdict.RetryAfter > 0 {
			wait = verdict.RetryAfter
		}

		r.logger.Debug("transient failure, backing off", "service", r.service, "attempt", attempt, "wait", wait, "error", lastErr)

		if err := r.sleep(ctx, wait); err != nil {
			return attempt, fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return r.cfg.MaxRetries + 1, fmt.Errorf("retries exhausted after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
