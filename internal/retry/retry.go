package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/spachava753/buildbpy/internal/models"
)

// Policy bounds how a failed request is retried.
type Policy struct {
	// MaxAttempts counts the first try.
	MaxAttempts int

	// InitialInterval is the wait after the first failure.
	InitialInterval time.Duration

	// MaxInterval caps any single wait.
	MaxInterval time.Duration

	// Multiplier is the factor by which the interval grows per attempt.
	Multiplier float64

	// RetryableStatus lists the HTTP statuses worth another attempt.
	RetryableStatus []int
}

// DefaultRetryableStatus are transient server-side failures.
var DefaultRetryableStatus = []int{500, 502, 503, 504}

// FromConfig builds a Policy from the retry section of the configuration.
func FromConfig(cfg models.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		Multiplier:      cfg.Multiplier,
		RetryableStatus: DefaultRetryableStatus,
	}
}

// Backoff returns the wait before the retry that follows attempt (1-based):
// InitialInterval * Multiplier^(attempt-1), capped at MaxInterval.
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	interval := float64(p.InitialInterval) * math.Pow(mult, float64(attempt-1))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval)
}

// Retryable reports whether status is in the policy's retryable set.
func (p Policy) Retryable(status int) bool {
	return slices.Contains(p.RetryableStatus, status)
}

// StatusError is returned by an operation that received an unexpected HTTP status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. Only StatusErrors whose status is retryable are
// retried; the last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return nil
		}

		var se *StatusError
		if !errors.As(err, &se) || !p.Retryable(se.Status) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		slog.Warn("retrying after transient failure", "attempt", attempt, "status", se.Status, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}
