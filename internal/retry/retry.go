// Package retry wraps completion calls with exponential backoff on
// transient failures. Rate-limit and server-status errors are retried
// on the same schedule; anything else fails immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/g3ntl3Giants/glitch/internal/llm"
)

// ErrRetriesExhausted marks a failure where every attempt hit a
// retryable error. Check with errors.Is.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy controls the backoff schedule.
type Policy struct {
	// MaxAttempts caps total attempts, first call included.
	MaxAttempts int
	// InitialBackoff is the wait after the first retryable failure.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the wait after each attempt.
	BackoffFactor float64
}

// DefaultPolicy returns the documented default: 5 attempts, 100ms
// initial wait, 1.5x growth.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		BackoffFactor:  1.5,
	}
}

// Retryable reports whether err is a transient completion failure.
func Retryable(err error) bool {
	var rle *llm.RateLimitError
	var se *llm.ServerError
	return errors.As(err, &rle) || errors.As(err, &se)
}

// Do invokes fn until it succeeds, fails fatally, or the attempt cap
// is reached. Backoff waits respect ctx cancellation. op names the
// operation for diagnostics.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) (*llm.Response, error)) (*llm.Response, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultPolicy().InitialBackoff
	}
	if p.BackoffFactor <= 1 {
		p.BackoffFactor = DefaultPolicy().BackoffFactor
	}

	wait := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}

		if !Retryable(err) {
			logger.Error("completion failed",
				"operation", op,
				"attempt", attempt,
				"error", err,
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		logger.Warn("transient completion failure, backing off",
			"operation", op,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"wait", wait,
			"error", err,
		)

		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		wait = time.Duration(float64(wait) * p.BackoffFactor)
	}

	logger.Error("retries exhausted",
		"operation", op,
		"attempts", p.MaxAttempts,
		"error", lastErr,
	)
	return nil, fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, p.MaxAttempts, lastErr)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
