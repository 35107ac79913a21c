// Package retry implements the exponential-backoff retry shape used by
// every outbound HTTP client in this module.
//
// Grounded on gopher-lab-kalshi-go's cmd/dualside-bot/production/engine/executor.go
// ExecuteOrder, which retries a fixed number of attempts with a delay scaled
// by attempt number; generalized here into a reusable helper with a
// configurable base delay and cap.
package retry

import (
	"context"
	"time"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// Default is the retry schedule used by every provider client: 3
// attempts, base 2s, capped at 8s.
var Default = Config{MaxAttempts: 3, Base: 2 * time.Second, Cap: 8 * time.Second}

// Transient is returned by fn to signal that the failure is retryable; any
// other error aborts the retry loop immediately (matching 4xx short-circuit
// behavior for HTTP clients).
type Transient struct{ Err error }

func (t *Transient) Error() string { return t.Err.Error() }
func (t *Transient) Unwrap() error { return t.Err }

// Do runs fn up to cfg.MaxAttempts times. fn should wrap retryable failures
// (network errors, 5xx) in *Transient; any other error return stops the loop
// immediately. The last error is returned, wrapped as agenterr.KindProvider
// if every attempt was a *Transient, or returned as-is otherwise.
func Do(ctx context.Context, cfg Config, op string, fn func(attempt int) error) error {
	var lastErr error
	delay := cfg.Base

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		transient, isTransient := err.(*Transient)
		if !isTransient {
			return err
		}
		lastErr = transient.Err

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
	}

	return agenterr.New(agenterr.KindProvider, op, lastErr)
}
