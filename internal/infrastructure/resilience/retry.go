package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Backoff returns the delay before retry number attempt (0-based).
// resp is the last response when one was received, nil otherwise.
type Backoff func(attempt int, resp *http.Response) time.Duration

// Policy defines retry behavior
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// Backoff computes the wait between attempts
	Backoff Backoff
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Operation is one attempt of a retried call
type Operation func(attempt int) (*http.Response, error)

// ExhaustedError is returned once every attempt has failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultPolicy returns 3 retries with 1s doubling backoff capped at 30s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		Backoff:    Exponential(time.Second, 30*time.Second),
	}
}

// Exponential returns initial * 2^attempt capped at max.
// A 429 or 503 carrying Retry-After waits for the server-provided delay.
func Exponential(initial, max time.Duration) Backoff {
	return func(attempt int, resp *http.Response) time.Duration {
		return retryablehttp.DefaultBackoff(initial, max, attempt, resp)
	}
}

// Execute runs op until it succeeds, fails permanently, the retries are
// exhausted or ctx is done. Backoff sleeps go through clock.
func (p Policy) Execute(ctx context.Context, clock Clock, op Operation) error {
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(time.Second, 30*time.Second)
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := op(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == p.MaxRetries {
			break
		}

		delay := backoff(attempt, resp)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, err)
		}
	}

	return &ExhaustedError{Attempts: p.MaxRetries + 1, Err: lastErr}
}
