package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Class tells the retry loop what to do with a failed attempt
type Class int

const (
	// ClassOK means the call succeeded
	ClassOK Class = iota
	// ClassRetryable means the failure is transient (server errors,
	// rate limits, network faults)
	ClassRetryable
	// ClassAuthRetry means an auth/permission style response that is
	// retried once in case of a transient token issue, then fatal
	ClassAuthRetry
	// ClassFatal means a definitive client error: do not retry
	ClassFatal
)

// Outcome carries the classification of one attempt
type Outcome struct {
	Class Class
	Err   error
}

// OK returns a successful outcome
func OK() Outcome { return Outcome{Class: ClassOK} }

// Retryable wraps a transient failure
func Retryable(err error) Outcome { return Outcome{Class: ClassRetryable, Err: err} }

// AuthRetry wraps an auth-style failure retried at most once
func AuthRetry(err error) Outcome { return Outcome{Class: ClassAuthRetry, Err: err} }

// Fatal wraps a definitive failure
func Fatal(err error) Outcome { return Outcome{Class: ClassFatal, Err: err} }

// ClassifyHTTP maps an HTTP status code onto a retry class:
// 5xx and 429 are retryable, 401/403 get one retry, other 4xx are fatal
func ClassifyHTTP(status int, err error) Outcome {
	switch {
	case status >= 500:
		return Retryable(err)
	case status == 429:
		return Retryable(err)
	case status == 401 || status == 403:
		return AuthRetry(err)
	case status >= 400:
		return Fatal(err)
	default:
		return Retryable(err)
	}
}

// ClassifyError maps a transport-level error onto a retry class.
// Network faults and timeouts are retryable, everything else is fatal.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OK()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable(err)
	}
	return Fatal(err)
}

// Do runs fn up to the policy's attempt count, sleeping the policy delay
// between attempts. Auth-style failures are retried at most once
// regardless of the attempt budget. Returns the last error when the
// budget is exhausted or a fatal outcome is hit.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) Outcome) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	authRetried := false

	for attempt := 1; attempt <= attempts; attempt++ {
		outcome := fn(ctx, attempt)
		switch outcome.Class {
		case ClassOK:
			return nil
		case ClassFatal:
			return outcome.Err
		case ClassAuthRetry:
			if authRetried || attempt > 1 {
				// Auth failures only get one retry, on the first attempt
				return outcome.Err
			}
			authRetried = true
			lastErr = outcome.Err
		case ClassRetryable:
			lastErr = outcome.Err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("retries exhausted after %d attempts", attempts)
	}
	return lastErr
}
