package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsTransient classifies errors worth retrying: connection drops, timeouts,
// lock contention and throttled or failing upstreams. Anything else fails
// immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if code, ok := httpStatusFromError(err); ok {
		return IsRetryableHTTPStatus(code)
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"lock timeout",
		"deadlock",
		"too many connections",
		"unexpected eof",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// httpStatusFromError extracts the HTTP status of a failed upstream call,
// either from an error exposing StatusCode() or from the "status code: NNN"
// form API clients put in their error text.
func httpStatusFromError(err error) (int, bool) {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}

	msg := strings.ToLower(err.Error())
	idx := strings.Index(msg, "status code: ")
	if idx < 0 {
		return 0, false
	}
	rest := msg[idx+len("status code: "):]
	code := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			break
		}
		code = code*10 + int(r-'0')
	}
	if code < 100 || code > 599 {
		return 0, false
	}
	return code, true
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Retry runs fn up to maxAttempts times, sleeping a capped exponential
// backoff between attempts. Only transient errors are retried; a
// non-transient error or an expired context returns immediately.
func Retry(ctx context.Context, maxAttempts int, base, cap time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ExponentialBackoff(attempt-1, base, cap)):
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}
