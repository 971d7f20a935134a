package client

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy decides whether a request should be retried. attempt counts the
// retries already made, starting at zero.
type RetryPolicy interface {
	ShouldRetry(attempt int, resp *http.Response, err error) (bool, time.Duration)
}

// RetryPolicyFunc adapts a function to the RetryPolicy interface.
type RetryPolicyFunc func(attempt int, resp *http.Response, err error) (bool, time.Duration)

// ShouldRetry implements the RetryPolicy interface.
func (f RetryPolicyFunc) ShouldRetry(attempt int, resp *http.Response, err error) (bool, time.Duration) {
	return f(attempt, resp, err)
}

// LinearRetryPolicy retries transport errors, 429 and 5xx responses up to
// maxRetries times, waiting base*(attempt+1) between tries.
func LinearRetryPolicy(maxRetries int, base time.Duration) RetryPolicy {
	return RetryPolicyFunc(func(attempt int, resp *http.Response, err error) (bool, time.Duration) {
		if attempt >= maxRetries {
			return false, 0
		}
		delay := base * time.Duration(attempt+1)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false, 0
			}
			return true, delay
		case resp.StatusCode == http.StatusTooManyRequests:
			return true, delay
		case resp.StatusCode >= 500:
			return true, delay
		default:
			return false, 0
		}
	})
}

// DefaultRetryPolicy retries three times with a 500ms linear backoff.
var DefaultRetryPolicy = LinearRetryPolicy(3, 500*time.Millisecond)
