package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// apiError is a non-2xx response from the API. Server-side statuses are
// transient; client-side statuses (bad auth, bad request) are not worth
// retrying.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.status, e.body)
}

func (e *apiError) transient() bool {
	return e.status == http.StatusTooManyRequests || e.status >= http.StatusInternalServerError
}

// retryPolicy retries transient failures a bounded number of times with
// a fixed delay. Non-transient failures abort immediately.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
}

// do runs fn up to maxRetries times.
func (p retryPolicy) do(ctx context.Context, logger *log.Logger, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		lastErr = err
		if attempt == p.maxRetries {
			break
		}

		logger.Warn("retrying after transient failure", "attempt", attempt, "max", p.maxRetries, "err", err)
		if err := sleepContext(ctx, p.delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", p.maxRetries, lastErr)
}

// isTransient reports whether an error is worth another attempt:
// network timeouts, dropped connections, and 429/5xx API responses.
// Cancellation is never retried.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection-level failures mean the request may never have reached
	// the server.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// sleepContext waits for the delay unless the context is cancelled first.
func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
