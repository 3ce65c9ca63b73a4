package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"golang.org/x/time/rate"
)

// requester throttles and retries outgoing embedding requests.
// It is safe for concurrent use.
type requester struct {
	limiter    *rate.Limiter
	maxRetries int
}

// newRequester creates a requester. A non-positive rate disables throttling.
func newRequester(requestsPerSecond float64, maxRetries int) *requester {
	r := &requester{maxRetries: maxRetries}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return r
}

// do runs op, waiting for the rate limiter and retrying transient failures
// with exponential backoff.
func (r *requester) do(ctx context.Context, op func() error) error {
	if r == nil {
		return op()
	}

	operation := func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			log.Debug("Retrying embedding request", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if r.maxRetries <= 0 {
		err := operation()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 60 * time.Second

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx))
}

// statusError is a non-200 response from an HTTP embedding API.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("returned status %d: %s", e.StatusCode, e.Body)
}

// isRetryable reports whether err is a rate limit or transient server error.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var se *statusError
	if errors.As(err, &se) {
		return retryableStatus(se.StatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}
