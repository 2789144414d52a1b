// Package httpretry retries idempotent outbound HTTP calls with capped,
// jittered exponential backoff. The SNS subscription confirmer uses it.
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/engage/internal/pkg/logger"
)

var log = logger.With("httpretry")

// HTTPDoer executes a request. *http.Client and *RetryClient both satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryable lists the statuses worth another attempt. Other 4xx codes are
// the caller's problem and are returned immediately.
var retryable = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryClient wraps an HTTPDoer with retries.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithDelays overrides the backoff base and cap.
func WithDelays(base, ceiling time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = ceiling
	}
}

// NewRetryClient wraps client, or a 30s-timeout http.Client when nil.
// maxRetries counts attempts after the first and defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying transport errors and retryable statuses. The last
// attempt's response is returned as-is so the caller can read its body.
// A cancelled request context stops retrying at once.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rc.rewind(req); err != nil {
				return nil, err
			}
			delay := rc.backoff(attempt)
			log.Info("retrying request", "attempt", attempt, "host", req.URL.Host, "path", req.URL.Path, "delay", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, firstErr(lastErr, ctx.Err())
			}
		}

		resp, err := rc.client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case !retryable[resp.StatusCode] || attempt == rc.maxRetries:
			return resp, nil
		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
		}

		if attempt == rc.maxRetries {
			return nil, lastErr
		}
	}
}

func (rc *RetryClient) rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff is full jitter over base*2^(attempt-1), capped at maxDelay and
// floored at 100ms (or the cap, if lower).
func (rc *RetryClient) backoff(attempt int) time.Duration {
	ceiling := rc.baseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > rc.maxDelay {
		ceiling = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))

	floor := 100 * time.Millisecond
	if rc.maxDelay < floor {
		floor = rc.maxDelay
	}
	if d < floor {
		d = floor
	}
	return d
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
