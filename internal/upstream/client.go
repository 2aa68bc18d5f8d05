// Package upstream downloads remote documents (the FIRMS feed, remote
// reference tables) with bounded retries, exponential backoff and a circuit
// breaker. Exhausted retries surface as an upstream_unavailable AppError.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// RetryPolicy bounds the retry loop. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy keeps the fixed five second pause between attempts as
// the first backoff step.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinWait:     5 * time.Second,
		MaxWait:     time.Minute,
	}
}

// Backoff returns the wait before retry number attempt (0-based):
// MinWait * 2^attempt, clamped to MaxWait.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.MinWait <= 0 {
		return 0
	}
	wait := p.MinWait
	for i := 0; i < attempt && wait < p.MaxWait; i++ {
		wait *= 2
	}
	if wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// minTripFailures is the breaker threshold for short retry policies.
const minTripFailures = 5

// Attempt outcomes reported to observers.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomePermanent = "permanent"
	OutcomeRejected  = "circuit_open"
)

// Client fetches documents over HTTP.
type Client struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	policy    RetryPolicy
	userAgent string
	logger    *slog.Logger
	sleepFn   func(ctx context.Context, d time.Duration) error
	observe   func(outcome string)
}

// Option configures a Client.
type Option func(*Client)

// WithSleepFunc replaces the context-aware sleep between attempts.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithObserver registers a callback invoked once per attempt with its outcome.
func WithObserver(fn func(outcome string)) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient builds a Client. The breaker opens once consecutive failed
// attempts reach the larger of five and the policy's MaxAttempts, so a
// single Fetch always gets its full retry budget. It half-opens after 30
// seconds.
func NewClient(httpClient *http.Client, policy RetryPolicy, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MaxWait < policy.MinWait {
		policy.MaxWait = policy.MinWait
	}
	tripAfter := uint32(max(minTripFailures, policy.MaxAttempts))

	c := &Client{
		http: httpClient,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "upstream",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
			IsSuccessful: func(err error) bool {
				var pe *permanentError
				return err == nil || errors.As(err, &pe)
			},
		}),
		policy:    policy,
		userAgent: "firezips/1.0",
		logger:    slog.Default(),
		sleepFn:   sleepContext,
		observe:   func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// permanentError marks a response that retrying cannot fix, e.g. 404.
type permanentError struct {
	status int
	err    error
}

func (e *permanentError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("upstream returned %d", e.status)
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// retryableError carries the status and Retry-After hint of a 429/5xx reply.
type retryableError struct {
	status     int
	retryAfter time.Duration
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

// Fetch downloads rawURL and returns the body. Network errors, 429 and 5xx
// responses are retried up to the policy's MaxAttempts. Other non-2xx
// statuses fail immediately. Every failure is an upstream_unavailable
// AppError, except context cancellation which is returned as is.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.get(ctx, rawURL)
		})
		if err == nil {
			c.observe(OutcomeSuccess)
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err

		var pe *permanentError
		switch {
		case errors.As(err, &pe):
			c.observe(OutcomePermanent)
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("fetching %s", rawURL), err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.observe(OutcomeRejected)
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
				"circuit breaker is open; upstream considered unavailable", err)
		}
		c.observe(OutcomeRetryable)

		if attempt == c.policy.MaxAttempts-1 {
			break
		}
		wait := c.policy.Backoff(attempt)
		var re *retryableError
		if errors.As(err, &re) && re.retryAfter > 0 {
			wait = min(re.retryAfter, c.policy.MaxWait)
		}
		c.logger.WarnContext(ctx, "upstream fetch failed, retrying",
			"url", rawURL,
			"attempt", attempt+1,
			"max_attempts", c.policy.MaxAttempts,
			"wait", wait,
			"error", err,
		)
		if err := c.sleepFn(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("fetching %s failed after %d attempts", rawURL, c.policy.MaxAttempts), lastErr)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &permanentError{err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &retryableError{status: resp.StatusCode, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &permanentError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
