package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomhuang/FireZipCodes/internal/types"
)

// recordingSleep captures requested waits without sleeping.
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, MinWait: time.Second, MaxWait: 4 * time.Second}
}

func TestFetch_Success(t *testing.T) {
	var ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("latitude,longitude\n"))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	c := NewClient(server.Client(), testPolicy(3), WithSleepFunc(sleeper.sleep), WithUserAgent("firezips-test"))

	body, err := c.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "latitude,longitude\n", string(body))
	assert.Equal(t, "firezips-test", ua)
	assert.Empty(t, sleeper.waits)
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	var outcomes []string
	c := NewClient(server.Client(), testPolicy(5),
		WithSleepFunc(sleeper.sleep),
		WithObserver(func(o string) { outcomes = append(outcomes, o) }),
	)

	body, err := c.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, []string{OutcomeRetryable, OutcomeRetryable, OutcomeSuccess}, outcomes)
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	c := NewClient(server.Client(), testPolicy(4), WithSleepFunc(sleeper.sleep))

	_, err := c.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, types.IsUpstreamUnavailable(err))
	assert.Equal(t, int32(4), calls.Load(), "retry loop is bounded")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.waits)
}

func TestFetch_PermanentStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), testPolicy(5), WithSleepFunc((&recordingSleep{}).sleep))

	_, err := c.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, types.IsUpstreamUnavailable(err))
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	c := NewClient(server.Client(), testPolicy(3), WithSleepFunc(sleeper.sleep))

	_, err := c.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeper.waits)
}

func TestFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(&http.Client{Timeout: time.Second}, testPolicy(2), WithSleepFunc((&recordingSleep{}).sleep))
	_, err := c.Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, types.IsUpstreamUnavailable(err))
}

func TestFetch_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var outcomes []string
	c := NewClient(server.Client(), testPolicy(8),
		WithSleepFunc((&recordingSleep{}).sleep),
		WithObserver(func(o string) { outcomes = append(outcomes, o) }),
	)

	_, err := c.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, types.IsUpstreamUnavailable(err))
	assert.Equal(t, int32(8), calls.Load(), "a single fetch uses every configured attempt")
	assert.Equal(t, OutcomeRetryable, outcomes[len(outcomes)-1])

	_, err = c.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, types.IsUpstreamUnavailable(err))
	assert.Equal(t, int32(8), calls.Load(), "open breaker rejects without calling upstream")
	assert.Equal(t, OutcomeRejected, outcomes[len(outcomes)-1])
}

func TestFetch_ShortPolicyTripsAtFive(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.Client(), testPolicy(2), WithSleepFunc((&recordingSleep{}).sleep))
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), server.URL)
		require.Error(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())

	_, err := c.Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load())
}

func TestFetch_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(server.Client(), testPolicy(5), WithSleepFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := c.Fetch(ctx, server.URL)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, MinWait: 5 * time.Second, MaxWait: time.Minute}
	assert.Equal(t, 5*time.Second, p.Backoff(0))
	assert.Equal(t, 10*time.Second, p.Backoff(1))
	assert.Equal(t, 40*time.Second, p.Backoff(3))
	assert.Equal(t, time.Minute, p.Backoff(4))
	assert.Equal(t, time.Minute, p.Backoff(60))
	assert.Zero(t, RetryPolicy{MaxWait: time.Second}.Backoff(3))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, parseRetryAfter(future), 30*time.Minute)
}
