package governor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/threadscope/internal/testutil"
)

type payload struct {
	OK    bool   `json:"ok"`
	Value string `json:"value"`
}

type query struct {
	Filter string `json:"filter"`
}

func newTestGovernor(srv *testutil.ScriptedServer, clock *testutil.ManualClock) *Governor {
	return New(Options{
		BaseURL:  srv.URL,
		CacheTTL: 30 * time.Second,
		Spacing:  200 * time.Millisecond,
		Clock:    clock,
	})
}

func ok(value string) testutil.Reply {
	return testutil.Reply{Status: http.StatusOK, Body: `{"ok":true,"value":"` + value + `"}`}
}

func status(code int) testutil.Reply {
	return testutil.Reply{Status: code, Body: `{"detail":"nope"}`}
}

func TestGovernorCache(t *testing.T) {
	t.Run("identical calls within TTL hit the network once", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("first"), ok("second"))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)
		ctx := context.Background()

		var a, b payload
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, &a))
		clock.Advance(29 * time.Second)
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, &b))

		assert.Equal(t, 1, srv.Hits())
		assert.Equal(t, "first", a.Value)
		assert.Equal(t, "first", b.Value)
	})

	t.Run("expired entry is refetched", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("first"), ok("second"))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)
		ctx := context.Background()

		var out payload
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, &out))
		clock.Advance(31 * time.Second)
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, &out))

		assert.Equal(t, 2, srv.Hits())
		assert.Equal(t, "second", out.Value)
	})

	t.Run("different bodies are different keys", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("a"))
		gov := newTestGovernor(srv, testutil.NewManualClock())
		ctx := context.Background()

		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil))
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "y"}, nil, nil))
		require.NoError(t, gov.Post(ctx, "/runs/other", query{Filter: "x"}, nil, nil))

		assert.Equal(t, 3, srv.Hits())
		assert.Equal(t, 3, gov.CacheSize())
	})

	t.Run("failures are not cached", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, status(500), ok("recovered"))
		gov := New(Options{
			BaseURL:  srv.URL,
			CacheTTL: 30 * time.Second,
			Clock:    testutil.NewManualClock(),
			Retry:    resilience.Policy{MaxRetries: 0, Backoff: resilience.Exponential(time.Second, time.Second)},
		})
		ctx := context.Background()

		err := gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil)
		require.Error(t, err)

		var out payload
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, &out))
		assert.Equal(t, "recovered", out.Value)
		assert.Equal(t, 2, srv.Hits())
	})

	t.Run("instances do not share state", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("a"))
		ctx := context.Background()

		first := newTestGovernor(srv, testutil.NewManualClock())
		second := newTestGovernor(srv, testutil.NewManualClock())
		require.NoError(t, first.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil))
		require.NoError(t, second.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil))

		assert.Equal(t, 2, srv.Hits())
	})

	t.Run("purge drops expired entries", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("a"))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)

		require.NoError(t, gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, nil))
		assert.Equal(t, 0, gov.Purge())

		clock.Advance(time.Minute)
		assert.Equal(t, 1, gov.Purge())
		assert.Equal(t, 0, gov.CacheSize())
	})
}

func TestGovernorThrottle(t *testing.T) {
	srv := testutil.NewScriptedServer(t, ok("a"))
	clock := testutil.NewManualClock()
	gov := newTestGovernor(srv, clock)
	ctx := context.Background()

	for _, filter := range []string{"a", "b", "c", "d"} {
		require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: filter}, nil, nil))
	}

	assert.Equal(t, 4, srv.Hits())
	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 3, "first dispatch goes straight through")
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
	}
}

func TestGovernorRetry(t *testing.T) {
	t.Run("429 three times then success", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, status(429), status(429), status(429), ok("finally"))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)

		var out payload
		err := gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, &out)

		require.NoError(t, err)
		assert.Equal(t, "finally", out.Value)
		assert.Equal(t, 4, srv.Hits())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())
	})

	t.Run("always 429 exhausts retries", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, status(429))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)

		err := gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRateLimited)
		var exhausted *resilience.ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 4, exhausted.Attempts)
		assert.Equal(t, 4, srv.Hits())
	})

	t.Run("server errors use the same retry path", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, status(502), status(404), ok("ok"))
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)

		var out payload
		require.NoError(t, gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, &out))
		assert.Equal(t, 3, srv.Hits())
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
	})

	t.Run("non-429 failures are transient", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, status(503))
		gov := newTestGovernor(srv, testutil.NewManualClock())

		err := gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, nil)

		assert.ErrorIs(t, err, ErrTransient)
		assert.NotErrorIs(t, err, ErrRateLimited)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, 503, statusErr.StatusCode)
	})

	t.Run("invalid JSON is not retried", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, testutil.Reply{Status: http.StatusOK, Body: "<html>"})
		clock := testutil.NewManualClock()
		gov := newTestGovernor(srv, clock)

		err := gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, nil)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Equal(t, 1, srv.Hits())
		assert.Empty(t, clock.Sleeps())
		assert.Equal(t, 0, gov.CacheSize())
	})

	t.Run("cancelled context stops before dispatch", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("a"))
		gov := newTestGovernor(srv, testutil.NewManualClock())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil)

		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 0, srv.Hits())
	})
}

func TestGovernorHeaders(t *testing.T) {
	srv := testutil.NewScriptedServer(t, ok("a"))
	gov := newTestGovernor(srv, testutil.NewManualClock())

	err := gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, map[string]string{"x-api-key": "secret"}, nil)
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/runs/query", reqs[0].Path)
	assert.Equal(t, "secret", reqs[0].Header.Get("x-api-key"))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"filter":"x"}`, string(reqs[0].Body))
}

func TestGovernorMetrics(t *testing.T) {
	srv := testutil.NewScriptedServer(t, status(429), ok("a"))
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	gov := newTestGovernor(srv, testutil.NewManualClock()).WithMetrics(metrics)
	ctx := context.Background()

	require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil))
	require.NoError(t, gov.Post(ctx, "/runs/query", query{Filter: "x"}, nil, nil))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.UpstreamCalls)
	assert.Equal(t, int64(1), snap.Retries)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
}

func TestGovernorConcurrentCallers(t *testing.T) {
	t.Run("spacing holds across goroutines", func(t *testing.T) {
		const spacing = 50 * time.Millisecond
		const tolerance = 20 * time.Millisecond
		srv := testutil.NewScriptedServer(t, ok("a"))
		gov := New(Options{BaseURL: srv.URL, Spacing: spacing})

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, gov.Post(context.Background(), "/runs/query", query{Filter: fmt.Sprint(i)}, nil, nil))
			}(i)
		}
		wg.Wait()

		reqs := srv.Requests()
		require.Len(t, reqs, 6)
		sort.Slice(reqs, func(i, j int) bool { return reqs[i].At.Before(reqs[j].At) })
		for i := 1; i < len(reqs); i++ {
			assert.GreaterOrEqual(t, reqs[i].At.Sub(reqs[i-1].At), spacing-tolerance)
		}
		assert.GreaterOrEqual(t, reqs[5].At.Sub(reqs[0].At), 5*spacing-tolerance)
	})

	t.Run("identical misses share one upstream call", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, testutil.Reply{
			Status: http.StatusOK,
			Body:   `{"ok":true,"value":"shared"}`,
			Delay:  100 * time.Millisecond,
		})
		gov := New(Options{BaseURL: srv.URL, CacheTTL: 30 * time.Second})

		results := make([]payload, 8)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, &results[i]))
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, srv.Hits())
		for _, r := range results {
			assert.Equal(t, "shared", r.Value)
		}
	})

	t.Run("parallel cache reads and writes", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, ok("a"))
		gov := New(Options{BaseURL: srv.URL, CacheTTL: 30 * time.Second, Clock: testutil.NewManualClock()})

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 10; k++ {
					var out payload
					assert.NoError(t, gov.Post(context.Background(), "/runs/query", query{Filter: fmt.Sprint(k)}, nil, &out))
					assert.Equal(t, "a", out.Value)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, srv.Hits())
		assert.Equal(t, 10, gov.CacheSize())
	})

	t.Run("caller giving up does not fail the others", func(t *testing.T) {
		srv := testutil.NewScriptedServer(t, testutil.Reply{
			Status: http.StatusOK,
			Body:   `{"ok":true,"value":"shared"}`,
			Delay:  300 * time.Millisecond,
		})
		gov := New(Options{BaseURL: srv.URL, CacheTTL: 30 * time.Second})

		ctxA, cancelA := context.WithCancel(context.Background())
		defer cancelA()
		errA := make(chan error, 1)
		go func() {
			errA <- gov.Post(ctxA, "/runs/query", query{Filter: "x"}, nil, nil)
		}()
		require.Eventually(t, func() bool { return srv.Hits() == 1 }, time.Second, 5*time.Millisecond)

		var b payload
		errB := make(chan error, 1)
		go func() {
			errB <- gov.Post(context.Background(), "/runs/query", query{Filter: "x"}, nil, &b)
		}()
		cancelA()

		assert.ErrorIs(t, <-errA, context.Canceled)
		require.NoError(t, <-errB)
		assert.Equal(t, "shared", b.Value)
		assert.Equal(t, 1, srv.Hits())
		assert.Equal(t, 1, gov.CacheSize())
	})
}
