package governor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/resilience"
)

// Options configures a Governor
type Options struct {
	BaseURL   string
	CacheTTL  time.Duration
	Spacing   time.Duration
	Retry     resilience.Policy
	Timeout   time.Duration
	UserAgent string
	Clock     resilience.Clock
	Logger    *zap.Logger
}

// DefaultOptions returns 30s cache, 200ms spacing and the default retry policy
func DefaultOptions() Options {
	return Options{
		CacheTTL:  30 * time.Second,
		Spacing:   200 * time.Millisecond,
		Retry:     resilience.DefaultPolicy(),
		Timeout:   30 * time.Second,
		UserAgent: "ThreadScope/1.0",
	}
}

// Governor mediates every outbound call with response caching, dispatch
// spacing and exponential-backoff retry. Instances share no state.
type Governor struct {
	resty   *resty.Client
	cache   *responseCache
	gate    *gate
	flight  singleflight.Group
	retry   resilience.Policy
	clock   resilience.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a governor. Zero-valued options fall back to DefaultOptions,
// except CacheTTL and Spacing where zero disables the policy.
func New(opts Options) *Governor {
	defaults := DefaultOptions()
	if opts.Retry.Backoff == nil && opts.Retry.MaxRetries == 0 {
		opts.Retry = defaults.Retry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Clock == nil {
		opts.Clock = resilience.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// Pooled transport from retryablehttp; retries stay with the governor
	transport := retryablehttp.NewClient().HTTPClient.Transport

	restyClient := resty.New()
	restyClient.
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTransport(transport)

	return &Governor{
		resty:  restyClient,
		cache:  newResponseCache(opts.CacheTTL),
		gate:   newGate(opts.Spacing, opts.Clock),
		retry:  opts.Retry,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// WithMetrics attaches a metrics collector
func (g *Governor) WithMetrics(metrics *monitoring.Metrics) *Governor {
	g.metrics = metrics
	return g
}

// Post sends body as JSON to endpoint and decodes the response into out.
// Identical (endpoint, body) pairs within the cache TTL are served from
// cache; concurrent identical misses share one upstream call. The shared
// call outlives any single caller, so one caller giving up never fails the
// others; each caller stops waiting when its own ctx ends.
func (g *Governor) Post(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	payload, err := sonic.ConfigStd.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	key := cacheKey(endpoint, payload)
	if data, ok := g.cache.get(key, g.clock.Now()); ok {
		g.metrics.RecordCacheLookup(true)
		g.logger.Debug("cache hit", zap.String("endpoint", endpoint))
		return decode(endpoint, data, out)
	}
	g.metrics.RecordCacheLookup(false)

	shared := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (any, error) {
		data, err := g.fetch(shared, endpoint, payload, headers)
		if err != nil {
			return nil, err
		}
		g.cache.put(key, data, g.clock.Now())
		return data, nil
	})

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", endpoint, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%s: %w", endpoint, res.Err)
		}
		return decode(endpoint, res.Val.([]byte), out)
	}
}

// fetch dispatches through the gate under the retry policy
func (g *Governor) fetch(ctx context.Context, endpoint string, payload []byte, headers map[string]string) ([]byte, error) {
	policy := g.retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		reason := "transient"
		if errors.Is(err, ErrRateLimited) {
			reason = "rate_limited"
		}
		g.metrics.RecordRetry(endpoint, reason)
		g.logger.Warn("Retrying upstream call",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	}

	var data []byte
	err := policy.Execute(ctx, g.clock, func(attempt int) (*http.Response, error) {
		waited, err := g.gate.wait(ctx)
		if err != nil {
			return nil, resilience.Permanent(err)
		}
		g.metrics.RecordThrottleWait(waited)

		body, resp, err := g.dispatch(ctx, endpoint, payload, headers)
		if err != nil {
			return resp, err
		}
		data = body
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// dispatch performs one HTTP round trip
func (g *Governor) dispatch(ctx context.Context, endpoint string, payload []byte, headers map[string]string) ([]byte, *http.Response, error) {
	start := time.Now()

	resp, err := g.resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(headers).
		SetBody(payload).
		Post(endpoint)

	var result error
	var raw *http.Response
	var body []byte

	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			result = resilience.Permanent(ctxErr)
		} else {
			result = fmt.Errorf("%w: %w", ErrTransient, err)
		}
	case !resp.IsSuccess():
		raw = resp.RawResponse
		result = &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String(), 256),
		}
	default:
		raw = resp.RawResponse
		body = resp.Body()
		if !sonic.Valid(body) {
			result = resilience.Permanent(&DecodeError{Endpoint: endpoint, Err: errors.New("invalid JSON")})
		}
	}

	g.metrics.RecordUpstreamCall(endpoint, outcome(result), time.Since(start))
	g.logger.Debug("Upstream call",
		zap.String("endpoint", endpoint),
		zap.String("outcome", outcome(result)),
		zap.Duration("duration", time.Since(start)),
	)

	return body, raw, result
}

// Purge drops expired cache entries
func (g *Governor) Purge() int {
	return g.cache.purge(g.clock.Now())
}

// CacheSize returns the number of cached responses
func (g *Governor) CacheSize() int {
	return g.cache.len()
}

func decode(endpoint string, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
