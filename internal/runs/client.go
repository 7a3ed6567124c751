package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/threadscope/internal/features"
	"github.com/GriffinCanCode/threadscope/internal/infrastructure/monitoring"
)

// QueryEndpoint is the runs query path relative to the API base URL
const QueryEndpoint = "/runs/query"

const (
	defaultPageSize = 100
	maxPages        = 50
)

// Poster sends a JSON request and decodes the JSON response.
// *governor.Governor satisfies it.
type Poster interface {
	Post(ctx context.Context, endpoint string, body any, headers map[string]string, out any) error
}

// Credentials identify the caller and the project queried
type Credentials struct {
	APIKey  string `envconfig:"LANGSMITH_API_KEY"`
	Project string `envconfig:"LANGSMITH_PROJECT"`
}

// CredentialSource resolves credentials when a query is made
type CredentialSource func(ctx context.Context) (Credentials, error)

// StaticCredentials always returns the given values
func StaticCredentials(apiKey, project string) CredentialSource {
	return func(context.Context) (Credentials, error) {
		return Credentials{APIKey: apiKey, Project: project}, nil
	}
}

// EnvCredentials reads LANGSMITH_API_KEY and LANGSMITH_PROJECT on every call
func EnvCredentials() CredentialSource {
	return func(context.Context) (Credentials, error) {
		var creds Credentials
		if err := envconfig.Process("", &creds); err != nil {
			return Credentials{}, err
		}
		return creds, nil
	}
}

// Cursors are opaque paging tokens; empty when there is no such page
type Cursors struct {
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// Page is one page of query results
type Page struct {
	Runs    []Run   `json:"runs"`
	Cursors Cursors `json:"cursors"`
	// Quarantined counts records dropped as malformed
	Quarantined int `json:"-"`
}

// QueryRequest is the runs/query request body
type QueryRequest struct {
	Session []string `json:"session"`
	Filter  string   `json:"filter,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Cursor  string   `json:"cursor,omitempty"`
}

type rawPage struct {
	Runs    []json.RawMessage `json:"runs"`
	Cursors struct {
		Next *string `json:"next"`
		Prev *string `json:"prev"`
	} `json:"cursors"`
}

// Client queries runs from LangSmith through a Poster
type Client struct {
	poster   Poster
	creds    CredentialSource
	features *features.Registry
	pageSize int
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewClient creates a run query client
func NewClient(poster Poster, creds CredentialSource, registry *features.Registry, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = features.Default()
	}
	return &Client{
		poster:   poster,
		creds:    creds,
		features: registry,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

// WithPageSize sets the default page size used when a query passes no limit
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// WithMetrics attaches a metrics collector
func (c *Client) WithMetrics(metrics *monitoring.Metrics) *Client {
	c.metrics = metrics
	return c
}

// Features returns the registry used to resolve feature ids
func (c *Client) Features() *features.Registry {
	return c.features
}

// Query fetches one page of runs matching filter
func (c *Client) Query(ctx context.Context, filter Filter, limit int, cursor string) (*Page, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.pageSize
	}

	req := QueryRequest{
		Session: []string{creds.Project},
		Filter:  Render(filter),
		Limit:   limit,
		Cursor:  cursor,
	}

	var raw rawPage
	if err := c.poster.Post(ctx, QueryEndpoint, req, map[string]string{"x-api-key": creds.APIKey}, &raw); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return c.decodePage(&raw), nil
}

// QueryAll follows next cursors until the results are exhausted, a cursor
// repeats or the page cap is reached
func (c *Client) QueryAll(ctx context.Context, filter Filter) ([]Run, error) {
	var all []Run
	seen := make(map[string]struct{})
	cursor := ""

	for pages := 0; ; pages++ {
		if pages == maxPages {
			c.logger.Warn("Page cap reached, results truncated",
				zap.String("filter", Render(filter)),
				zap.Int("pages", pages),
				zap.Int("runs", len(all)),
			)
			return all, nil
		}

		page, err := c.Query(ctx, filter, 0, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Runs...)

		next := page.Cursors.Next
		if next == "" {
			return all, nil
		}
		if _, dup := seen[next]; dup {
			c.logger.Warn("Repeated cursor, stopping pagination", zap.String("cursor", next))
			return all, nil
		}
		seen[next] = struct{}{}
		cursor = next
	}
}

// GetRun fetches a single run by id
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	id = normalizeID(id)
	if id == "" {
		return nil, &NotFoundError{Kind: "run", ID: id}
	}

	page, err := c.Query(ctx, ID(id), 1, "")
	if err != nil {
		return nil, err
	}
	for i := range page.Runs {
		if page.Runs[i].ID == id {
			return &page.Runs[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "run", ID: id}
}

// GetFeatureRuns fetches root runs whose name belongs to the feature
func (c *Client) GetFeatureRuns(ctx context.Context, featureID string, limit int, cursor string) (*Page, error) {
	f, err := c.features.Lookup(featureID)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, And(IsRoot(), AnyName(f.RunNames...)), limit, cursor)
}

// GetChildRuns fetches every run of a trace
func (c *Client) GetChildRuns(ctx context.Context, traceID string) ([]Run, error) {
	traceID = normalizeID(traceID)
	if traceID == "" {
		return nil, errors.New("trace id is required")
	}
	return c.QueryAll(ctx, TraceID(traceID))
}

// GetTopicThreadRuns fetches every run tagged with the topic thread id
func (c *Client) GetTopicThreadRuns(ctx context.Context, topicThreadID string) ([]Run, error) {
	topicThreadID = strings.TrimSpace(topicThreadID)
	if topicThreadID == "" {
		return nil, errors.New("topic thread id is required")
	}
	return c.QueryAll(ctx, Metadata(TopicThreadKey, topicThreadID))
}

func (c *Client) credentials(ctx context.Context) (Credentials, error) {
	if c.creds == nil {
		return Credentials{}, &ConfigurationError{Setting: "LANGSMITH_API_KEY"}
	}
	creds, err := c.creds(ctx)
	if err != nil {
		return Credentials{}, &ConfigurationError{Setting: "credentials", Err: err}
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return Credentials{}, &ConfigurationError{Setting: "LANGSMITH_API_KEY"}
	}
	if strings.TrimSpace(creds.Project) == "" {
		return Credentials{}, &ConfigurationError{Setting: "LANGSMITH_PROJECT"}
	}
	return creds, nil
}

// decodePage converts wire records, quarantining the malformed ones
func (c *Client) decodePage(raw *rawPage) *Page {
	page := &Page{Runs: make([]Run, 0, len(raw.Runs))}
	if raw.Cursors.Next != nil {
		page.Cursors.Next = *raw.Cursors.Next
	}
	if raw.Cursors.Prev != nil {
		page.Cursors.Prev = *raw.Cursors.Prev
	}

	for _, data := range raw.Runs {
		run, err := decodeRun(data)
		if err != nil {
			page.Quarantined++
			c.logger.Warn("Quarantined malformed run",
				zap.String("run_id", run.ID),
				zap.Error(err),
			)
			continue
		}
		page.Runs = append(page.Runs, run)
	}

	if page.Quarantined > 0 {
		c.metrics.RecordQuarantined(page.Quarantined)
	}
	return page
}
