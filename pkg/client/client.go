// Package client provides the HTTP client for the bioactivity API with
// bounded retry, jittered backoff and failure classification.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bioactivity-dump/pkg/logging"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_api_requests_total",
		Help: "Total bioactivity API requests by status",
	}, []string{"status"})

	apiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bioactivity_api_request_duration_seconds",
		Help:    "Bioactivity API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bioactivity_api_errors_total",
		Help: "Total bioactivity API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public Drug Target Commons host.
	DefaultBaseURL = "https://drugtargetcommons.fimm.fi"

	// DefaultAPIPath is the bioactivity collection endpoint.
	DefaultAPIPath = "/api/data/bioactivity/"
)

// Client fetches pages from the bioactivity API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the scheme and host of the API.
	BaseURL string

	// APIPath is joined onto BaseURL to form the collection endpoint.
	APIPath string

	// UserAgent is sent with every request when set.
	UserAgent string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Retry is the backoff window between attempts.
	Retry RetryConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		APIPath:    DefaultAPIPath,
		UserAgent:  "bioactivity-dump/1.0",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		Retry:      DefaultRetryConfig(),
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Retry.MinBackoff < 0 || cfg.Retry.MaxBackoff < cfg.Retry.MinBackoff {
		return nil, fmt.Errorf("invalid backoff window [%s, %s)", cfg.Retry.MinBackoff, cfg.Retry.MaxBackoff)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	endpoint, err := joinURL(cfg.BaseURL, cfg.APIPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: endpoint,
		config:   cfg,
		logger:   logging.NewLogger("api-client"),
	}, nil
}

// joinURL resolves path against base the way a browser would.
func joinURL(base, path string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", base)
	}
	if path == "" {
		return b.String(), nil
	}
	p, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return b.ResolveReference(p).String(), nil
}

// Endpoint returns the resolved collection URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchPage fetches one page using the configured retry budget.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return c.Fetch(ctx, req.Values(), c.config.MaxRetries)
}

// Fetch issues a GET with params against the collection endpoint. Non-200
// responses and network errors are retried up to maxRetries times with a
// jittered wait in between. Once attempts are exhausted the returned error
// wraps ErrRetryExhausted; a body that does not decode is not retried.
func (c *Client) Fetch(ctx context.Context, params url.Values, maxRetries int) (*Page, error) {
	target := c.endpoint
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	logger := c.logger.With().
		Str("offset", params.Get("offset")).
		Str("limit", params.Get("limit")).
		Logger()

	var page *Page
	err := retryWithBackoff(ctx, logger, maxRetries, c.config.Retry, func(attempt int) error {
		logger.Debug().Int("attempt", attempt).Msg("Executing API request")

		p, err := c.get(ctx, target)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// TotalCount asks the API for the size of the collection. It requests a
// single-row page and reads meta.total_count, which must be a JSON integer;
// a quoted or fractional count fails the call as a decode error.
func (c *Client) TotalCount(ctx context.Context) (int, error) {
	page, err := c.FetchPage(ctx, PageRequest{Offset: 0, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("fetch total count: %w", err)
	}
	if page.Meta.TotalCount < 0 {
		return 0, fmt.Errorf("fetch total count: negative total_count %d", page.Meta.TotalCount)
	}
	return page.Meta.TotalCount, nil
}

// get performs a single attempt.
func (c *Client) get(ctx context.Context, target string) (*Page, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		errClass := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(errClass)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	page, err := decodePage(resp.Body)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "invalid response body",
			Err:        err,
		}
	}
	return page, nil
}

// errMissingRecords marks a 200 body without a bioactivities array. An
// empty array is a valid page; an absent or null one is not.
var errMissingRecords = errors.New("response has no bioactivities array")

func decodePage(r io.Reader) (*Page, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var page Page
	if err := dec.Decode(&page); err != nil {
		return nil, err
	}
	if page.Bioactivities == nil {
		return nil, errMissingRecords
	}
	return &page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
