// Package client provides the HTTP client for the remote collection endpoint.
// It implements pagination.PageFetcher: it builds the filtered first-page URL,
// fetches single pages and classifies failures so the collector knows which
// ones are worth retrying.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for endpoint requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collection_requests_total",
		Help: "Total collection page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "collection_request_duration_seconds",
		Help:    "Collection page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)

// maxBodyBytes bounds how much of a page body is read.
const maxBodyBytes = 32 << 20

// Config holds the client configuration.
type Config struct {
	// BaseURL is the collection endpoint, e.g. "https://api.example.com/v1/items/".
	BaseURL string

	// User-Agent header sent with every request (REQUIRED)
	UserAgent string

	// Timeout per page request
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for endpoint.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// Client fetches pages from the collection endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   *url.URL
	config     Config
	logger     zerolog.Logger
}

var _ pagination.PageFetcher = (*Client)(nil)

// New creates a new endpoint client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	endpoint, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: endpoint,
		config:   cfg,
		logger:   logging.NewLogger("client"),
	}, nil
}

// FirstPageURL returns the endpoint URL carrying filters as query parameters.
// archived is always sent; search only when non-empty.
func (c *Client) FirstPageURL(filters cache.Filters) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("archived", strconv.FormatBool(filters.Archived))
	if filters.Search != "" {
		q.Set("search", filters.Search)
	} else {
		q.Del("search")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage performs a single GET for pageURL and decodes the page.
// Failures are returned as *HTTPError, except context cancellation which is
// returned as the context's error.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (pagination.Page, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return pagination.Page{}, &HTTPError{
			Class:   ErrorClassClient,
			URL:     pageURL,
			Message: "invalid request",
			Err:     err,
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", pageURL).Msg("Requesting page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			requestsTotal.WithLabelValues("canceled").Inc()
			return pagination.Page{}, fmt.Errorf("request %s: %w", pageURL, ctx.Err())
		}
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("Page request failed")
		return pagination.Page{}, &HTTPError{
			Class:   ErrorClassNetwork,
			URL:     pageURL,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		c.logger.Warn().
			Str("url", pageURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Page request error")

		return pagination.Page{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      class,
			URL:        pageURL,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pagination.Page{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			URL:        pageURL,
			Message:    "read body",
			Err:        err,
		}
	}

	page, err := decodePage(body, pageURL)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", pageURL).Msg("Page body rejected")
		return pagination.Page{}, &HTTPError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			URL:        pageURL,
			Message:    "decode body",
			Err:        err,
		}
	}

	c.logger.Debug().
		Str("url", pageURL).
		Int("items", len(page.Items)).
		Bool("has_next", page.Next != "").
		Msg("Page decoded")

	return page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
