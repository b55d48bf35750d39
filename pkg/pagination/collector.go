package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrCursorLoop is returned when a next link points at a page already fetched.
	ErrCursorLoop = errors.New("pagination cursor loop")

	// ErrTooManyPages is returned when a collection exceeds Config.MaxPages.
	ErrTooManyPages = errors.New("too many pages")
)

// Page is one page of a paginated collection.
type Page struct {
	// Items are the records on this page, in server order.
	Items []cache.Record

	// Next is the URL of the following page, or "" on the last page.
	Next string
}

// PageFetcher is the interface the endpoint client must implement.
type PageFetcher interface {
	// FirstPageURL returns the URL of the first page for filters.
	FirstPageURL(filters cache.Filters) string

	// FetchPage fetches a single page.
	FetchPage(ctx context.Context, pageURL string) (Page, error)
}

// Status tags how complete a fetched collection is.
type Status int

const (
	// Complete means every page was fetched.
	Complete Status = iota

	// Partial means at least one page was fetched before a page failed.
	Partial

	// Failed means the first page failed; there are no items.
	Failed
)

// String returns the label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of FetchAll.
type Result struct {
	// Items is the concatenation of every fetched page in server order.
	// Never nil.
	Items []cache.Record

	// Status tells whether Items is the whole collection.
	Status Status

	// Pages is the number of pages fetched.
	Pages int

	// Err is why collection stopped early. Nil when Complete.
	Err error
}

// Config holds collector configuration.
type Config struct {
	// Retry controls per-page retries.
	Retry RetryConfig

	// MaxPages bounds the number of pages followed.
	MaxPages int

	// RequestsPerSecond paces page requests. 0 disables pacing.
	RequestsPerSecond float64

	// Burst is the token bucket size when pacing (default 1).
	Burst int
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		Retry:    DefaultRetryConfig(),
		MaxPages: 10000,
	}
}

// Collector fetches complete collections page by page.
type Collector struct {
	fetcher PageFetcher
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewCollector creates a new collector.
func NewCollector(fetcher PageFetcher, config Config) *Collector {
	if fetcher == nil {
		panic("page fetcher cannot be nil")
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 10000
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryConfig()
	}

	c := &Collector{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("collector"),
	}

	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return c
}

// FetchAll follows next links from the first page for filters until none is
// left. A page that still fails after retries ends collection; the pages
// fetched before it are returned as a Partial result.
func (c *Collector) FetchAll(ctx context.Context, filters cache.Filters) Result {
	start := time.Now()
	items := []cache.Record{}
	visited := make(map[string]struct{})
	pages := 0

	pageURL := c.fetcher.FirstPageURL(filters)
	for pageURL != "" {
		if pages >= c.config.MaxPages {
			return c.finish(filters, start, items, pages, fmt.Errorf("%w: limit %d", ErrTooManyPages, c.config.MaxPages))
		}
		if _, seen := visited[pageURL]; seen {
			return c.finish(filters, start, items, pages, fmt.Errorf("%w: %s", ErrCursorLoop, pageURL))
		}
		visited[pageURL] = struct{}{}

		page, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Int("page", pages+1).
				Str("url", pageURL).
				Msg("Page fetch failed")
			return c.finish(filters, start, items, pages, fmt.Errorf("page %d: %w", pages+1, err))
		}

		items = append(items, page.Items...)
		pages++
		PagesFetched.Inc()

		c.logger.Debug().
			Int("page", pages).
			Int("items", len(page.Items)).
			Bool("has_next", page.Next != "").
			Msg("Page fetched")

		pageURL = page.Next
	}

	return c.finish(filters, start, items, pages, nil)
}

func (c *Collector) fetchPage(ctx context.Context, pageURL string) (Page, error) {
	var page Page
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		p, err := c.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	return page, err
}

func (c *Collector) finish(filters cache.Filters, start time.Time, items []cache.Record, pages int, err error) Result {
	result := Result{
		Items:  items,
		Pages:  pages,
		Err:    err,
		Status: Complete,
	}
	switch {
	case err == nil:
	case pages > 0:
		result.Status = Partial
	default:
		result.Status = Failed
	}

	duration := time.Since(start)
	FetchResults.WithLabelValues(result.Status.String()).Inc()
	FetchDuration.Observe(duration.Seconds())

	event := c.logger.Info()
	if result.Status != Complete {
		event = c.logger.Warn().Err(err)
	}
	event.
		Stringer("filters", filters).
		Str("status", result.Status.String()).
		Int("pages", pages).
		Int("records", len(items)).
		Dur("duration", duration).
		Msg("Collection fetch finished")

	return result
}
