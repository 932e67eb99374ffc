// Package client provides the page fetcher for the SurveyMonkey bulk
// responses endpoint: a cache-aware GET that writes every live page through
// to the cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/monscrape/pkg/cache"
	"github.com/Sternrassler/monscrape/pkg/ratelimit"
	"github.com/Sternrassler/monscrape/pkg/survey"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the SurveyMonkey API host.
const DefaultBaseURL = "https://api.surveymonkey.net"

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monscrape_requests_total",
		Help: "Total live API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monscrape_request_duration_seconds",
		Help:    "Live API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monscrape_errors_total",
		Help: "Total transport errors by class",
	}, []string{"class"})

	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monscrape_pages_fetched_total",
		Help: "Pages returned by the fetcher by source",
	}, []string{"source"}) // "cache", "live"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to relative request URLs. Absolute URLs, such as
	// the next/last links the API returns, are used as-is.
	BaseURL string

	// Token is the bearer token (REQUIRED).
	Token string

	// Partition is the collector id whose cache partition live pages are
	// written to.
	Partition string

	// Store is the page cache (REQUIRED).
	Store cache.Store

	// Timeout bounds one live request.
	Timeout time.Duration

	// RateLimiter gates live requests when set.
	RateLimiter *ratelimit.Tracker

	// HTTPClient replaces the default transport (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a default configuration for one collector.
func DefaultConfig(store cache.Store, token, partition string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		Partition: partition,
		Store:     store,
		Timeout:   30 * time.Second,
	}
}

// Client fetches pages for one partition.
type Client struct {
	config Config
	store  cache.Store
	logger zerolog.Logger

	// The HTTP client is built on the first live fetch and released by Close.
	restOnce sync.Once
	rest     *resty.Client
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Partition == "" {
		return nil, fmt.Errorf("partition is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().
		Str("component", "api-client").
		Str("collector", cfg.Partition).
		Logger()

	return &Client{
		config: cfg,
		store:  cfg.Store,
		logger: logger,
	}, nil
}

// BulkURL returns the first-page URL of a collector's bulk responses.
func BulkURL(collectorID string) string {
	return fmt.Sprintf("/v3/collectors/%s/responses/bulk", collectorID)
}

// Partition returns the collector id this client writes pages under.
func (c *Client) Partition() string {
	return c.config.Partition
}

// Fetch returns the page for url.
//
// With useCache set, a cached entry is decoded and returned without network
// access. Otherwise, or on a miss, the page is fetched live, decoded, and its
// raw body written to the cache before it is returned. A cached entry that no
// longer decodes is treated as a miss and replaced.
func (c *Client) Fetch(ctx context.Context, url string, useCache bool) (*survey.Page, error) {
	key := cache.CacheKey{Partition: c.config.Partition, URL: url}

	if useCache {
		page, ok, err := c.fromCache(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return page, nil
		}
	}

	return c.fetchLive(ctx, key)
}

func (c *Client) fromCache(ctx context.Context, key cache.CacheKey) (*survey.Page, bool, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache exists: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	data, err := c.store.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		// Invalidated between Exists and Get.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	page, err := survey.DecodePage(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", key.URL).Msg("Cached page is corrupt, refetching")
		return nil, false, nil
	}

	c.logger.Debug().Str("url", key.URL).Str("key", key.Hash()).Msg("Serving page from cache")
	pagesFetchedTotal.WithLabelValues("cache").Inc()
	return page, true, nil
}

func (c *Client) fetchLive(ctx context.Context, key cache.CacheKey) (*survey.Page, error) {
	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.Wait(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrQuotaExhausted) {
				errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
				return nil, &TransportError{URL: key.URL, ErrorClass: ErrorClassRateLimit, Err: err}
			}
			return nil, err
		}
	}

	c.logger.Info().Str("url", key.URL).Msg("Downloading page")

	startTime := time.Now()
	resp, err := c.restClient().R().SetContext(ctx).Get(key.URL)
	requestDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("url", key.URL).Msg("HTTP request failed")
		return nil, &TransportError{URL: key.URL, ErrorClass: ErrorClassNetwork, Err: err}
	}

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()

	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.UpdateFromHeaders(resp.Header()); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if !resp.IsSuccess() {
		class := classifyStatus(resp.StatusCode())
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", key.URL).
			Int("status", resp.StatusCode()).
			Str("error_class", string(class)).
			Msg("API request error")
		return nil, &TransportError{
			URL:        key.URL,
			StatusCode: resp.StatusCode(),
			ErrorClass: class,
			Message:    resp.Status(),
		}
	}

	body := resp.Body()
	page, err := survey.DecodePage(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &TransportError{
			URL:        key.URL,
			StatusCode: resp.StatusCode(),
			ErrorClass: ErrorClassDecode,
			Err:        err,
		}
	}

	if err := c.store.Set(ctx, key, body); err != nil {
		return nil, fmt.Errorf("cache set: %w", err)
	}

	c.logger.Debug().
		Str("url", key.URL).
		Int("total", page.Total).
		Int("responses", len(page.Data)).
		Dur("duration", time.Since(startTime)).
		Msg("Cached live page")

	pagesFetchedTotal.WithLabelValues("live").Inc()
	return page, nil
}

// restClient returns the HTTP client, creating it on first use.
func (c *Client) restClient() *resty.Client {
	c.restOnce.Do(func() {
		var rc *resty.Client
		if c.config.HTTPClient != nil {
			rc = resty.NewWithClient(c.config.HTTPClient)
		} else {
			rc = resty.New()
		}

		c.rest = rc.
			SetBaseURL(c.config.BaseURL).
			SetTimeout(c.config.Timeout).
			SetAuthScheme("Bearer").
			SetAuthToken(c.config.Token).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetLogger(restyLogger{logger: c.logger})
	})
	return c.rest
}

// Close releases idle connections of the HTTP client, if one was created.
func (c *Client) Close() error {
	if c.rest != nil {
		c.rest.GetClient().CloseIdleConnections()
	}
	return nil
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
