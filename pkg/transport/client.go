// Package transport provides the shared HTTP client used to talk to the
// resort site and the camera widget host: per-host connection caps, explicit
// header profiles and an optional response cache.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/rosakhutor-webcams/pkg/cache"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/hostlimit"
	"github.com/Sternrassler/rosakhutor-webcams/pkg/logging"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosacams_requests_total",
		Help: "Total upstream requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rosacams_request_duration_seconds",
		Help:    "Upstream request duration in seconds by host",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rosacams_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the transport configuration.
type Config struct {
	// Timeout bounds a single request including reading the body
	Timeout time.Duration

	// ConnLimit is the per-host concurrent connection cap (default 5)
	ConnLimit int

	// ConnLimits overrides ConnLimit for specific hosts or base URLs
	ConnLimits map[string]int

	// Cache enables the response cache when non-nil
	Cache *cache.Manager

	// CacheTTL is used for responses without an Expires header
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		ConnLimit: hostlimit.DefaultLimit,
		CacheTTL:  5 * time.Minute,
	}
}

// Client fetches pages as text. It is safe for concurrent use.
type Client struct {
	http      *resty.Client
	transport *http.Transport
	limiter   *hostlimit.Limiter
	cache     *cache.Manager
	config    Config
	logger    zerolog.Logger
}

// New creates a transport client. Callers own the client and must Close it.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConnLimit < 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidConnectionLimit, cfg.ConnLimit)
	}
	if cfg.ConnLimit == 0 {
		cfg.ConnLimit = hostlimit.DefaultLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	logger := logging.NewLogger("transport")

	limiter := hostlimit.New(cfg.ConnLimit, logger)
	for host, n := range cfg.ConnLimits {
		if err := limiter.SetLimit(host, n); err != nil {
			return nil, fmt.Errorf("connection limit for %s: %w", host, err)
		}
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.ConnLimit,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	rc := resty.New().
		SetTransport(tr).
		SetTimeout(cfg.Timeout).
		SetLogger(restyLogger{logger}).
		SetPreRequestHook(applyHostHeader)

	return &Client{
		http:      rc,
		transport: tr,
		limiter:   limiter,
		cache:     cfg.Cache,
		config:    cfg,
		logger:    logger,
	}, nil
}

// FetchText performs a GET with exactly the headers of profile and returns
// the body. Non-2xx responses and connection failures return *FetchError.
func (c *Client) FetchText(ctx context.Context, rawURL string, profile Profile) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", &FetchError{URL: rawURL, ErrorClass: ErrorClassClient, Message: "invalid url", Err: err}
	}
	host := strings.ToLower(u.Host)

	key := cache.CacheKey{URL: rawURL, Profile: profile.Name()}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", rawURL).Str("profile", profile.Name()).Msg("Cache hit")
			return string(entry.Data), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	release, err := c.limiter.Acquire(ctx, host)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return "", &FetchError{URL: rawURL, ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer release()

	c.logger.Debug().
		Str("url", rawURL).
		Str("profile", profile.Name()).
		Msg("Executing request")

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(profile.Headers()).
		Get(rawURL)
	requestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())

	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(host, "network_error").Inc()
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("Request failed")
		return "", &FetchError{URL: rawURL, ErrorClass: ErrorClassNetwork, Err: err}
	}

	status := resp.StatusCode()
	requestsTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()

	if !resp.IsSuccess() {
		class := classifyStatus(status)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", rawURL).
			Int("status", status).
			Str("error_class", string(class)).
			Msg("Upstream error")
		return "", &FetchError{
			URL:        rawURL,
			StatusCode: status,
			ErrorClass: class,
			Message:    statusText(status),
		}
	}

	body := resp.Body()

	if c.cache != nil {
		entry := cache.NewEntry(status, resp.Header(), body, c.config.CacheTTL)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache response")
		}
	}

	return string(body), nil
}

// SetConnectionLimit caps concurrent in-flight requests to a host.
// hostOrBaseURL may be "sochi.camera" or "https://sochi.camera".
func (c *Client) SetConnectionLimit(hostOrBaseURL string, n int) error {
	return c.limiter.SetLimit(hostOrBaseURL, n)
}

// ConnectionLimit returns the cap in effect for a host.
func (c *Client) ConnectionLimit(hostOrBaseURL string) int {
	return c.limiter.Limit(hostOrBaseURL)
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// applyHostHeader moves a profile-supplied Host header onto the request,
// since net/http ignores Host in the header map.
func applyHostHeader(_ *resty.Client, req *http.Request) error {
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}
	return nil
}

// restyLogger routes resty's internal messages through zerolog.
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
