// Package clients provides the HTTP client used to talk to the Omnivore API.
package clients

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"-"`
	UserAgent string `json:"user_agent"`

	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`

	// Rate limiting, disabled when RateLimit is zero
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`
}

// DefaultHTTPConfig returns the default client configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		RequestTimeout:        300 * time.Second,
		KeepAlive:             30 * time.Second,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
	Duration   time.Duration
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPClient issues authenticated GET requests against a base URL.
type HTTPClient struct {
	config      *HTTPConfig
	logger      *zap.Logger
	base        *url.URL
	httpClient  *http.Client
	transport   *http.Transport
	rateLimiter RateLimiter

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient creates a client for config.BaseURL.
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid base url")
	}
	base.RawQuery, base.Fragment = "", ""
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "base url %q must be absolute", config.BaseURL)
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
		base:   base,
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.httpClient = &http.Client{
		Transport: client.transport,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.RateLimit > 0 {
		client.rateLimiter = NewRateLimiter(config.RateLimit, config.RateBurst)
	}

	return client, nil
}

// URL resolves an escaped path and query against the base URL. The path is
// appended to the base path, so "/locations" on ".../1.0" yields
// ".../1.0/locations".
func (c *HTTPClient) URL(path string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(c.base.String() + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request path")
	}
	u.RawQuery = EncodeQuery(query)
	return u, nil
}

// Get performs one GET request and reads the whole body.
//
// Responses with status 429 or 5xx are returned together with an
// ErrorTypeRetriableAPI error. Transport failures are classified as
// ErrorTypeTimeout or ErrorTypeConnection. Any other status is returned
// without an error.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	target, err := c.URL(path, query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", c.config.APIKey)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "rate limiter wait aborted")
		}
	}

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, classify(ctx, err, target)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, classify(ctx, err, target)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        target,
		Duration:   time.Since(start),
	}

	if IsRetriableStatus(resp.StatusCode) {
		atomic.AddInt64(&c.failedRequests, 1)
		return out, errors.Newf(errors.ErrorTypeRetriableAPI, "GET %s returned %d", target.Path, resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}
	return out, nil
}

// IsRetriableStatus reports whether a status code signals a transient failure.
func IsRetriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// IsRetryable reports whether err from Get should be retried.
func IsRetryable(err error) bool {
	return errors.IsRetryable(err)
}

func classify(ctx context.Context, err error, target *url.URL) error {
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), errors.ErrorTypeInternal, "request cancelled")
	}
	msg := fmt.Sprintf("GET %s", target.Path)

	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, msg)
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, msg)
}

// EncodeQuery renders query parameters sorted by key. Parentheses and commas
// are left unescaped so filters such as gte(opened_at,1) stay readable.
func EncodeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	r := strings.NewReplacer("%28", "(", "%29", ")", "%2C", ",")
	return r.Replace(query.Encode())
}

// Stats is a snapshot of request counters. RateLimiter is nil when requests
// are not rate limited.
type Stats struct {
	TotalRequests  int64             `json:"total_requests"`
	FailedRequests int64             `json:"failed_requests"`
	RateLimiter    *RateLimiterStats `json:"rate_limiter,omitempty"`
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() Stats {
	stats := Stats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
	}
	if c.rateLimiter != nil {
		rl := c.rateLimiter.GetStats()
		stats.RateLimiter = &rl
	}
	return stats
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
