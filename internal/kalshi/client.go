// Package kalshi implements the exchange gateway over the Kalshi trade API.
package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"kalshi-trader/internal/gateway"
	"kalshi-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryWait    = 2 * time.Second
	DefaultRetryMaxWait = 3 * time.Second
	DefaultRateLimit    = 10 // requests per second
	DefaultMarketTTL    = 30 * time.Second
)

// Client implements gateway.Gateway over REST.
type Client struct {
	http     *resty.Client
	baseURL  string
	basePath string
	signer   Signer
	limiter  *rate.Limiter
	log      zerolog.Logger

	timeout      time.Duration
	maxRetries   int
	retryWait    time.Duration
	retryMaxWait time.Duration
	marketTTL    time.Duration

	now   func() time.Time
	newID func() string

	markets    *marketCache
	categories sync.Map // event ticker -> category
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL sets the API root, including the version path.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxRetries sets the retry count for rate limited and transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryWait sets the retry wait bounds.
func WithRetryWait(wait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.retryWait = wait
		c.retryMaxWait = maxWait
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithSigner enables authenticated endpoints.
func WithSigner(s Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// WithMarketTTL sets how long single-market reads are cached.
func WithMarketTTL(d time.Duration) Option {
	return func(c *Client) {
		c.marketTTL = d
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithClock overrides the clock used for signing and caching.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Kalshi REST client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:      DefaultBaseURL,
		limiter:      rate.NewLimiter(DefaultRateLimit, DefaultRateLimit),
		log:          zerolog.Nop(),
		timeout:      DefaultTimeout,
		maxRetries:   DefaultMaxRetries,
		retryWait:    DefaultRetryWait,
		retryMaxWait: DefaultRetryMaxWait,
		marketTTL:    DefaultMarketTTL,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c.basePath = strings.TrimRight(u.Path, "/")
	c.markets = newMarketCache(c.marketTTL)

	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(c.maxRetries).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(c.retryMaxWait).
		AddRetryCondition(retryable).
		OnBeforeRequest(c.sign)

	return c, nil
}

// Compile-time interface checks.
var (
	_ gateway.Gateway          = (*Client)(nil)
	_ gateway.CacheInvalidator = (*Client)(nil)
)

// Authenticated reports whether trading endpoints are available.
func (c *Client) Authenticated() bool {
	return c.signer != nil
}

// retryable retries rate limiting on every method and gateway errors on reads.
func retryable(resp *resty.Response, err error) bool {
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	if code == http.StatusTooManyRequests {
		observability.RecordRateLimited()
		return true
	}
	if resp.Request != nil && resp.Request.Method == http.MethodGet {
		return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
	}
	return false
}

// sign runs before every attempt so retried requests carry a fresh timestamp.
func (c *Client) sign(_ *resty.Client, r *resty.Request) error {
	if c.signer == nil {
		return nil
	}
	headers, err := c.signer.Headers(r.Method, c.signingPath(r.URL), c.now())
	if err != nil {
		return err
	}
	r.SetHeaders(headers)
	return nil
}

// signingPath returns the absolute path without query for a relative or absolute URL.
func (c *Client) signingPath(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil {
			return u.Path
		}
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return c.basePath + raw
}

// call describes one API request.
type call struct {
	op     string // metric label
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

// do executes a call and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	if cl.auth && c.signer == nil {
		return gateway.ErrUnauthorized
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := c.execute(ctx, cl, out)
	observability.RecordAPICall(cl.op, time.Since(start).Seconds(), err)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		c.log.Debug().Err(err).Str("op", cl.op).Str("path", cl.path).Msg("api call failed")
	}
	return err
}

func (c *Client) execute(ctx context.Context, cl call, out any) error {
	req := c.http.R().SetContext(ctx)
	if cl.query != nil {
		req.SetQueryParamsFromValues(cl.query)
	}
	if cl.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return gateway.ErrRateLimited
	case code == http.StatusNotFound:
		return gateway.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", gateway.ErrUnauthorized, code)
	case code >= 400:
		return fmt.Errorf("%s %s: status %d: %s", cl.method, cl.path, code, truncate(resp.String(), 300))
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", cl.op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
