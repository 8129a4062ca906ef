package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/mcpindex/internal/metrics"
)

// Config controls client defaults.
type Config struct {
	Retries      int
	BaseDelay    time.Duration
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

const (
	defaultRetries      = 3
	defaultBaseDelay    = time.Second
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 32 << 20
)

// Response is a fully buffered HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues outbound requests with admission control, retry and timeouts.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a Client. A nil httpClient gets a pooled transport.
func New(httpClient *http.Client, cfg Config, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: newHTTPTransport()}
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, cfg: cfg, logger: logger}
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		Retries:      defaultRetries,
		BaseDelay:    defaultBaseDelay,
		Timeout:      defaultTimeout,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// Fetch performs a GET. 429, 5xx and transport errors are retried with linear
// backoff; any other status is returned as-is.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	req := request{
		retries:   c.cfg.Retries,
		baseDelay: c.cfg.BaseDelay,
		timeout:   c.cfg.Timeout,
		header:    http.Header{},
	}
	for _, opt := range opts {
		opt(&req)
	}
	upstream := hostOf(rawURL)

	if req.limiter != nil {
		if err := req.limiter.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire limiter: %w", err)
		}
	}

	var (
		attempts   int
		lastStatus int
		lastErr    error
	)
	operation := func() (*Response, error) {
		attempts++
		resp, err := c.do(ctx, rawURL, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			metrics.ObserveFetch(upstream, "error")
			lastStatus, lastErr = 0, err
			return nil, err
		}
		resp.Attempts = attempts
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			metrics.ObserveFetch(upstream, "http_429")
			lastStatus, lastErr = resp.StatusCode, errors.New(http.StatusText(resp.StatusCode))
			if secs, ok := retryAfterSeconds(resp.Header); ok {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, lastErr
		case resp.StatusCode >= 500:
			metrics.ObserveFetch(upstream, "http_5xx")
			lastStatus, lastErr = resp.StatusCode, errors.New(http.StatusText(resp.StatusCode))
			return nil, lastErr
		case resp.OK():
			metrics.ObserveFetch(upstream, "ok")
		default:
			metrics.ObserveFetch(upstream, "http_4xx")
		}
		return resp, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&linearBackOff{base: req.baseDelay}),
		backoff.WithMaxTries(uint(req.retries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.ObserveRetry(upstream)
			c.logger.Warn("fetch attempt failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return resp, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
	}
	if lastErr == nil {
		lastErr = err
	}
	c.logger.Error("fetch failed after all retries",
		zap.String("url", rawURL),
		zap.Int("attempts", attempts),
		zap.Int("status", lastStatus),
		zap.Error(lastErr),
	)
	return nil, &FetchFailedError{URL: rawURL, Attempts: attempts, Status: lastStatus, Err: lastErr}
}

// FetchJSON fetches rawURL and decodes the body into dst.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, dst any, opts ...Option) error {
	opts = append([]Option{WithHeader("Accept", "application/json")}, opts...)
	resp, err := c.Fetch(ctx, rawURL, opts...)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return fmt.Errorf("decode json from %s: %w", rawURL, err)
	}
	return nil
}

// FetchText fetches rawURL and returns the body as a string.
func (c *Client) FetchText(ctx context.Context, rawURL string, opts ...Option) (string, error) {
	resp, err := c.Fetch(ctx, rawURL, opts...)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}
	return string(resp.Body), nil
}

func (c *Client) do(ctx context.Context, rawURL string, req request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if c.cfg.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body failed", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func retryAfterSeconds(h http.Header) (int, bool) {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return secs, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		secs := int(time.Until(at).Seconds())
		if secs < 0 {
			secs = 0
		}
		return secs, true
	}
	return 0, false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
