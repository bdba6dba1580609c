// Package fetch downloads linked resources over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrTooLarge is returned when a resource exceeds the configured size limit.
var ErrTooLarge = errors.New("resource too large")

// Resource is a downloaded body.
type Resource struct {
	URL         string
	ContentType string
	Data        []byte
}

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	Timeout   time.Duration
	Attempts  int
	Delay     time.Duration
	MaxBytes  int64
	UserAgent string
}

// Client fetches http(s) and file URLs with retries.
type Client struct {
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
	maxBytes   int64
	userAgent  string
	log        *slog.Logger
}

func NewClient(opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 500 * time.Millisecond
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 52428800 // 50MB
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		attempts:   uint(opts.Attempts),
		delay:      opts.Delay,
		maxBytes:   opts.MaxBytes,
		userAgent:  opts.UserAgent,
		log:        log,
	}
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int // 0 for network errors
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return "retryable error: " + e.Message
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Get downloads rawURL. Server errors and network failures are retried;
// client errors fail immediately.
func (c *Client) Get(ctx context.Context, rawURL string) (*Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "file":
		return c.readFile(u)
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL)
	}

	return retry.DoWithData(
		func() (*Resource, error) { return c.get(ctx, rawURL) },
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debug("retrying download", "url", rawURL, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) get(ctx context.Context, rawURL string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := c.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return &Resource{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (c *Client) readFile(u *url.URL) (*Resource, error) {
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", u.Path, err)
	}
	defer f.Close()
	data, err := c.readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Path, err)
	}
	return &Resource{URL: u.String(), Data: data}, nil
}

func (c *Client) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
	}
	return data, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
