// Package fetch provides the HTTP client shared by all orbit sources.
// Transient failures (network errors, 429, 5xx) are retried with
// exponential backoff; every other non-2xx status is returned as a
// *StatusError without retrying.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/internal/version"
)

var logger = logging.New("fetch")

// DefaultUserAgent identifies the client to remote archives.
var DefaultUserAgent = version.UserAgent()

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	Username  string
	Password  string
	// InitialBackoff is the first retry delay. Zero means 500ms.
	InitialBackoff time.Duration
	// HTTPClient overrides the underlying client (its Timeout is replaced).
	HTTPClient *http.Client
}

// Client performs GET requests with retries and optional basic auth.
type Client struct {
	http           *http.Client
	retries        int
	userAgent      string
	username       string
	password       string
	initialBackoff time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	ib := opts.InitialBackoff
	if ib <= 0 {
		ib = 500 * time.Millisecond
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		http:           hc,
		retries:        retries,
		userAgent:      ua,
		username:       opts.Username,
		password:       opts.Password,
		initialBackoff: ib,
	}
}

// WithAuth returns a copy of the client that sends basic auth credentials.
func (c *Client) WithAuth(username, password string) *Client {
	cp := *c
	cp.username = username
	cp.password = password
	return &cp
}

// Get issues a GET request. The caller must close the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	op := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		se := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, se
		}
		return nil, backoff.Permanent(se)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.retries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debugf("retrying in %s: %v", d, err)
		}),
	)
}

// GetText returns the response body as a string.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// GetJSON fetches url and parses the body as JSON.
func (c *Client) GetJSON(ctx context.Context, url string) (gjson.Result, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s: %w", url, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", url)
	}
	return gjson.ParseBytes(body), nil
}

// Download streams the body of url into dst and returns the byte count.
func (c *Client) Download(ctx context.Context, url string, dst io.Writer) (int64, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", url, err)
	}
	return n, nil
}
