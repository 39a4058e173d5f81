// Package fetcher issues the single outbound request made for each quote page.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Response is an upstream reply. Non-2xx statuses are returned as-is.
// Header is kept for logging only; nothing from it is forwarded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TimeoutError is returned when the upstream did not answer within the budget.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream timeout after %s fetching %s", e.Timeout, e.URL)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// TransportError wraps network level failures: DNS, refused connections, TLS.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error fetching site %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BodyTooLargeError is returned instead of a truncated page when the upstream
// body exceeds the configured limit.
type BodyTooLargeError struct {
	URL   string
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("upstream body from %s exceeds %d bytes", e.URL, e.Limit)
}

type Fetcher struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxBodyBytes int64
	Header       http.Header
}

type Option func(*Fetcher)

func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.Timeout = timeout
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		f.MaxBodyBytes = n
	}
}

func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.Client = c
	}
}

// New creates a Fetcher that sends browser navigation headers with the
// given origin as referer.
func New(origin string, opts ...Option) *Fetcher {
	f := &Fetcher{
		Client:       &http.Client{},
		Timeout:      DefaultTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Header:       BrowserHeaders(origin),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BrowserHeaders is the header set of a desktop browser navigating to the
// provider from its own front page. The provider blocks or degrades
// requests without these.
func BrowserHeaders(origin string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", DefaultUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Referer", origin+"/")
	h.Set("Connection", "keep-alive")
	return h
}

// Fetch performs one GET without retries. The timeout covers headers and
// body; when it elapses the request is aborted and a *TimeoutError returned.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	req.Header = f.Header.Clone()

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, f.classify(ctx, targetURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBodyBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{URL: targetURL, Timeout: f.Timeout}
		}
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if int64(len(body)) > f.MaxBodyBytes {
		return nil, &BodyTooLargeError{URL: targetURL, Limit: f.MaxBodyBytes}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (f *Fetcher) classify(ctx context.Context, targetURL string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: targetURL, Timeout: f.Timeout}
	}
	return &TransportError{URL: targetURL, Err: err}
}
