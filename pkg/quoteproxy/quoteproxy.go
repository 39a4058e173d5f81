// Package quoteproxy ties the fetch and rewrite steps together for one quote
// page. It knows nothing about HTTP routing; handlers map its errors to
// status codes.
package quoteproxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/andesco/chartless/pkg/fetcher"
	"github.com/andesco/chartless/pkg/metrics"
	"github.com/andesco/chartless/pkg/rewriter"
)

const (
	DefaultOrigin = "https://finance.yahoo.com"
	snippetLength = 200
)

var (
	ErrEmptyTicker = errors.New("ticker is required")

	tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-=^]{1,16}$`)
	validate      = validator.New()
)

func init() {
	_ = validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
}

// InvalidTickerError is only produced with strict validation enabled.
type InvalidTickerError struct {
	Ticker string
}

func (e *InvalidTickerError) Error() string {
	return fmt.Sprintf("invalid ticker %q", e.Ticker)
}

// UpstreamStatusError reports a non-2xx upstream reply. Snippet holds the
// start of the body for diagnostics.
type UpstreamStatusError struct {
	Status  int
	URL     string
	Snippet string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream %d for %s", e.Status, e.URL)
}

// Page is a rendered, filtered quote page.
type Page struct {
	Ticker string
	URL    string
	HTML   []byte
}

// Fetcher is the upstream hop; *fetcher.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*fetcher.Response, error)
}

type Proxy struct {
	Origin   string
	Fetcher  Fetcher
	Rewriter *rewriter.Rewriter
	Strict   bool
	LogURLs  bool
	Log      zerolog.Logger
	Metrics  *metrics.Recorder
}

// NormalizeTicker uppercases the raw path segment. Anything non-empty is
// accepted unless strict is set.
func NormalizeTicker(raw string, strict bool) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyTicker
	}
	ticker := strings.ToUpper(raw)
	if strict {
		if err := validate.Var(ticker, "required,ticker"); err != nil {
			return "", &InvalidTickerError{Ticker: ticker}
		}
	}
	return ticker, nil
}

// UpstreamURL builds {origin}/quote/{ticker}.
func UpstreamURL(origin, ticker string) string {
	return strings.TrimSuffix(origin, "/") + "/quote/" + url.PathEscape(ticker)
}

// ProcessQuote fetches and filters the quote page for rawTicker.
func (p *Proxy) ProcessQuote(ctx context.Context, rawTicker string) (*Page, error) {
	ticker, err := NormalizeTicker(rawTicker, p.Strict)
	if err != nil {
		return nil, err
	}
	target := UpstreamURL(p.Origin, ticker)

	if p.LogURLs {
		p.Log.Info().Str("url", target).Msg("fetching upstream")
	}

	start := time.Now()
	resp, err := p.Fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	p.Metrics.RecordUpstream(resp.StatusCode, time.Since(start).Seconds())
	p.Log.Debug().
		Int("status", resp.StatusCode).
		Str("content_type", resp.Header.Get("Content-Type")).
		Int("bytes", len(resp.Body)).
		Msg("upstream responded")

	if !resp.OK() {
		return nil, &UpstreamStatusError{
			Status:  resp.StatusCode,
			URL:     target,
			Snippet: snippet(resp.Body),
		}
	}

	start = time.Now()
	out, err := p.Rewriter.Transform(resp.Body, p.Origin)
	if err != nil {
		return nil, err
	}
	p.Metrics.RecordTransform(time.Since(start).Seconds(), len(out))

	return &Page{Ticker: ticker, URL: target, HTML: out}, nil
}

func snippet(body []byte) string {
	r := []rune(string(body))
	if len(r) > snippetLength {
		r = r[:snippetLength]
	}
	return string(r)
}
