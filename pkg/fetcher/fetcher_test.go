package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := New("https://finance.example.com")
	resp, err := f.Fetch(context.Background(), srv.URL+"/quote/AAPL")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.OK())
	assert.Equal(t, "<html></html>", string(resp.Body))
	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "https://finance.example.com/", got.Get("Referer"))
	assert.Equal(t, "navigate", got.Get("Sec-Fetch-Mode"))
	assert.Equal(t, "document", got.Get("Sec-Fetch-Dest"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, "en-US,en;q=0.9", got.Get("Accept-Language"))
}

func TestFetchReturnsNon2xxAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("busy"))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Equal(t, "busy", string(resp.Body))
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(srv.URL, WithTimeout(100*time.Millisecond))
	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	elapsed := time.Since(start)

	var te *TimeoutError
	require.True(t, errors.As(err, &te), "expected timeout error, got %v", err)
	assert.Equal(t, 100*time.Millisecond, te.Timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)

	var tr *TransportError
	assert.False(t, errors.As(err, &tr))
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(addr).Fetch(context.Background(), addr)

	var tr *TransportError
	require.True(t, errors.As(err, &tr), "expected transport error, got %v", err)
	assert.Equal(t, addr, tr.URL)

	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	t.Run("over limit", func(t *testing.T) {
		resp, err := New(srv.URL, WithMaxBodyBytes(4)).Fetch(context.Background(), srv.URL)
		assert.Nil(t, resp)

		var tl *BodyTooLargeError
		require.True(t, errors.As(err, &tl), "expected body too large error, got %v", err)
		assert.Equal(t, int64(4), tl.Limit)
		assert.Equal(t, srv.URL, tl.URL)
	})

	t.Run("at limit", func(t *testing.T) {
		resp, err := New(srv.URL, WithMaxBodyBytes(10)).Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", string(resp.Body))
	})
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(r)
}

func TestFetchWithClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	rt := &countingTransport{next: http.DefaultTransport}
	f := New(srv.URL, WithClient(&http.Client{Transport: rt}))

	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}
