package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/nidus-scraper/internal/crawler"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetchReturnsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Len(t, r.Header.Values("Accept"), 1)
		assert.Equal(t, "extension:urdf stars:>5", r.URL.Query().Get("q"))
		assert.Equal(t, "nidus-test", r.UserAgent())
		w.Header().Set("X-Resp", "ok")
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "nidus-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL + "/search/code",
		Headers: http.Header{"Accept": {"application/vnd.github.v3+json"}},
		Query:   map[string]string{"q": "extension:urdf stars:>5"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"items":[]}`, string(resp.Body))
	assert.Equal(t, "ok", resp.Headers.Get("X-Resp"))
	assert.True(t, resp.OK())
}

func TestFetchReportsErrorStatusesAsResponses(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusNotModified, http.StatusNotFound, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		f := New(Config{})
		resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
		srv.Close()
		require.NoError(t, err, status)
		assert.Equal(t, status, resp.StatusCode)
		assert.False(t, resp.OK())
	}
}

func TestFetchRepeatsSameURL(t *testing.T) {
	t.Parallel()

	calls := 0
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("x")),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})
	f := New(Config{Transport: transport})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a.xsd"})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	f := New(Config{Transport: transport})
	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/"})
	require.Error(t, err)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: "https://example.com/"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Now(), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{"X-Trace": {"default"}}}
	hooks.onRequest(collyReq)
	assert.Equal(t, []string{"yes"}, collyReq.Headers.Values("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func TestWithQuery(t *testing.T) {
	t.Parallel()

	got, err := withQuery("https://api.github.com/search/code?x=1", map[string]string{"page": "2"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.github.com/search/code?page=2&x=1", got)

	same, err := withQuery("https://example.com/a", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", same)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
