package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second, MaxBytes: 1024})
	req := cloner.FetchRequest{URL: "https://example.com", MaxBytes: 10}

	collector := f.buildCollector(req, time.Unix(0, 0), &fetchState{})
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.Equal(t, 11, collector.MaxBodySize)

	collector = f.buildCollector(cloner.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &fetchState{})
	require.Equal(t, 1025, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{MaxBytes: 8})
	req := cloner.FetchRequest{
		URL:     "https://example.com/app.css",
		Referer: "https://example.com/",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	state := &fetchState{}

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), state)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onHeaders)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Equal(t, "https://example.com/", collyReq.Headers.Get("Referer"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/css"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://cdn.example.com/app.css")},
	})
	require.NoError(t, state.err)
	require.Equal(t, "body", string(state.result.Body))
	require.Equal(t, "text/css", state.result.ContentType)
	require.Equal(t, "https://cdn.example.com/app.css", state.result.FinalURL)
	require.Equal(t, int64(4), state.result.Size)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotFound,
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/app.css")},
	})
	var fe *cloner.FetchError
	require.ErrorAs(t, state.err, &fe)
	require.Equal(t, cloner.FetchClient, fe.Kind)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, state.err, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(cloner.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/style.css":
			w.Header().Set("Content-Type", "text/css")
			_, _ = w.Write([]byte("body{color:red}"))
		case "/missing.png":
			http.NotFound(w, r)
		case "/flaky.js":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/declared-large.bin":
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write(make([]byte, 4096))
		case "/streamed-large.bin":
			flusher, _ := w.(http.Flusher)
			for i := 0; i < 8; i++ {
				_, _ = w.Write([]byte(strings.Repeat("x", 256)))
				if flusher != nil {
					flusher.Flush()
				}
			}
		case "/ua":
			_, _ = w.Write([]byte(r.UserAgent()))
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "site-cloner-test", Timeout: 5 * time.Second, MaxBytes: 1024, AllowPrivate: true})
	ctx := context.Background()

	res, err := f.Fetch(ctx, cloner.FetchRequest{URL: srv.URL + "/style.css"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "body{color:red}", string(res.Body))
	require.Equal(t, "text/css", res.ContentType)

	// the same URL can be fetched again
	_, err = f.Fetch(ctx, cloner.FetchRequest{URL: srv.URL + "/style.css"})
	require.NoError(t, err)

	res, err = f.Fetch(ctx, cloner.FetchRequest{URL: srv.URL + "/ua"})
	require.NoError(t, err)
	require.Equal(t, "site-cloner-test", string(res.Body))

	cases := map[string]cloner.FetchErrorKind{
		"/missing.png":        cloner.FetchClient,
		"/flaky.js":           cloner.FetchTransient,
		"/declared-large.bin": cloner.FetchTooLarge,
		"/streamed-large.bin": cloner.FetchTooLarge,
	}
	for path, kind := range cases {
		_, err := f.Fetch(ctx, cloner.FetchRequest{URL: srv.URL + path})
		var fe *cloner.FetchError
		require.ErrorAs(t, err, &fe, path)
		require.Equal(t, kind, fe.Kind, path)
	}
}

func TestFetchRefusesPrivateAddresses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("internal"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), cloner.FetchRequest{URL: srv.URL})
	var fe *cloner.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, cloner.FetchClient, fe.Kind)
	require.False(t, fe.Retryable())
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	f := New(Config{Timeout: 5 * time.Second, AllowPrivate: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, cloner.FetchRequest{URL: srv.URL})
	var fe *cloner.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, cloner.FetchCanceled, fe.Kind)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onHeaders  colly.ResponseHeadersCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponseHeaders(cb colly.ResponseHeadersCallback) {
	s.onHeaders = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
