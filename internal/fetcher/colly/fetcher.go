// Package collyfetcher implements cloner.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

const defaultMaxBytes int64 = 50 << 20

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBytes is the default body ceiling when a request does not set one.
	MaxBytes int64
	// AllowPrivate disables the dial-time check against private addresses.
	AllowPrivate bool
}

// Fetcher implements cloner.Fetcher using the Colly collector. Each call
// performs exactly one HTTP attempt; retries belong to the caller.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled in by the collector callbacks of a single visit.
type fetchState struct {
	result   cloner.FetchedResource
	err      error
	tooLarge bool
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Clones share the HTTP backend, so transport and client timeout are set once here.
	c.WithTransport(newHTTPTransport(cfg.AllowPrivate))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request cloner.FetchRequest) (cloner.FetchedResource, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := &fetchState{}
	start := time.Now()
	collector := f.buildCollector(request, start, state)

	if err := f.runCollector(ctx, collector, request.URL, state); err != nil {
		return cloner.FetchedResource{}, err
	}
	return state.result, nil
}

func (f *Fetcher) maxBytes(request cloner.FetchRequest) int64 {
	if request.MaxBytes > 0 {
		return request.MaxBytes
	}
	return f.cfg.MaxBytes
}

func (f *Fetcher) buildCollector(request cloner.FetchRequest, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.ParseHTTPErrorResponse = true
	// one extra byte distinguishes "exactly at the limit" from "truncated"
	collector.MaxBodySize = int(f.maxBytes(request) + 1)

	f.configureCollectorHooks(collector, request, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request cloner.FetchRequest,
	start time.Time,
	state *fetchState,
) {
	limit := f.maxBytes(request)

	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponseHeaders(func(r *colly.Response) {
		if r.Headers == nil {
			return
		}
		if declared := contentLength(*r.Headers); declared > limit {
			state.tooLarge = true
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if int64(len(r.Body)) > limit {
			state.tooLarge = true
			return
		}
		finalURL := request.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			state.err = cloner.NewStatusError(request.URL, r.StatusCode)
			return
		}
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		body := append([]byte(nil), r.Body...)
		state.result = cloner.FetchedResource{
			URL:         request.URL,
			FinalURL:    finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        body,
			Size:        int64(len(body)),
			Attempts:    1,
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			state.err = cloner.NewStatusError(request.URL, r.StatusCode)
			return
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return &cloner.FetchError{URL: url, Kind: cloner.FetchTransient, Err: fmt.Errorf("colly fetch timed out: %w", err)}
		}
		return &cloner.FetchError{URL: url, Kind: cloner.FetchCanceled, Err: fmt.Errorf("colly fetch canceled: %w", err)}
	case err := <-done:
		return classify(url, err, state)
	}
}

func classify(url string, visitErr error, state *fetchState) error {
	if state.tooLarge {
		return &cloner.FetchError{URL: url, Kind: cloner.FetchTooLarge, Err: errors.New("body exceeds size ceiling")}
	}
	if state.err != nil {
		if errors.Is(state.err, errPrivateAddress) {
			return &cloner.FetchError{URL: url, Kind: cloner.FetchClient, Err: state.err}
		}
		return cloner.ClassifyTransportError(url, state.err)
	}
	if visitErr != nil {
		if errors.Is(visitErr, colly.ErrRobotsTxtBlocked) || errors.Is(visitErr, errPrivateAddress) {
			return &cloner.FetchError{URL: url, Kind: cloner.FetchClient, Err: visitErr}
		}
		return cloner.ClassifyTransportError(url, fmt.Errorf("colly visit failed: %w", visitErr))
	}
	if state.result.StatusCode == 0 {
		return &cloner.FetchError{URL: url, Kind: cloner.FetchTransient, Err: errors.New("no response received")}
	}
	return nil
}

func (f *Fetcher) copyHeaders(request cloner.FetchRequest, r *colly.Request) {
	if request.Referer != "" {
		r.Headers.Set("Referer", request.Referer)
	}
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func contentLength(h http.Header) int64 {
	raw := h.Get("Content-Length")
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func newHTTPTransport(allowPrivate bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !allowPrivate {
		dialer.Control = rejectPrivateAddress
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}

// rejectPrivateAddress runs after DNS resolution, so names that resolve to
// internal addresses are refused as well as IP literals.
func rejectPrivateAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("split dial address: %w", err)
	}
	if ip := net.ParseIP(host); ip != nil && cloner.IsPrivateIP(ip) {
		return fmt.Errorf("dial %s: %w", address, errPrivateAddress)
	}
	return nil
}

var errPrivateAddress = errors.New("refusing to connect to a private address")
