package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if assetFetchesTotal == nil || assetBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil || jobsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	before := testutil.ToFloat64(assetFetchesTotal.WithLabelValues("stylesheet", "success"))
	ObserveAssetFetch("https://test.com/site.css", "stylesheet", "success", 512)
	if val := testutil.ToFloat64(assetFetchesTotal.WithLabelValues("stylesheet", "success")); val != before+1 {
		t.Errorf("Expected asset fetch counter to grow by 1, got %f -> %f", before, val)
	}
	if val := testutil.ToFloat64(assetBytesTotal.WithLabelValues("test.com")); val < 512 {
		t.Errorf("Expected at least 512 bytes recorded for test.com, got %f", val)
	}

	ObserveRewrite("neutralized", 0)
	ObserveRewrite("neutralized", 3)
	if val := testutil.ToFloat64(rewriteLinksTotal.WithLabelValues("neutralized")); val < 3 {
		t.Errorf("Expected neutralized links to be recorded, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
