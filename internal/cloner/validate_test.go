package cloner

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTargetRejectsUnsafeURLs(t *testing.T) {
	t.Parallel()

	v := NewValidator([]string{"*.blocked.example"}, false)
	cases := map[string]string{
		"":                             "url: is required",
		"ftp://example.com/file":       "url: only http and https schemes are allowed",
		"https://user:pw@example.com/": "url: must not contain credentials",
		"http://127.0.0.1:8080/":       "url: targets a private or loopback address",
		"http://10.1.2.3/":             "url: targets a private or loopback address",
		"http://[::1]/":                "url: targets a private or loopback address",
		"http://169.254.169.254/":      "url: targets a private or loopback address",
		"http://localhost/":            "url: targets a loopback address",
		"https://www.blocked.example/": "url: host is blocked",
		"https:///nohost":              "url: has no host",
	}
	for raw, want := range cases {
		err := v.ValidateTarget(raw)
		require.Error(t, err, raw)
		require.True(t, errors.Is(err, ErrValidation), raw)
		require.Equal(t, want, err.Error(), raw)
	}
}

func TestValidateTargetAllowsPublicAndPrivateWhenConfigured(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewValidator(nil, false).ValidateTarget("https://example.com/landing"))
	require.NoError(t, NewValidator(nil, true).ValidateTarget("http://127.0.0.1:9000/"))
}

func TestValidateRequestChecksRewriteParameters(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil, false)
	base := CloneRequest{URL: "https://example.com", Name: "promo-site"}
	require.NoError(t, v.ValidateRequest(base))

	req := base
	req.Name = "../escape"
	require.ErrorIs(t, v.ValidateRequest(req), ErrValidation)

	req = base
	req.Rules.ContactNumber = "12ab"
	require.EqualError(t, v.ValidateRequest(req), "contact_number: must be 6-20 digits with optional leading +")

	req = base
	req.Rules.TrackingID = "UA-1234"
	require.EqualError(t, v.ValidateRequest(req), "tracking_id: must look like GTM-XXXXXXX")

	req = base
	req.Rules.ContactNumber = "+5215512345678"
	req.Rules.TrackingID = "GTM-ABC1234"
	req.RenderMode = RenderAlways
	require.NoError(t, v.ValidateRequest(req))

	req.RenderMode = "sometimes"
	require.EqualError(t, v.ValidateRequest(req), "render_mode: must be auto, always or never")
}

func TestIsPrivateIP(t *testing.T) {
	t.Parallel()

	require.True(t, IsPrivateIP(net.ParseIP("192.168.1.10")))
	require.True(t, IsPrivateIP(net.ParseIP("0.0.0.0")))
	require.True(t, IsPrivateIP(net.ParseIP("fe80::1")))
	require.False(t, IsPrivateIP(net.ParseIP("93.184.216.34")))
}

func TestDomainPatternBlocklist(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		bl := newDomainPatternBlocklist([]string{"Example.org"})
		if !bl.IsBlocked("example.org") {
			t.Fatalf("expected example.org to be blocked")
		}
		if bl.IsBlocked("sub.example.org") {
			t.Fatalf("did not expect subdomains to match exact entry")
		}
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		bl := newDomainPatternBlocklist([]string{"*.ru", ".internal"})
		cases := []struct {
			host    string
			blocked bool
		}{
			{"example.ru", true},
			{"sub.domain.ru.", true},
			{"ru", true},
			{"svc.internal", true},
			{"example.com", false},
		}
		for _, tc := range cases {
			if got := bl.IsBlocked(tc.host); got != tc.blocked {
				t.Fatalf("host %q blocked=%v, want %v", tc.host, got, tc.blocked)
			}
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		bl := newDomainPatternBlocklist([]string{" ", "*."})
		if bl != nil {
			t.Fatalf("expected nil blocklist for empty patterns")
		}
		if bl.IsBlocked("anything") {
			t.Fatalf("nil blocklist should never block")
		}
	})
}
