package cloner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Resolver looks up the addresses behind a hostname. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// HostGuard refuses URLs whose host is, or resolves to, a private address.
// A nil *HostGuard allows everything.
type HostGuard struct {
	resolver Resolver
}

// NewHostGuard builds a HostGuard. A nil resolver uses net.DefaultResolver.
func NewHostGuard(resolver Resolver) *HostGuard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &HostGuard{resolver: resolver}
}

// CheckURL resolves the host of rawURL. Private targets fail with a
// non-retryable FetchError wrapping ErrPrivateAddress.
func (g *HostGuard) CheckURL(ctx context.Context, rawURL string) error {
	if g == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &FetchError{URL: rawURL, Kind: FetchClient, Err: fmt.Errorf("parse url: %w", err)}
	}
	if err := g.CheckHost(ctx, u.Hostname()); err != nil {
		if errors.Is(err, ErrPrivateAddress) {
			return &FetchError{URL: rawURL, Kind: FetchClient, Err: err}
		}
		return ClassifyTransportError(rawURL, err)
	}
	return nil
}

// CheckHost fails when host names or resolves to a private address.
func (g *HostGuard) CheckHost(ctx context.Context, host string) error {
	if g == nil {
		return nil
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return fmt.Errorf("empty host: %w", ErrPrivateAddress)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%s: %w", host, ErrPrivateAddress)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return fmt.Errorf("%s: %w", host, ErrPrivateAddress)
		}
		return nil
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if IsPrivateIP(addr.IP) {
			return fmt.Errorf("%s resolves to %s: %w", host, addr.IP, ErrPrivateAddress)
		}
	}
	return nil
}
