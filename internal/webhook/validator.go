package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Target URL errors.
var (
	ErrInvalidURL       = errors.New("webhook url is malformed")
	ErrInvalidScheme    = errors.New("webhook url must use https")
	ErrEmptyHost        = errors.New("webhook url has no host")
	ErrInvalidPort      = errors.New("webhook url must use port 443")
	ErrLocalhostBlocked = errors.New("webhook url points at this machine")
	ErrPrivateIP        = errors.New("webhook url points into a private network")
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// reservedPrefixes are ranges netip has no predicate for.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

// ValidateTargetURL accepts only https URLs on the default port whose
// host is, or resolves to, a public address. A nil r uses
// net.DefaultResolver. Hosts that do not resolve yet are accepted; their
// deliveries fail and are retried.
func ValidateTargetURL(ctx context.Context, r Resolver, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if err := checkEndpoint(u); err != nil {
		return err
	}

	host := u.Hostname()
	addrs, err := hostAddrs(ctx, r, host)
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return fmt.Errorf("%w: %s is %s", err, host, addr)
		}
	}
	return nil
}

func checkEndpoint(u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	switch {
	case u.Scheme != "https":
		return ErrInvalidScheme
	case host == "":
		return ErrEmptyHost
	case host == "localhost", strings.HasSuffix(host, ".localhost"), strings.HasSuffix(host, ".local"):
		return ErrLocalhostBlocked
	case u.Port() != "" && u.Port() != "443":
		return ErrInvalidPort
	}
	return nil
}

func hostAddrs(ctx context.Context, r Resolver, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	if r == nil {
		r = net.DefaultResolver
	}
	return r.LookupNetIP(ctx, "ip", host)
}

func checkAddr(addr netip.Addr) error {
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return ErrLocalhostBlocked
	}
	if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() {
		return ErrPrivateIP
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return ErrPrivateIP
		}
	}
	return nil
}

// targetHost is the host of raw, safe to log.
func targetHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	return u.Host
}
