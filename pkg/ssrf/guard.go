package ssrf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// ErrBlocked is returned for any target the guard refuses to contact
var ErrBlocked = errors.New("target blocked")

// DefaultBlockedHosts are refused by name before any resolution happens
var DefaultBlockedHosts = []string{
	"localhost",
	"localhost.localdomain",
	"metadata",
	"metadata.google.internal",
	"metadata.azure.internal",
	"instance-data",
}

// Prefixes that are not covered by the netip classification helpers
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// Resolver looks up the addresses of a host
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard decides whether an outbound target may be contacted
type Guard struct {
	// AllowPrivate disables address checks. Blocked host names still apply.
	AllowPrivate bool

	BlockedHosts []string
	Resolver     Resolver
}

// NewGuard returns a guard with the default blocked host list
func NewGuard(allowPrivate bool, extraBlocked ...string) *Guard {
	hosts := make([]string, 0, len(DefaultBlockedHosts)+len(extraBlocked))
	hosts = append(hosts, DefaultBlockedHosts...)
	for _, h := range extraBlocked {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Guard{
		AllowPrivate: allowPrivate,
		BlockedHosts: hosts,
		Resolver:     net.DefaultResolver,
	}
}

// CheckURL validates the host of an absolute URL
func (g *Guard) CheckURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: unparseable url", ErrBlocked)
	}
	return g.CheckHost(ctx, u.Hostname())
}

// CheckHost validates a host name or IP literal. Names are resolved and
// every returned address must pass.
func (g *Guard) CheckHost(ctx context.Context, host string) error {
	host = normaliseHost(host)
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlocked)
	}

	if g.hostBlocked(host) {
		return fmt.Errorf("%w: host %q is on the block list", ErrBlocked, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return g.CheckAddr(addr)
	}

	if g.AllowPrivate {
		return nil
	}

	resolver := g.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve %q", ErrBlocked, host)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %q has no addresses", ErrBlocked, host)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return fmt.Errorf("%w: %q resolved to an invalid address", ErrBlocked, host)
		}
		if err := g.CheckAddr(addr); err != nil {
			return err
		}
	}
	return nil
}

// CheckAddr rejects non-public addresses unless AllowPrivate is set
func (g *Guard) CheckAddr(addr netip.Addr) error {
	if g.AllowPrivate {
		return nil
	}
	if reason := classify(addr); reason != "" {
		return fmt.Errorf("%w: %s address %s", ErrBlocked, reason, addr)
	}
	return nil
}

// DialContext resolves and dials like net.Dialer but re-checks the address
// actually being connected to, which closes the window between validation
// and connection that DNS rebinding relies on.
func (g *Guard) DialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout: timeout,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBlocked, err)
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBlocked, err)
			}
			return g.CheckAddr(addr)
		},
	}
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, err)
		}
		if g.hostBlocked(normaliseHost(host)) {
			return nil, fmt.Errorf("%w: host %q is on the block list", ErrBlocked, host)
		}
		return d.DialContext(ctx, network, address)
	}
}

func (g *Guard) hostBlocked(host string) bool {
	for _, b := range g.BlockedHosts {
		b = normaliseHost(b)
		if b == "" {
			continue
		}
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func normaliseHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	host = strings.TrimSuffix(host, ".")
	// drop an IPv6 zone
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}
	return host
}

// classify returns why addr is not public, or "" if it is
func classify(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return "invalid"
	case addr.IsUnspecified():
		return "unspecified"
	case addr.IsLoopback():
		return "loopback"
	case addr.IsPrivate():
		return "private"
	case addr.IsLinkLocalUnicast():
		return "link-local"
	case addr.IsLinkLocalMulticast(), addr.IsInterfaceLocalMulticast(), addr.IsMulticast():
		return "multicast"
	case addr.Is4() && addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}):
		return "broadcast"
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return "reserved"
		}
	}
	return ""
}
