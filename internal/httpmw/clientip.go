package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures ClientIP.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its rightmost entry, 2 the one
	// before that, and so on.
	TrustedHops int
}

// PeerAddr parses r.RemoteAddr. IPv4-mapped IPv6 addresses are unmapped so
// range checks see the IPv4 address.
func PeerAddr(r *http.Request) (netip.Addr, bool) {
	ap, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}

// IsInternalAddr reports loopback, private and link-local addresses.
func IsInternalAddr(a netip.Addr) bool {
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast()
}

// ClientIP stores the client address in the request context.
// X-Forwarded-For is honoured only when TrustedHops > 0 and the peer is an
// internal address; otherwise the forwarding headers are removed so nothing
// downstream trusts them.
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func clientAddr(r *http.Request, trustedHops int) string {
	peer, ok := PeerAddr(r)
	if !ok {
		dropForwarded(r)
		return r.RemoteAddr
	}
	if trustedHops <= 0 || !IsInternalAddr(peer) {
		dropForwarded(r)
		return peer.String()
	}

	xff := r.Header.Values("X-Forwarded-For")
	if len(xff) == 0 {
		return peer.String()
	}
	parts := strings.Split(strings.Join(xff, ","), ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer entries than proxies: fail closed
		dropForwarded(r)
		return peer.String()
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(parts[idx])); err == nil {
		return a.Unmap().String()
	}
	return peer.String()
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the address stored by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
