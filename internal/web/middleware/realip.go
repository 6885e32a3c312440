package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites RemoteAddr to the client address reported by a
// trusted proxy. Headers from any other source are ignored, so a client
// cannot choose the IP that rate limiting and the history journal see.
//
// X-Real-IP wins when present. Otherwise X-Forwarded-For is walked from
// the right and the first hop outside the trusted ranges is the client.
// Entries may be CIDRs or single addresses; unparsable entries are logged
// and skipped.
func TrustedRealIP(trusted []string) func(http.Handler) http.Handler {
	proxies := parsePrefixes(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if proxies.contains(remoteAddr(r.RemoteAddr)) {
				if addr, ok := proxies.client(r.Header); ok {
					r.RemoteAddr = addr.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type prefixes []netip.Prefix

func parsePrefixes(entries []string) prefixes {
	var out prefixes
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", e, "error", err)
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out
}

func (ps prefixes) contains(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range ps {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// client picks the originating address from the proxy headers.
func (ps prefixes) client(h http.Header) (netip.Addr, bool) {
	if v := h.Get("X-Real-IP"); v != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(v))
		return addr, err == nil
	}

	hops := strings.Split(h.Get("X-Forwarded-For"), ",")
	var last netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A malformed hop ends the chain we can vouch for.
			break
		}
		last = addr
		if !ps.contains(addr) {
			return addr, true
		}
	}
	// Every hop was a trusted proxy: the leftmost is the best we have.
	return last, last.IsValid()
}

// remoteAddr parses a host:port or bare address. Failures yield the zero Addr.
func remoteAddr(s string) netip.Addr {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, _ := netip.ParseAddr(s)
	return addr
}
