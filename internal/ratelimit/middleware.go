package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
)

// DefaultRetryAfterSeconds is sent in Retry-After when a key is limited.
const DefaultRetryAfterSeconds = 1

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the connection's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPBehind keys requests by client address for a server behind the
// trusted proxies. X-Forwarded-For is only read when the peer is trusted, and
// the client is the rightmost hop that is not itself a trusted proxy. With no
// trusted proxies it is ClientIP.
func ClientIPBehind(trusted []netip.Prefix) KeyFunc {
	if len(trusted) == 0 {
		return ClientIP
	}
	isTrusted := func(ip string) bool {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}
	return func(r *http.Request) string {
		peer := ClientIP(r)
		if !isTrusted(peer) {
			return peer
		}
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop) {
				return hop
			}
		}
		return peer
	}
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
// onLimited writes the rejection body; nil writes plain text.
func Middleware(limiter *RateLimiter, key KeyFunc, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(k) {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				if onLimited != nil {
					onLimited(w, r)
					return
				}
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("Too Many Requests"))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(k)))
			next.ServeHTTP(w, r)
		})
	}
}
