package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/ratelimit"
)

// RateLimit rejects requests once the client address has used up its
// tokens. Health checks are never limited. X-Forwarded-For is read only
// when the socket peer is one of trustedProxies.
func RateLimit(limiter *ratelimit.Limiter, trustedProxies []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := ClientIP(r, trustedProxies)
			if !limiter.Allow(key) {
				retry := int(math.Ceil(limiter.RetryAfter(key).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the address the request came from. The socket peer is
// the client unless it is a trusted proxy; then X-Forwarded-For is walked
// from the right and the first hop that is not a trusted proxy wins.
func ClientIP(r *http.Request, trustedProxies []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !trusted(addr, trustedProxies) {
		return peer
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A hop the proxy chain cannot vouch for ends the walk.
			break
		}
		if !trusted(hop, trustedProxies) {
			return hop.Unmap().String()
		}
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func trusted(addr netip.Addr, prefixes []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
