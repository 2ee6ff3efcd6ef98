package streaminghttp

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginGuard rejects cross-origin and DNS-rebinding requests. The server
// binds to loopback and serves a local client, so only loopback origins and
// hosts are acceptable.
type OriginGuard struct{}

// AllowRequest checks both the Origin header (when present) and the Host
// header. Non-browser clients send no Origin and pass on Host alone.
func (OriginGuard) AllowRequest(r *http.Request) bool {
	if origin := r.Header.Get("Origin"); origin != "" {
		u, err := url.Parse(origin)
		if err != nil || !isLoopbackHost(u.Host) {
			return false
		}
	}
	return isLoopbackHost(r.Host)
}

// isLoopbackHost reports whether a "host" or "host:port" value names the
// loopback interface. Bracketed IPv6 literals like "[::1]:8080" are
// handled.
func isLoopbackHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
