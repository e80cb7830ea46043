package utils

import (
	"net"
	"net/http"
	"strings"
)

// forwardedHeaders are checked in order before falling back to the peer
// address. The first one is set by Cloudflare, the others by most proxies.
var forwardedHeaders = []string{
	"CF-Connecting-IP",
	"X-Real-IP",
	"X-Forwarded-For",
}

// GetIpAddress gets the client IP address of a signaling connection from its
// handshake headers, or from the connection's remote address
func GetIpAddress(
	header http.Header,
	addr net.Addr,
) string {

	// Prefer what the proxy in front of us saw
	for _, name := range forwardedHeaders {
		if header == nil {
			break
		}
		value := header.Get(name)
		if value == "" {
			continue
		}
		// X-Forwarded-For lists the original client first
		first := strings.TrimSpace(strings.Split(value, ",")[0])
		if first != "" {
			return first
		}
	}

	if addr == nil {
		return ""
	}

	// Strip the port, and the IPv4-in-IPv6 prefix some listeners report
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return strings.TrimPrefix(host, "::ffff:")

}
