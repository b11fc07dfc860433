package http

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// proxyHeaders are consulted, in order, after X-Forwarded-For.
var proxyHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// ClientIP returns the first public address the request can be traced to,
// or "" when only private or loopback addresses are known. Forwarding
// headers count only when the peer is a trusted proxy; with the app's
// trusted proxy check enabled and no proxies listed, only the peer address
// is used.
func ClientIP(c *fiber.Ctx) string {
	if !c.IsProxyTrusted() {
		return firstPublicIP([]string{c.IP()})
	}

	if ip := firstPublicIP(strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")); ip != "" {
		return ip
	}

	for _, header := range proxyHeaders {
		if value := c.Get(header); value != "" {
			if ip := firstPublicIP([]string{value}); ip != "" {
				return ip
			}
		}
	}

	return firstPublicIP([]string{c.IP()})
}

func firstPublicIP(candidates []string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if host, _, err := net.SplitHostPort(candidate); err == nil {
			candidate = host
		}
		ip := net.ParseIP(candidate)
		if ip == nil || isPrivateIP(ip) {
			continue
		}
		return ip.String()
	}
	return ""
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsUnspecified() || ip.IsMulticast()
}
