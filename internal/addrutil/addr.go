package addrutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// LocalAddress is the loopback URL of the served port.
func LocalAddress(scheme string, port int) string {
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, port)
}

// JoinLink composes the shareable link for a resource behind an address.
func JoinLink(address, resource string) string {
	return strings.TrimRight(address, "/") + "/" + strings.TrimLeft(resource, "/")
}

// NormalizeBaseURL adds an http:// scheme to a bare host:port.
func NormalizeBaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + strings.TrimRight(addr, "/")
}

// ClientIP picks the originating client of a request. Behind a relay the
// peer address is the relay itself, so the first X-Forwarded-For hop wins.
func ClientIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return hostFromAddr(first)
		}
	}
	if h := hostFromAddr(remoteAddr); h != "" {
		return h
	}
	return "0.0.0.0"
}

func hostFromAddr(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// A bare IPv6 address has several colons and no port.
	if ip := net.ParseIP(strings.Trim(a, "[]")); ip != nil {
		return ip.String()
	}

	// Unbracketed IPv6 "host:port": peel off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil {
				return a[:last]
			}
		}
	}
	return strings.Trim(a, "[]")
}
