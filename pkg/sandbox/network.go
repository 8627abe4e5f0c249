package sandbox

import (
	"net"
	"strings"
)

// Network allow-list matching. Patterns are literal IP addresses (v4 or
// v6) or hostname patterns; "*.domain" matches "domain" and any
// subdomain. Hostname patterns never match raw IP connections, which
// closes the direct-IP bypass of a hostname allow-list. An empty list
// denies everything.

// HostAllowed reports whether a hostname matches the allow-list.
// An IP-literal host is only allowed by an identical IP pattern.
func HostAllowed(host string, allowList []string) bool {
	if len(allowList) == 0 {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return AddrAllowed(ip, allowList)
	}
	for _, pattern := range allowList {
		if hostnameMatches(host, pattern) {
			return true
		}
	}
	return false
}

// AddrAllowed reports whether an IP address matches the allow-list.
// Only literal IP patterns can match; hostname patterns are skipped so a
// "*.example.com" grant cannot be satisfied by connecting to its address
// directly.
func AddrAllowed(ip net.IP, allowList []string) bool {
	for _, pattern := range allowList {
		if allowed := net.ParseIP(pattern); allowed != nil && allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// DNSEnabled reports whether name lookups should be wired at all:
// only when some outbound destination is allowed.
func DNSEnabled(allowList []string) bool {
	return len(allowList) > 0
}

func hostnameMatches(host, pattern string) bool {
	if net.ParseIP(pattern) != nil {
		return false
	}
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return host == pattern
}
