package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyFor builds a limiter key for the resolved scope.
func KeyFor(policy Policy, clientIP, userID, route string) string {
	if policy.Limit <= 0 {
		return ""
	}
	switch policy.Scope {
	case ScopeAnonymous:
		if clientIP == "" {
			return ""
		}
		return route + ":ip:" + clientIP
	case ScopeUser:
		if userID == "" {
			return ""
		}
		return route + ":u:" + userID
	default:
		return ""
	}
}

// ClientIP returns the first valid address in X-Forwarded-For, else the socket host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			candidate := strings.TrimSpace(part)
			if ip := net.ParseIP(candidate); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, errSplit := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if errSplit == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
