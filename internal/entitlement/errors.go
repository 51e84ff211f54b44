package entitlement

import (
	"errors"

	"github.com/tubekit/tubekit-server/internal/usage"
)

var (
	// ErrNotAuthenticated is returned when a tool requires sign-in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrQuotaExhausted is returned when the free limit is used up.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrRateLimited is returned when a client exceeds its request window.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable is returned when the counter backend fails.
	ErrStoreUnavailable = usage.ErrStoreUnavailable
	// ErrUnknownTool is returned for tools missing from the catalog or disabled.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDenied is returned for a denied decision without a known reason.
	ErrDenied = errors.New("use denied")
)

// Err maps a denied decision to its sentinel; allowed decisions map to nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNotAuthenticated:
		return ErrNotAuthenticated
	case ReasonQuotaExhausted:
		return ErrQuotaExhausted
	case ReasonRateLimited:
		return ErrRateLimited
	case ReasonUnknownTool:
		return ErrUnknownTool
	default:
		return ErrDenied
	}
}
