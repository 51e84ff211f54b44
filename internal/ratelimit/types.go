package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Reset.IsZero() || !now.Before(r.Reset) {
		return 0
	}
	wait := r.Reset.Sub(now)
	return (wait + time.Second - 1) / time.Second * time.Second
}

// Limiter provides fixed-window rate limit checks. The window for a key
// starts at its first request and lasts window; afterwards the count restarts.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Scope indicates which dimension the rate limit applies to.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeAnonymous
	ScopeUser
)

// Policy is the resolved limit, window and scope for a request.
type Policy struct {
	Limit  int
	Window time.Duration
	Scope  Scope
}
