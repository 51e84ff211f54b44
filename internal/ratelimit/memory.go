package ratelimit

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = time.Minute

type memoryEntry struct {
	until time.Time
	count int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request fits in the key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || window <= 0 {
		return Result{Allowed: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	entry := l.counters[key]
	if entry == nil || !now.Before(entry.until) {
		entry = &memoryEntry{until: now.Add(window)}
		l.counters[key] = entry
	}
	reset := entry.until.UTC()
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// Len reports how many keys are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// sweepLocked drops expired windows so idle keys do not accumulate.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	if !l.lastSweep.IsZero() && now.Sub(l.lastSweep) < memorySweepInterval {
		return
	}
	l.lastSweep = now
	for key, entry := range l.counters {
		if !now.Before(entry.until) {
			delete(l.counters, key)
		}
	}
}
