// Package usage stores per-subject, per-tool use counters and the ledger of
// increments that could not be persisted.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreUnavailable marks a counter backend failure.
var ErrStoreUnavailable = errors.New("usage store unavailable")

// Counter is the current use count of one tool by one subject.
type Counter struct {
	SubjectKey string    `json:"subject_key"`
	ToolID     string    `json:"tool_id"`
	Count      int64     `json:"count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CounterStore persists usage counters.
// Increment and IncrementBelow must be atomic with respect to concurrent
// callers for the same key.
type CounterStore interface {
	// Get returns the counter; ok is false when the subject never used the tool.
	Get(ctx context.Context, subjectKey, toolID string) (counter Counter, ok bool, err error)
	// Increment adds one use and returns the updated counter.
	Increment(ctx context.Context, subjectKey, toolID string) (Counter, error)
	// IncrementBelow adds one use only while the count is below limit.
	// ok is false and the counter is left unchanged once the limit is reached.
	IncrementBelow(ctx context.Context, subjectKey, toolID string, limit int64) (counter Counter, ok bool, err error)
	// Reset clears the counter.
	Reset(ctx context.Context, subjectKey, toolID string) error
}

// ListFilter narrows a counter listing.
type ListFilter struct {
	SubjectPrefix string
	ToolID        string
	Limit         int
}

// Lister is implemented by stores that can enumerate counters for the admin API.
type Lister interface {
	List(ctx context.Context, filter ListFilter) ([]Counter, error)
}

func (f ListFilter) matches(c Counter) bool {
	if f.ToolID != "" && c.ToolID != f.ToolID {
		return false
	}
	if f.SubjectPrefix != "" && !strings.HasPrefix(c.SubjectKey, f.SubjectPrefix) {
		return false
	}
	return true
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 200
	}
	return f.Limit
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, action, err)
}

func validateKey(subjectKey, toolID string) error {
	if strings.TrimSpace(subjectKey) == "" || strings.TrimSpace(toolID) == "" {
		return errors.New("usage: empty subject or tool")
	}
	return nil
}

// WithTimeout bounds ctx for a single store call; a nil ctx becomes Background.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
