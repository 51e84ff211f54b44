package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	subject string
	tool    string
}

// MemoryStore keeps counters in process memory. Counts are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[memoryKey]*Counter
	nowFn    func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[memoryKey]*Counter),
		nowFn:    time.Now,
	}
}

// Get returns the counter for subjectKey and toolID.
func (s *MemoryStore) Get(_ context.Context, subjectKey, toolID string) (Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[memoryKey{subject: subjectKey, tool: toolID}]
	if entry == nil {
		return Counter{}, false, nil
	}
	return *entry, true, nil
}

// Increment adds one use.
func (s *MemoryStore) Increment(_ context.Context, subjectKey, toolID string) (Counter, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, errKey
	}
	key := memoryKey{subject: subjectKey, tool: toolID}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[key]
	if entry == nil {
		entry = &Counter{SubjectKey: subjectKey, ToolID: toolID}
		s.counters[key] = entry
	}
	entry.Count++
	entry.UpdatedAt = s.nowFn().UTC()
	return *entry, nil
}

// IncrementBelow adds one use unless the counter already reached limit.
func (s *MemoryStore) IncrementBelow(_ context.Context, subjectKey, toolID string, limit int64) (Counter, bool, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, false, errKey
	}
	key := memoryKey{subject: subjectKey, tool: toolID}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.counters[key]
	if entry != nil && entry.Count >= limit {
		return *entry, false, nil
	}
	if entry == nil {
		if limit <= 0 {
			return Counter{SubjectKey: subjectKey, ToolID: toolID}, false, nil
		}
		entry = &Counter{SubjectKey: subjectKey, ToolID: toolID}
		s.counters[key] = entry
	}
	entry.Count++
	entry.UpdatedAt = s.nowFn().UTC()
	return *entry, true, nil
}

// Reset removes the counter.
func (s *MemoryStore) Reset(_ context.Context, subjectKey, toolID string) error {
	s.mu.Lock()
	delete(s.counters, memoryKey{subject: subjectKey, tool: toolID})
	s.mu.Unlock()
	return nil
}

// List returns matching counters, most recently used first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]Counter, error) {
	s.mu.Lock()
	out := make([]Counter, 0, len(s.counters))
	for _, entry := range s.counters {
		if filter.matches(*entry) {
			out = append(out, *entry)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].SubjectKey < out[j].SubjectKey
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
