package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/kline/internal/domain/model"
	"github.com/okian/kline/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore is a bounded in-process Store. Timelines are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*model.Timeline
	order    []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore holding at most 10 000 timelines
// unless overridden.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{capacity: 10_000, items: make(map[string]*model.Timeline)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key Key, tl *model.Timeline) error {
	if err := key.Validate(); err != nil {
		metrics.RecordStoreOperation(backendMemory, "put", "error")
		return err
	}
	k := key.String()
	s.mu.Lock()
	if _, ok := s.items[k]; ok {
		s.removeOrder(k)
	}
	for len(s.order) >= s.capacity {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	s.items[k] = tl.Clone()
	s.order = append(s.order, k)
	s.mu.Unlock()
	metrics.RecordStoreOperation(backendMemory, "put", "ok")
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key Key) (*model.Timeline, error) {
	s.mu.RLock()
	tl, ok := s.items[key.String()]
	s.mu.RUnlock()
	if !ok {
		metrics.RecordStoreOperation(backendMemory, "get", "miss")
		return nil, ErrNotFound
	}
	metrics.RecordStoreOperation(backendMemory, "get", "hit")
	return tl.Clone(), nil
}

// AttachNarrative implements Store.
func (s *MemoryStore) AttachNarrative(_ context.Context, key Key, timelineID string, index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.items[key.String()]
	if !ok {
		metrics.RecordStoreOperation(backendMemory, "attach", "miss")
		return ErrNotFound
	}
	if tl.ID != timelineID {
		metrics.RecordStoreOperation(backendMemory, "attach", "stale")
		return fmt.Errorf("%w: stored %s, want %s", ErrStaleTimeline, tl.ID, timelineID)
	}
	if err := tl.AttachNarrative(index, text); err != nil {
		metrics.RecordStoreOperation(backendMemory, "attach", "error")
		return err
	}
	metrics.RecordStoreOperation(backendMemory, "attach", "ok")
	return nil
}

// DeleteChart implements Store.
func (s *MemoryStore) DeleteChart(_ context.Context, chartID string) (int, error) {
	if chartID == "" {
		return 0, fmt.Errorf("%w: empty chart id", ErrInvalidKey)
	}
	prefix := chartID + ":"
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	kept := s.order[:0]
	for _, k := range s.order {
		if strings.HasPrefix(k, prefix) {
			delete(s.items, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept
	metrics.RecordStoreOperation(backendMemory, "delete", "ok")
	return n, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) removeOrder(k string) {
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
