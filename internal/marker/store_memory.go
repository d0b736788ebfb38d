package marker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"veil/pkg/platform/sentinel"
)

type markerKey struct {
	typeName string
	key      string
}

// MemoryStore keeps markers in a map. Used in tests and by collaborators
// without external storage.
type MemoryStore struct {
	mu      sync.RWMutex
	markers map[markerKey]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{markers: make(map[markerKey]time.Time)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Mark(_ context.Context, typeName, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[markerKey{typeName, key}] = at
	return nil
}

func (s *MemoryStore) IsMarked(_ context.Context, typeName, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.markers[markerKey{typeName, key}]
	return ok, nil
}

func (s *MemoryStore) MarkedAt(_ context.Context, typeName, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.markers[markerKey{typeName, key}]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: marker %s/%s", sentinel.ErrNotFound, typeName, key)
	}
	return at, nil
}

// Count reports the number of markers; test helper.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}
