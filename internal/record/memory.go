package record

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"veil/internal/domain"
	"veil/pkg/platform/sentinel"
)

// MemoryStore is the reference Store implementation. It favors clarity over
// performance: delete operations are serialized by opMu (hooks re-enter the
// store to write anonymised fields), and the whole data set is snapshotted
// so a failing hook rolls the operation back.
type MemoryStore struct {
	opMu sync.Mutex
	mu   sync.RWMutex
	data map[string]map[string]map[string]any

	preDelete     []PreDeleteHook
	preDeleteMany []PreDeleteManyHook
	postDelete    []PostDeleteHook
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]map[string]any)}
}

var _ Store = (*MemoryStore)(nil)
var _ HookRegistrar = (*MemoryStore)(nil)

func (s *MemoryStore) OnPreDelete(hook PreDeleteHook) {
	s.preDelete = append(s.preDelete, hook)
}

func (s *MemoryStore) OnPreDeleteMany(hook PreDeleteManyHook) {
	s.preDeleteMany = append(s.preDeleteMany, hook)
}

func (s *MemoryStore) OnPostDelete(hook PostDeleteHook) {
	s.postDelete = append(s.postDelete, hook)
}

func (s *MemoryStore) Get(_ context.Context, typeName, key string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.data[typeName][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", sentinel.ErrNotFound, typeName, key)
	}
	return &domain.Record{Type: typeName, Key: key, Values: copyValues(values)}, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[rec.Type] == nil {
		s.data[rec.Type] = make(map[string]map[string]any)
	}
	s.data[rec.Type][rec.Key] = copyValues(rec.Values)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rec *domain.Record, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.data[rec.Type][rec.Key]
	if !ok {
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, rec.Ref())
	}
	for _, name := range fields {
		values[name] = rec.Values[name]
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, typeName string) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*domain.Record, 0, len(s.data[typeName]))
	for key, values := range s.data[typeName] {
		records = append(records, &domain.Record{Type: typeName, Key: key, Values: copyValues(values)})
	}
	sortByKey(records)
	return records, nil
}

func (s *MemoryStore) FindByField(_ context.Context, typeName, field string, value any) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*domain.Record
	for key, values := range s.data[typeName] {
		if got, ok := values[field]; ok && reflect.DeepEqual(got, value) {
			records = append(records, &domain.Record{Type: typeName, Key: key, Values: copyValues(values)})
		}
	}
	sortByKey(records)
	return records, nil
}

func (s *MemoryStore) Delete(ctx context.Context, typeName, key string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	rec, err := s.Get(ctx, typeName, key)
	if err != nil {
		return err
	}

	snapshot := s.snapshot()
	if err := s.deleteOne(ctx, rec); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, typeName string, keys []string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var recs []*domain.Record
	for _, key := range keys {
		rec, err := s.Get(ctx, typeName, key)
		if err != nil {
			continue // already gone, filtered-set semantics
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil
	}

	snapshot := s.snapshot()
	for _, hook := range s.preDeleteMany {
		if err := hook(ctx, recs); err != nil {
			s.restore(snapshot)
			return err
		}
	}
	for _, rec := range recs {
		if err := s.removeLocked(rec.Type, rec.Key); err != nil {
			s.restore(snapshot)
			return err
		}
		for _, hook := range s.postDelete {
			if err := hook(ctx, rec); err != nil {
				s.restore(snapshot)
				return err
			}
		}
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, typeName, key string) error {
	return s.removeLocked(typeName, key)
}

func (s *MemoryStore) deleteOne(ctx context.Context, rec *domain.Record) error {
	for _, hook := range s.preDelete {
		if err := hook(ctx, rec); err != nil {
			return err
		}
	}
	if err := s.removeLocked(rec.Type, rec.Key); err != nil {
		return err
	}
	for _, hook := range s.postDelete {
		if err := hook(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) removeLocked(typeName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[typeName][key]; !ok {
		return fmt.Errorf("%w: %s/%s", sentinel.ErrNotFound, typeName, key)
	}
	delete(s.data[typeName], key)
	return nil
}

func (s *MemoryStore) snapshot() map[string]map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]map[string]map[string]any, len(s.data))
	for typeName, byKey := range s.data {
		snap[typeName] = make(map[string]map[string]any, len(byKey))
		for key, values := range byKey {
			snap[typeName][key] = copyValues(values)
		}
	}
	return snap
}

func (s *MemoryStore) restore(snap map[string]map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = snap
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func sortByKey(records []*domain.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}
