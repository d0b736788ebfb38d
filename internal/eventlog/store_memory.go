package eventlog

import (
	"context"
	"sync"
)

// MemoryLog is the in-memory Log used by tests and single-process
// collaborators.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

var _ Log = (*MemoryLog)(nil)

func (l *MemoryLog) Append(_ context.Context, entry Entry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.ID = l.nextID
	l.nextID++
	l.entries = append(l.entries, entry)
	return entry.ID, nil
}

func (l *MemoryLog) ListSince(_ context.Context, afterID int64) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, entry := range l.entries {
		if entry.ID > afterID {
			out = append(out, entry)
		}
	}
	return out, nil
}
