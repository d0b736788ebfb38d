package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	entries []Entry
	err     error
}

func (s *captureSink) Emit(_ context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type failingLog struct{}

func (failingLog) Append(context.Context, Entry) (int64, error) {
	return 0, errors.New("log store unavailable")
}

func (failingLog) ListSince(context.Context, int64) ([]Entry, error) { return nil, nil }

func TestRecorderAppendsAndFansOut(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	sink := &captureSink{}
	rec := NewRecorder(log, WithSink(sink))

	require.NoError(t, rec.Record(ctx, "person", "1", ActionAnonymised, time.Now()))

	entries, err := log.ListSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionAnonymised, entries[0].Action)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, entries[0].ID, sink.entries[0].ID, "sink sees the assigned id")
}

func TestRecorderFailsClosedOnAppendError(t *testing.T) {
	rec := NewRecorder(failingLog{})
	err := rec.Record(context.Background(), "person", "1", ActionDeleted, time.Now())
	require.Error(t, err)
}

func TestRecorderDisabledSkipsLogButNotSinks(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	sink := &captureSink{}
	rec := NewRecorder(log, Disabled(), WithSink(sink))
	assert.False(t, rec.Enabled())

	require.NoError(t, rec.Record(ctx, "person", "1", ActionAnonymised, time.Now()))

	entries, err := log.ListSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, sink.entries, 1, "alternate mechanism still sees the action")
}

func TestRecorderSinkFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryLog()
	rec := NewRecorder(log, WithSink(&captureSink{err: errors.New("broker down")}))

	require.NoError(t, rec.Record(ctx, "person", "1", ActionAnonymised, time.Now()))

	entries, err := log.ListSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
