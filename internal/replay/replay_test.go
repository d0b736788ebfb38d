package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veil/internal/domain"
	"veil/internal/engine"
	"veil/internal/eventlog"
	"veil/internal/marker"
	"veil/internal/policy"
	"veil/internal/record"
	"veil/internal/registry"
	"veil/pkg/platform/sentinel"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func personType() domain.RecordType {
	return domain.RecordType{
		Name:       "person",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Kind: domain.KindInt},
			{Name: "name", Kind: domain.KindText},
			{Name: "email", Kind: domain.KindEmail},
		},
	}
}

type fixture struct {
	store   *record.MemoryStore
	markers *marker.MemoryStore
	log     *eventlog.MemoryLog
	replay  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New()
	require.NoError(t, reg.Register(personType(), &policy.Policy{
		RecordType:    personType(),
		PrivateFields: []string{"name", "email"},
		CanAnonymise:  true,
	}))
	require.NoError(t, reg.Finalize())

	f := &fixture{
		store:   record.NewMemoryStore(),
		markers: marker.NewMemoryStore(),
		log:     eventlog.NewMemoryLog(),
	}

	// The replay-side engine writes through a disabled recorder: replay
	// must not append to the log it is reading.
	silent := eventlog.NewRecorder(f.log, eventlog.Disabled())
	eng := engine.New(reg, f.store, f.markers, silent, engine.WithClock(func() time.Time { return testNow }))
	f.replay = New(f.log, f.store, f.markers, eng)
	return f
}

func (f *fixture) putPerson(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &domain.Record{
		Type: "person", Key: key,
		Values: map[string]any{"id": key, "name": "name-" + key, "email": key + "@real.example.com"},
	}))
}

func (f *fixture) appendEntry(t *testing.T, key string, action eventlog.Action) {
	t.Helper()
	_, err := f.log.Append(context.Background(), eventlog.Entry{
		RecordType: "person", RecordKey: key, Action: action, Timestamp: testNow,
	})
	require.NoError(t, err)
}

func TestReplayAppliesLoggedActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.putPerson(t, "2")
	f.appendEntry(t, "1", eventlog.ActionAnonymised)
	f.appendEntry(t, "2", eventlog.ActionDeleted)

	report, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 2, Anonymised: 1, Deleted: 1, LastID: 2}, report)

	rec, err := f.store.Get(ctx, "person", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.Values["name"])
	assert.Equal(t, "1@anon.example.com", rec.Values["email"])

	_, err = f.store.Get(ctx, "person", "2")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestReplayAppendsNothingToTheLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.appendEntry(t, "1", eventlog.ActionAnonymised)

	_, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "replay reproduces history without writing it")
}

func TestReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.putPerson(t, "2")
	f.appendEntry(t, "1", eventlog.ActionAnonymised)
	f.appendEntry(t, "2", eventlog.ActionDeleted)

	_, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)

	second, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 2, Skipped: 2, LastID: 2}, second,
		"second run finds every outcome already holds")
}

func TestReplaySkipsMarkedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	require.NoError(t, f.markers.Mark(ctx, "person", "1", testNow))
	f.appendEntry(t, "1", eventlog.ActionAnonymised)

	report, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	rec, err := f.store.Get(ctx, "person", "1")
	require.NoError(t, err)
	assert.Equal(t, "name-1", rec.Values["name"], "marked record left alone")
}

func TestReplayDoesNotResurrectDeletedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.appendEntry(t, "1", eventlog.ActionDeleted)
	f.appendEntry(t, "1", eventlog.ActionAnonymised)

	report, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Skipped, "anonymise after delete is a no-op")

	_, err = f.store.Get(ctx, "person", "1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestReplayAnonymiseThenDeleteLeavesRecordAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.appendEntry(t, "1", eventlog.ActionAnonymised)
	f.appendEntry(t, "1", eventlog.ActionDeleted)

	report, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Anonymised)
	assert.Equal(t, 1, report.Deleted)

	_, err = f.store.Get(ctx, "person", "1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestReplayFromOffset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.putPerson(t, "1")
	f.putPerson(t, "2")
	f.appendEntry(t, "1", eventlog.ActionAnonymised)
	f.appendEntry(t, "2", eventlog.ActionAnonymised)

	first, err := f.replay.Replay(ctx, 0)
	require.NoError(t, err)

	f.putPerson(t, "3")
	f.appendEntry(t, "3", eventlog.ActionAnonymised)

	second, err := f.replay.Replay(ctx, first.LastID)
	require.NoError(t, err)
	assert.Equal(t, Report{Processed: 1, Anonymised: 1, LastID: 3}, second)
}
