package cascade

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

var testNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func userType() domain.RecordType {
	return domain.RecordType{
		Name:       "user",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Kind: domain.KindInt},
			{Name: "name", Kind: domain.KindText},
		},
	}
}

func orderType() domain.RecordType {
	return domain.RecordType{
		Name:       "order",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Kind: domain.KindInt},
			{Name: "customer", Kind: domain.KindForeignKey, Nullable: true, RelatedType: "user", OnDelete: domain.DeleteAnonymiseSetNull},
			{Name: "notes", Kind: domain.KindText, Blank: true},
		},
	}
}

type fixture struct {
	store   *record.MemoryStore
	markers *marker.MemoryStore
	log     *eventlog.MemoryLog
}

func newFixture(t *testing.T, policies map[string]*policy.Policy) *fixture {
	t.Helper()

	reg := registry.New()
	for _, p := range policies {
		require.NoError(t, reg.Register(p.RecordType, p))
	}
	require.NoError(t, reg.Finalize())

	f := &fixture{
		store:   record.NewMemoryStore(),
		markers: marker.NewMemoryStore(),
		log:     eventlog.NewMemoryLog(),
	}
	recorder := eventlog.NewRecorder(f.log)
	eng := engine.New(reg, f.store, f.markers, recorder, engine.WithClock(func() time.Time { return testNow }))
	executor := New(reg, f.store, eng, recorder, WithClock(func() time.Time { return testNow }))
	executor.Attach(f.store)
	return f
}

func defaultPolicies() map[string]*policy.Policy {
	return map[string]*policy.Policy{
		"user": {RecordType: userType(), PrivateFields: []string{"name"}, CanAnonymise: true},
		"order": {
			RecordType:    orderType(),
			PrivateFields: []string{"customer", "notes"},
			CanAnonymise:  true,
		},
	}
}

func putUser(t *testing.T, f *fixture, key, name string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &domain.Record{
		Type: "user", Key: key, Values: map[string]any{"id": key, "name": name},
	}))
}

func putOrder(t *testing.T, f *fixture, key, customer string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &domain.Record{
		Type: "order", Key: key, Values: map[string]any{"id": key, "customer": customer, "notes": "call before delivery"},
	}))
}

func TestDeleteAnonymisesReferrersInsteadOfDeletingThem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultPolicies())
	putUser(t, f, "7", "Alice")
	putOrder(t, f, "100", "7")

	require.NoError(t, f.store.Delete(ctx, "user", "7"))

	_, err := f.store.Get(ctx, "user", "7")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	order, err := f.store.Get(ctx, "order", "100")
	require.NoError(t, err, "referencing record survives the delete")
	assert.Nil(t, order.Values["customer"], "nullable relation nulls")
	assert.Equal(t, "", order.Values["notes"], "blankable text empties")

	marked, err := f.markers.IsMarked(ctx, "order", "100")
	require.NoError(t, err)
	assert.True(t, marked)

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, eventlog.ActionAnonymised, entries[0].Action)
	assert.Equal(t, "order/100", entries[0].RecordType+"/"+entries[0].RecordKey)
	assert.Equal(t, eventlog.ActionDeleted, entries[1].Action)
	assert.Equal(t, "user/7", entries[1].RecordType+"/"+entries[1].RecordKey)
}

func TestDeleteWithoutReferrersJustLogs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultPolicies())
	putUser(t, f, "7", "Alice")

	require.NoError(t, f.store.Delete(ctx, "user", "7"))

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, eventlog.ActionDeleted, entries[0].Action)
}

func TestBulkDeleteAnonymisesAllReferrers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultPolicies())
	for _, key := range []string{"1", "2", "3"} {
		putUser(t, f, key, "user-"+key)
		putOrder(t, f, "o"+key, key)
	}

	require.NoError(t, f.store.DeleteMany(ctx, "user", []string{"1", "2", "3"}))

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)

	var anonymised, deleted int
	for _, e := range entries {
		switch e.Action {
		case eventlog.ActionAnonymised:
			anonymised++
		case eventlog.ActionDeleted:
			deleted++
		}
	}
	assert.Equal(t, 3, anonymised, "one anonymisation per referencing order")
	assert.Equal(t, 3, deleted, "one delete entry per user")

	for _, key := range []string{"o1", "o2", "o3"} {
		order, err := f.store.Get(ctx, "order", key)
		require.NoError(t, err)
		assert.Nil(t, order.Values["customer"])
	}
}

func TestBulkDeleteDeduplicatesSharedReferrer(t *testing.T) {
	ctx := context.Background()

	// An order pointing at two users through two anonymise-tagged relations.
	orderRT := domain.RecordType{
		Name:       "order",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Kind: domain.KindInt},
			{Name: "customer", Kind: domain.KindForeignKey, Nullable: true, RelatedType: "user", OnDelete: domain.DeleteAnonymiseSetNull},
			{Name: "recipient", Kind: domain.KindForeignKey, Nullable: true, RelatedType: "user", OnDelete: domain.DeleteAnonymiseSetNull},
			{Name: "notes", Kind: domain.KindText, Blank: true},
		},
	}
	f := newFixture(t, map[string]*policy.Policy{
		"user":  {RecordType: userType(), PrivateFields: []string{"name"}, CanAnonymise: true},
		"order": {RecordType: orderRT, PrivateFields: []string{"customer", "recipient", "notes"}, CanAnonymise: true},
	})
	putUser(t, f, "1", "Alice")
	putUser(t, f, "2", "Bob")
	require.NoError(t, f.store.Put(ctx, &domain.Record{
		Type: "order", Key: "100",
		Values: map[string]any{"id": "100", "customer": "1", "recipient": "2", "notes": "gift"},
	}))

	require.NoError(t, f.store.DeleteMany(ctx, "user", []string{"1", "2"}))

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)

	var anonymised int
	for _, e := range entries {
		if e.Action == eventlog.ActionAnonymised {
			anonymised++
		}
	}
	assert.Equal(t, 1, anonymised, "shared referrer anonymised once")
}

func TestCascadeFailureAbortsDelete(t *testing.T) {
	ctx := context.Background()
	policies := defaultPolicies()
	policies["order"].CanAnonymise = false
	f := newFixture(t, policies)
	putUser(t, f, "7", "Alice")
	putOrder(t, f, "100", "7")

	err := f.store.Delete(ctx, "user", "7")
	require.ErrorIs(t, err, sentinel.ErrPolicy)

	user, err := f.store.Get(ctx, "user", "7")
	require.NoError(t, err, "delete rolled back")
	assert.Equal(t, "Alice", user.Values["name"])

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteOfUnregisteredTypeIsNotLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultPolicies())
	require.NoError(t, f.store.Put(ctx, &domain.Record{
		Type: "session", Key: "s1", Values: map[string]any{"id": "s1"},
	}))

	require.NoError(t, f.store.Delete(ctx, "session", "s1"))

	entries, err := f.log.ListSince(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
