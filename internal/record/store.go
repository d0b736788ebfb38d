// Package record defines the contract the core requires of the external
// record store, plus the reference in-memory implementation.
//
// The store must expose explicit interception points - pre-delete single,
// pre-delete bulk, and post-delete - that the cascade executor and event
// log subscribe to. This is a capability-registration pattern: nothing in
// the core subclasses or wraps the store's own types.
package record

import (
	"context"

	"veil/internal/domain"
)

// PreDeleteHook runs before a single record is deleted, inside the delete
// operation. An error aborts the delete and rolls back its effects.
type PreDeleteHook func(ctx context.Context, rec *domain.Record) error

// PreDeleteManyHook runs before a bulk delete, once for the whole selection.
// Bulk paths commonly bypass per-row notifications, so stores must call this
// explicitly rather than fan out to single-record hooks.
type PreDeleteManyHook func(ctx context.Context, recs []*domain.Record) error

// PostDeleteHook runs after each record is removed, still inside the
// operation, so a failing hook (for example an event-log append) rolls the
// delete back.
type PostDeleteHook func(ctx context.Context, rec *domain.Record) error

// Store is the persistence contract. Implementations backed by SQL rely on
// their own transaction isolation to serialize read-modify-write on a
// single record; the core performs no locking of its own.
type Store interface {
	// Get returns the record, or sentinel.ErrNotFound.
	Get(ctx context.Context, typeName, key string) (*domain.Record, error)
	// Put creates or replaces a record.
	Put(ctx context.Context, rec *domain.Record) error
	// Update atomically writes the named fields from rec.
	Update(ctx context.Context, rec *domain.Record, fields []string) error
	// List returns every record of the type, ordered by key.
	List(ctx context.Context, typeName string) ([]*domain.Record, error)
	// FindByField returns records whose field equals value, ordered by key.
	FindByField(ctx context.Context, typeName, field string, value any) ([]*domain.Record, error)
	// Delete removes one record through the hooked, all-or-nothing path.
	Delete(ctx context.Context, typeName, key string) error
	// DeleteMany removes a bulk selection through the hooked path. Keys
	// that no longer exist are skipped, matching filtered-set semantics.
	DeleteMany(ctx context.Context, typeName string, keys []string) error
	// Remove deletes without invoking hooks. Replay uses this path so that
	// re-applying a logged delete neither cascades nor re-logs.
	Remove(ctx context.Context, typeName, key string) error
}

// HookRegistrar is the subscription surface a store exposes.
type HookRegistrar interface {
	OnPreDelete(hook PreDeleteHook)
	OnPreDeleteMany(hook PreDeleteManyHook)
	OnPostDelete(hook PostDeleteHook)
}
