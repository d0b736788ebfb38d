// Package marker tracks which records have been anonymised.
//
// The flag lives in a side table rather than on the record itself, so
// third-party record types can be registered without schema changes.
package marker

import (
	"context"
	"time"
)

// Store persists anonymised markers. Mark is an upsert: re-anonymising an
// already-marked record updates the timestamp without duplicating the
// marker.
type Store interface {
	Mark(ctx context.Context, typeName, key string, at time.Time) error
	IsMarked(ctx context.Context, typeName, key string) (bool, error)
	// MarkedAt returns the marker timestamp, or sentinel.ErrNotFound.
	MarkedAt(ctx context.Context, typeName, key string) (time.Time, error)
}
