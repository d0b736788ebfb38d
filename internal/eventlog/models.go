// Package eventlog is the append-only record of delete and anonymise
// actions, kept apart from the primary store so that restoring the primary
// from a backup does not roll back knowledge of actions taken after it.
package eventlog

import "time"

// Action classifies a log entry.
type Action string

const (
	ActionAnonymised Action = "anonymised"
	ActionDeleted    Action = "deleted"
)

// Entry is one logged action. Entries are created exactly once when the
// action completes against the primary store, never mutated, and never
// deleted by the core (retention is an external policy).
type Entry struct {
	// ID is assigned by the log store and increases monotonically.
	ID         int64
	RecordType string
	RecordKey  string
	Action     Action
	Timestamp  time.Time
}
