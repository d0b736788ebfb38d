package eventlog

import "context"

// Log is the append-only store contract. Entries are best-effort ordered by
// timestamp; durability is not required to be transactionally atomic with
// the primary store write, since the two stores may live on different
// physical databases.
type Log interface {
	// Append stores the entry and returns its assigned id.
	Append(ctx context.Context, entry Entry) (int64, error)
	// ListSince returns entries with id greater than afterID, ascending.
	ListSince(ctx context.Context, afterID int64) ([]Entry, error)
}
