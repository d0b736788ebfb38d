package eventlog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresLog persists entries in the privacy_event_log table:
//
//	CREATE TABLE privacy_event_log (
//	    id          BIGSERIAL   PRIMARY KEY,
//	    record_type TEXT        NOT NULL,
//	    record_key  TEXT        NOT NULL,
//	    action      TEXT        NOT NULL,
//	    occurred_at TIMESTAMPTZ NOT NULL
//	);
//
// The table is expected to live on a database separate from the primary
// store; pass a *sql.DB opened against the log database.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

var _ Log = (*PostgresLog)(nil)

func (l *PostgresLog) Append(ctx context.Context, entry Entry) (int64, error) {
	query := `
		INSERT INTO privacy_event_log (record_type, record_key, action, occurred_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := l.db.QueryRowContext(ctx, query,
		entry.RecordType, entry.RecordKey, string(entry.Action), entry.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append event log entry: %w", err)
	}
	return id, nil
}

func (l *PostgresLog) ListSince(ctx context.Context, afterID int64) ([]Entry, error) {
	query := `
		SELECT id, record_type, record_key, action, occurred_at
		FROM privacy_event_log
		WHERE id > $1
		ORDER BY id ASC
	`
	rows, err := l.db.QueryContext(ctx, query, afterID)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		if err := rows.Scan(&entry.ID, &entry.RecordType, &entry.RecordKey, &action, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event log entry: %w", err)
		}
		entry.Action = Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event log: %w", err)
	}
	return entries, nil
}
