package marker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"veil/pkg/platform/sentinel"
)

// PostgresStore persists markers in the anonymised_markers table:
//
//	CREATE TABLE anonymised_markers (
//	    record_type   TEXT        NOT NULL,
//	    record_key    TEXT        NOT NULL,
//	    anonymised_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (record_type, record_key)
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// Mark upserts the marker; conflicts update the timestamp only.
func (s *PostgresStore) Mark(ctx context.Context, typeName, key string, at time.Time) error {
	query := `
		INSERT INTO anonymised_markers (record_type, record_key, anonymised_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_type, record_key)
		DO UPDATE SET anonymised_at = EXCLUDED.anonymised_at
	`
	if _, err := s.db.ExecContext(ctx, query, typeName, key, at); err != nil {
		return fmt.Errorf("upsert marker: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsMarked(ctx context.Context, typeName, key string) (bool, error) {
	query := `SELECT 1 FROM anonymised_markers WHERE record_type = $1 AND record_key = $2`
	var one int
	err := s.db.QueryRowContext(ctx, query, typeName, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query marker: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) MarkedAt(ctx context.Context, typeName, key string) (time.Time, error) {
	query := `SELECT anonymised_at FROM anonymised_markers WHERE record_type = $1 AND record_key = $2`
	var at time.Time
	err := s.db.QueryRowContext(ctx, query, typeName, key).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: marker %s/%s", sentinel.ErrNotFound, typeName, key)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query marker: %w", err)
	}
	return at, nil
}
