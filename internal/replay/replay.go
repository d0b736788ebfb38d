// Package replay re-applies the event log after a store restore. A restored
// backup resurrects records that were anonymised or deleted after the backup
// was taken; replaying the log in order converges the store back to its
// pre-restore privacy state.
package replay

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"veil/internal/domain"
	"veil/internal/engine/metrics"
	"veil/internal/eventlog"
	"veil/internal/marker"
	"veil/pkg/platform/sentinel"
)

// Store is the slice of the record store replay needs. Remove is the
// hook-free delete path: re-applying a logged delete must neither cascade
// nor append fresh log entries.
type Store interface {
	Get(ctx context.Context, typeName, key string) (*domain.Record, error)
	Remove(ctx context.Context, typeName, key string) error
}

// Anonymiser re-runs anonymisation on a resurrected record. Wire an engine
// whose recorder is disabled: replay reproduces history, it does not write
// history.
type Anonymiser interface {
	Anonymise(ctx context.Context, rec *domain.Record) error
}

type Engine struct {
	log        eventlog.Log
	store      Store
	markers    marker.Store
	anonymiser Anonymiser

	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a replay Engine.
type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func New(log eventlog.Log, store Store, markers marker.Store, anonymiser Anonymiser, opts ...Option) *Engine {
	e := &Engine{
		log:        log,
		store:      store,
		markers:    markers,
		anonymiser: anonymiser,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("veil/replay"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report summarises a replay run.
type Report struct {
	Processed  int
	Anonymised int
	Deleted    int
	Skipped    int
	// LastID is the id of the last entry processed, usable as the afterID
	// of the next incremental run.
	LastID int64
}

// Replay applies every log entry with id greater than afterID, in log
// order. Entries whose outcome already holds are skipped, so replay is
// idempotent and safe to re-run after a partial failure.
func (e *Engine) Replay(ctx context.Context, afterID int64) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "replay.replay")
	defer span.End()

	entries, err := e.log.ListSince(ctx, afterID)
	if err != nil {
		return Report{}, fmt.Errorf("read event log after %d: %w", afterID, err)
	}

	var report Report
	for _, entry := range entries {
		switch entry.Action {
		case eventlog.ActionDeleted:
			if err := e.applyDelete(ctx, entry, &report); err != nil {
				return report, err
			}
		case eventlog.ActionAnonymised:
			if err := e.applyAnonymise(ctx, entry, &report); err != nil {
				return report, err
			}
		default:
			return report, fmt.Errorf("replay entry %d: unknown action %q", entry.ID, entry.Action)
		}
		report.Processed++
		report.LastID = entry.ID
	}

	e.logger.Info("event log replayed",
		zap.Int64("after_id", afterID),
		zap.Int("processed", report.Processed),
		zap.Int("anonymised", report.Anonymised),
		zap.Int("deleted", report.Deleted),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (e *Engine) applyDelete(ctx context.Context, entry eventlog.Entry, report *Report) error {
	err := e.store.Remove(ctx, entry.RecordType, entry.RecordKey)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// Already gone, the logged outcome holds.
		report.Skipped++
		e.metrics.IncReplayAction(string(entry.Action), "skipped")
	case err != nil:
		return fmt.Errorf("replay delete of %s/%s: %w", entry.RecordType, entry.RecordKey, err)
	default:
		report.Deleted++
		e.metrics.IncReplayAction(string(entry.Action), "applied")
	}
	return nil
}

func (e *Engine) applyAnonymise(ctx context.Context, entry eventlog.Entry, report *Report) error {
	rec, err := e.store.Get(ctx, entry.RecordType, entry.RecordKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Deleted later in the log, or never restored. Anonymising would
		// resurrect it; skip.
		report.Skipped++
		e.metrics.IncReplayAction(string(entry.Action), "skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("replay anonymise of %s/%s: %w", entry.RecordType, entry.RecordKey, err)
	}

	marked, err := e.markers.IsMarked(ctx, entry.RecordType, entry.RecordKey)
	if err != nil {
		return fmt.Errorf("check marker for %s/%s: %w", entry.RecordType, entry.RecordKey, err)
	}
	if marked {
		report.Skipped++
		e.metrics.IncReplayAction(string(entry.Action), "skipped")
		return nil
	}

	if err := e.anonymiser.Anonymise(ctx, rec); err != nil {
		return fmt.Errorf("replay anonymise of %s/%s: %w", entry.RecordType, entry.RecordKey, err)
	}
	report.Anonymised++
	e.metrics.IncReplayAction(string(entry.Action), "applied")
	return nil
}
