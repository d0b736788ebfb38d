// Package engine executes privacy policies against records: it computes
// replacement values, persists them, marks the record anonymised and appends
// to the event log.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"veil/internal/anonymiser"
	"veil/internal/domain"
	"veil/internal/engine/metrics"
	"veil/internal/eventlog"
	"veil/internal/marker"
	"veil/internal/policy"
	"veil/internal/registry"
	"veil/pkg/platform/sentinel"
)

const defaultBulkParallelism = 8

// Store is the slice of the record store the engine writes through.
type Store interface {
	Update(ctx context.Context, rec *domain.Record, fields []string) error
	List(ctx context.Context, typeName string) ([]*domain.Record, error)
}

// Recorder is the event-log write surface. Appending is fail-closed: an
// append error fails the anonymisation it belongs to.
type Recorder interface {
	Record(ctx context.Context, typeName, key string, action eventlog.Action, at time.Time) error
}

type Engine struct {
	registry *registry.Registry
	store    Store
	markers  marker.Store
	recorder Recorder

	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	clock   func() time.Time

	allowDatabaseWide bool
	bulkParallelism   int

	pre  []Hook
	post []Hook
}

// Option configures an Engine.
type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source used for temporal replacement values,
// markers and log timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithDatabaseAnonymise enables AnonymiseDatabase. Off by default: a
// database-wide wipe on a production store is almost always a mistake, so
// the deployment has to opt in explicitly.
func WithDatabaseAnonymise(enabled bool) Option {
	return func(e *Engine) { e.allowDatabaseWide = enabled }
}

// WithBulkParallelism bounds concurrent replacement computation in bulk
// runs. Persistence is always serialized.
func WithBulkParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bulkParallelism = n
		}
	}
}

func New(reg *registry.Registry, store Store, markers marker.Store, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		registry:        reg,
		store:           store,
		markers:         markers,
		recorder:        recorder,
		logger:          zap.NewNop(),
		tracer:          otel.Tracer("veil/engine"),
		clock:           time.Now,
		bulkParallelism: defaultBulkParallelism,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Anonymise replaces every private field of the record per its policy,
// marks it anonymised and appends an event-log entry.
//
// Replacements for all fields are computed before anything is written, so a
// failing field leaves the record untouched. Re-running on an already
// anonymised record is harmless: default replacements derive from the
// declared kind and primary key, so the values are stable, and the marker
// is an upsert.
func (e *Engine) Anonymise(ctx context.Context, rec *domain.Record) error {
	ctx, span := e.tracer.Start(ctx, "engine.anonymise")
	defer span.End()

	p, err := e.registry.Lookup(rec.Type)
	if err != nil {
		e.metrics.IncFailure("not_registered")
		return err
	}
	return e.anonymise(ctx, rec, p, true)
}

// BulkOption configures a bulk anonymisation run.
type BulkOption func(*bulkConfig)

type bulkConfig struct {
	withLog bool
}

// WithoutLog suppresses per-record event-log entries for this bulk run.
// For very large jobs where the log would dominate cost; the caller accepts
// that replay cannot reconstruct these actions.
func WithoutLog() BulkOption {
	return func(c *bulkConfig) { c.withLog = false }
}

// AnonymiseMany anonymises a batch with the same end state as anonymising
// each record individually, including one event-log entry per record unless
// WithoutLog is given. Replacement computation runs in parallel; all records
// are validated and computed before the first write.
func (e *Engine) AnonymiseMany(ctx context.Context, recs []*domain.Record, opts ...BulkOption) error {
	ctx, span := e.tracer.Start(ctx, "engine.anonymise_many")
	defer span.End()

	cfg := bulkConfig{withLog: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	policies := make([]*policy.Policy, len(recs))
	for i, rec := range recs {
		p, err := e.registry.Lookup(rec.Type)
		if err != nil {
			e.metrics.IncFailure("not_registered")
			return err
		}
		if !p.CanAnonymise {
			e.metrics.IncFailure("policy")
			return fmt.Errorf("%w: %s refuses anonymisation", sentinel.ErrPolicy, rec.Type)
		}
		policies[i] = p
	}

	now := e.clock()
	changes := make([]replacement, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.bulkParallelism)
	for i, rec := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ch, err := computeReplacements(rec, policies[i], now)
			if err != nil {
				return err
			}
			changes[i] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.metrics.IncFailure("unsupported_field")
		return err
	}

	for i, rec := range recs {
		if err := e.persist(ctx, rec, changes[i], now, cfg.withLog); err != nil {
			return err
		}
	}
	return nil
}

// AnonymiseDatabase anonymises every record of every registered type whose
// policy allows it. Refuses unless enabled via WithDatabaseAnonymise.
// Returns the number of records anonymised.
func (e *Engine) AnonymiseDatabase(ctx context.Context) (int, error) {
	if !e.allowDatabaseWide {
		return 0, fmt.Errorf("%w: database-wide anonymisation is not enabled", sentinel.ErrAnonymiseDisabled)
	}

	ctx, span := e.tracer.Start(ctx, "engine.anonymise_database")
	defer span.End()

	total := 0
	for _, typeName := range e.registry.AnonymisableTypes() {
		recs, err := e.store.List(ctx, typeName)
		if err != nil {
			return total, fmt.Errorf("list %s: %w", typeName, err)
		}
		if len(recs) == 0 {
			continue
		}
		if err := e.AnonymiseMany(ctx, recs); err != nil {
			return total, err
		}
		total += len(recs)
	}

	e.logger.Info("database anonymised", zap.Int("records", total))
	return total, nil
}

func (e *Engine) anonymise(ctx context.Context, rec *domain.Record, p *policy.Policy, withLog bool) error {
	if !p.CanAnonymise {
		e.metrics.IncFailure("policy")
		return fmt.Errorf("%w: %s refuses anonymisation", sentinel.ErrPolicy, rec.Type)
	}

	now := e.clock()
	change, err := computeReplacements(rec, p, now)
	if err != nil {
		e.metrics.IncFailure("unsupported_field")
		return err
	}
	return e.persist(ctx, rec, change, now, withLog)
}

// replacement is a computed, not-yet-applied set of field values.
type replacement struct {
	fields []string
	values map[string]any
}

// computeReplacements resolves every private field's new value without
// touching the record. Fields resolve in declaration order. Many-to-many
// fields are refused outright, custom anonymiser or not: clearing a join
// relation from a field rule is too destructive to allow.
func computeReplacements(rec *domain.Record, p *policy.Policy, now time.Time) (replacement, error) {
	change := replacement{values: make(map[string]any, len(p.PrivateFields))}
	for _, name := range p.PrivateFields {
		field, _ := p.RecordType.Field(name)
		if field.Kind == domain.KindManyToMany {
			return replacement{}, fmt.Errorf("%w: %s.%s - cannot anonymise many-to-many fields", sentinel.ErrUnsupportedField, rec.Type, name)
		}

		var value any
		var err error
		if custom, ok := p.FieldAnonymisers[name]; ok {
			value, err = custom(rec, field)
		} else {
			value, err = anonymiser.Anonymise(rec, field, now)
		}
		if err != nil {
			return replacement{}, fmt.Errorf("anonymise %s.%s: %w", rec.Type, name, err)
		}
		change.fields = append(change.fields, name)
		change.values[name] = value
	}
	return change, nil
}

func (e *Engine) persist(ctx context.Context, rec *domain.Record, change replacement, now time.Time, withLog bool) error {
	started := time.Now()

	if err := runHooks(ctx, e.pre, rec, "pre"); err != nil {
		return err
	}

	for _, name := range change.fields {
		rec.Values[name] = change.values[name]
	}
	if len(change.fields) > 0 {
		if err := e.store.Update(ctx, rec, change.fields); err != nil {
			e.metrics.IncFailure("store")
			return fmt.Errorf("persist anonymised %s: %w", rec.Ref(), err)
		}
	}

	if err := e.markers.Mark(ctx, rec.Type, rec.Key, now); err != nil {
		e.metrics.IncFailure("store")
		return fmt.Errorf("mark %s anonymised: %w", rec.Ref(), err)
	}

	if withLog && e.recorder != nil {
		if err := e.recorder.Record(ctx, rec.Type, rec.Key, eventlog.ActionAnonymised, now); err != nil {
			return err
		}
	}

	if err := runHooks(ctx, e.post, rec, "post"); err != nil {
		return err
	}

	e.metrics.IncAnonymised(rec.Type)
	e.metrics.ObserveAnonymiseLatency(time.Since(started))
	e.logger.Debug("record anonymised",
		zap.String("record_type", rec.Type),
		zap.String("record_key", rec.Key),
		zap.Int("fields", len(change.fields)),
	)
	return nil
}
