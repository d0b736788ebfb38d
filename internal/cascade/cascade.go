// Package cascade intercepts record deletion and anonymises the records
// that reference the deleted one through an anonymise-tagged relation.
//
// The executor subscribes to the store's delete hooks. Running inside the
// delete operation means a cascade failure aborts the delete itself: a
// record is never deleted while its dependants still hold personal data
// tied to it.
package cascade

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"veil/internal/domain"
	"veil/internal/engine/metrics"
	"veil/internal/eventlog"
	"veil/internal/record"
	"veil/internal/registry"
)

// Finder is the slice of the record store used to resolve inbound
// references. Relation fields hold the target record's key, so lookup is a
// straight field-equality scan.
type Finder interface {
	FindByField(ctx context.Context, typeName, field string, value any) ([]*domain.Record, error)
}

// Anonymiser anonymises a single record per its registered policy.
type Anonymiser interface {
	Anonymise(ctx context.Context, rec *domain.Record) error
}

// Recorder appends delete entries to the event log.
type Recorder interface {
	Record(ctx context.Context, typeName, key string, action eventlog.Action, at time.Time) error
}

type Executor struct {
	registry *registry.Registry
	store    Finder
	engine   Anonymiser
	recorder Recorder

	metrics *metrics.Metrics
	logger  *zap.Logger
	clock   func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(x *Executor) { x.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(x *Executor) { x.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(x *Executor) { x.clock = clock }
}

func New(reg *registry.Registry, store Finder, engine Anonymiser, recorder Recorder, opts ...Option) *Executor {
	x := &Executor{
		registry: reg,
		store:    store,
		engine:   engine,
		recorder: recorder,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Attach subscribes the executor to the store's delete interception points.
func (x *Executor) Attach(hooks record.HookRegistrar) {
	hooks.OnPreDelete(x.BeforeDelete)
	hooks.OnPreDeleteMany(x.BeforeDeleteMany)
	hooks.OnPostDelete(x.AfterDelete)
}

// BeforeDelete anonymises every record referencing rec through an
// anonymise-tagged relation. An error aborts the enclosing delete.
func (x *Executor) BeforeDelete(ctx context.Context, rec *domain.Record) error {
	visited := make(map[string]bool)
	return x.anonymiseReferrers(ctx, rec, visited)
}

// BeforeDeleteMany is the bulk counterpart. The visited set is shared
// across the selection, so a record referencing two deleted targets is
// anonymised once.
func (x *Executor) BeforeDeleteMany(ctx context.Context, recs []*domain.Record) error {
	visited := make(map[string]bool)
	for _, rec := range recs {
		if err := x.anonymiseReferrers(ctx, rec, visited); err != nil {
			return err
		}
	}
	return nil
}

// AfterDelete appends the delete to the event log for registered types.
// Still inside the delete operation: a failed append rolls the delete back.
func (x *Executor) AfterDelete(ctx context.Context, rec *domain.Record) error {
	if !x.registry.Registered(rec.Type) {
		return nil
	}
	return x.recorder.Record(ctx, rec.Type, rec.Key, eventlog.ActionDeleted, x.clock())
}

func (x *Executor) anonymiseReferrers(ctx context.Context, rec *domain.Record, visited map[string]bool) error {
	count := 0
	for _, edge := range x.registry.EdgesInto(rec.Type) {
		referrers, err := x.store.FindByField(ctx, edge.SourceType, edge.FieldName, rec.Key)
		if err != nil {
			return fmt.Errorf("resolve %s.%s referencing %s: %w", edge.SourceType, edge.FieldName, rec.Ref(), err)
		}
		for _, ref := range referrers {
			id := ref.Ref()
			if visited[id] {
				continue
			}
			visited[id] = true
			if err := x.engine.Anonymise(ctx, ref); err != nil {
				return fmt.Errorf("cascade from delete of %s: %w", rec.Ref(), err)
			}
			count++
		}
	}

	x.metrics.ObserveCascadeFanout(count)
	if count > 0 {
		x.logger.Debug("cascade anonymised referrers",
			zap.String("deleted", rec.Ref()),
			zap.Int("anonymised", count),
		)
	}
	return nil
}
