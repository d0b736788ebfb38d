package eventlog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Sink receives a copy of every recorded entry. Sinks are the
// caller-supplied alternate logging mechanism: when the primary log is
// disabled for bulk jobs, sinks still see every action.
type Sink interface {
	Emit(ctx context.Context, entry Entry) error
}

// Recorder is the write side of the event log. Appends to the primary log
// are fail-closed: an append error must fail the enclosing operation rather
// than silently lose audit history. Sink emission is best-effort.
type Recorder struct {
	log     Log
	sinks   []Sink
	enabled bool
	logger  *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink adds a fan-out sink.
func WithSink(sink Sink) Option {
	return func(r *Recorder) {
		if sink != nil {
			r.sinks = append(r.sinks, sink)
		}
	}
}

// WithLogger sets the logger for sink failures.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// Disabled turns off primary log writes, for very large bulk jobs where the
// log would dominate cost. Callers accept that replay cannot reconstruct
// those actions and must route them through a sink instead.
func Disabled() Option {
	return func(r *Recorder) { r.enabled = false }
}

func NewRecorder(log Log, opts ...Option) *Recorder {
	r := &Recorder{log: log, enabled: true, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether primary log writes are on.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Record appends one entry for the completed action and fans it out to the
// sinks.
func (r *Recorder) Record(ctx context.Context, typeName, key string, action Action, at time.Time) error {
	entry := Entry{RecordType: typeName, RecordKey: key, Action: action, Timestamp: at}

	if r.enabled {
		id, err := r.log.Append(ctx, entry)
		if err != nil {
			return fmt.Errorf("record %s of %s/%s: %w", action, typeName, key, err)
		}
		entry.ID = id
	}

	for _, sink := range r.sinks {
		if err := sink.Emit(ctx, entry); err != nil {
			r.logger.Warn("event sink emit failed",
				zap.String("record_type", typeName),
				zap.String("record_key", key),
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}
	}
	return nil
}
