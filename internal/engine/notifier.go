package engine

import (
	"context"
	"fmt"

	"veil/internal/domain"
)

// Hook observes a record around anonymisation. Pre-anonymise hooks run
// before any field is mutated and may veto the run by returning an error.
// Post-anonymise hooks run after the record is persisted and logged.
type Hook func(ctx context.Context, rec *domain.Record) error

// OnPreAnonymise subscribes a hook that runs before each record is
// anonymised.
func (e *Engine) OnPreAnonymise(hook Hook) {
	e.pre = append(e.pre, hook)
}

// OnPostAnonymise subscribes a hook that runs after each record is
// anonymised.
func (e *Engine) OnPostAnonymise(hook Hook) {
	e.post = append(e.post, hook)
}

func runHooks(ctx context.Context, hooks []Hook, rec *domain.Record, stage string) error {
	for _, hook := range hooks {
		if err := hook(ctx, rec); err != nil {
			return fmt.Errorf("%s-anonymise hook for %s: %w", stage, rec.Ref(), err)
		}
	}
	return nil
}
