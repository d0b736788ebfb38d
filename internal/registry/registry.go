// Package registry holds the process-scoped mapping from record type to
// privacy policy, and the cascade edges computed from it.
//
// The registry is an injected dependency with a documented lifecycle:
// register everything at startup, finalize exactly once, read-only
// afterward. It is never ambient global state; each test constructs its own.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veil/internal/domain"
	"veil/internal/policy"
	"veil/pkg/platform/sentinel"
)

type Registry struct {
	mu        sync.RWMutex
	policies  map[string]*policy.Policy
	edges     map[string][]domain.CascadeEdge // keyed by target type
	finalized bool
}

func New() *Registry {
	return &Registry{
		policies: make(map[string]*policy.Policy),
		edges:    make(map[string][]domain.CascadeEdge),
	}
}

// Register adds a policy for the record type. A nil policy registers the
// type with an empty default, which is enough for it to participate in
// cascade-edge computation. Registering a type twice, registering after
// finalize, or registering an invalid policy is ErrConfiguration.
func (r *Registry) Register(recordType domain.RecordType, p *policy.Policy) error {
	if p == nil {
		p = policy.Default(recordType)
	} else {
		if p.RecordType.Name == "" {
			p.RecordType = recordType
		} else if p.RecordType.Name != recordType.Name {
			return fmt.Errorf("%w: policy for %s registered under %s", sentinel.ErrConfiguration, p.RecordType.Name, recordType.Name)
		}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return fmt.Errorf("%w: registry already finalized", sentinel.ErrConfiguration)
	}
	if _, exists := r.policies[recordType.Name]; exists {
		return fmt.Errorf("%w: %s already registered", sentinel.ErrConfiguration, recordType.Name)
	}
	r.policies[recordType.Name] = p
	return nil
}

// Lookup returns the policy for the type, or ErrNotRegistered.
func (r *Registry) Lookup(typeName string) (*policy.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sentinel.ErrNotRegistered, typeName)
	}
	return p, nil
}

// Registered reports whether the type has a policy.
func (r *Registry) Registered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.policies[typeName]
	return ok
}

// Finalize scans every registered type's relationship fields for
// anonymise-tagged delete actions and builds the cascade-edge set. It runs
// exactly once; calling it again is a no-op.
//
// An anonymise-tagged relation pointing at an unregistered type is
// ErrConfiguration: the target needs a policy, even an empty one, so its
// deletion can be intercepted.
func (r *Registry) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil
	}

	edges := make(map[string][]domain.CascadeEdge)
	for _, name := range sortedKeys(r.policies) {
		rt := r.policies[name].RecordType
		for _, field := range rt.Fields {
			if !field.OnDelete.TriggersAnonymise() {
				continue
			}
			switch field.Kind {
			case domain.KindForeignKey, domain.KindOneToOne:
			case domain.KindManyToMany:
				return fmt.Errorf("%w: %s.%s tags a many-to-many relation anonymise-on-delete", sentinel.ErrConfiguration, rt.Name, field.Name)
			default:
				return fmt.Errorf("%w: %s.%s tags a non-relation field anonymise-on-delete", sentinel.ErrConfiguration, rt.Name, field.Name)
			}
			if field.RelatedType == "" {
				return fmt.Errorf("%w: %s.%s has no related type", sentinel.ErrConfiguration, rt.Name, field.Name)
			}
			if _, ok := r.policies[field.RelatedType]; !ok {
				return fmt.Errorf("%w: %s.%s anonymises on delete of unregistered type %s", sentinel.ErrConfiguration, rt.Name, field.Name, field.RelatedType)
			}
			edges[field.RelatedType] = append(edges[field.RelatedType], domain.CascadeEdge{
				SourceType: rt.Name,
				FieldName:  field.Name,
				TargetType: field.RelatedType,
				Action:     field.OnDelete,
			})
		}
	}

	r.edges = edges
	r.finalized = true
	return nil
}

// Finalized reports whether cascade edges have been computed.
func (r *Registry) Finalized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finalized
}

// EdgesInto returns the cascade edges whose deletion target is the given
// type. Empty before Finalize.
func (r *Registry) EdgesInto(targetType string) []domain.CascadeEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CascadeEdge(nil), r.edges[targetType]...)
}

// Types returns all registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.policies)
}

// AnonymisableTypes returns registered types whose policy allows
// anonymisation, sorted.
func (r *Registry) AnonymisableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, p := range r.policies {
		if p.CanAnonymise {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Match groups search hits by record type.
type Match struct {
	Type    string
	Records []*domain.Record
}

// Search runs every policy's search for the term and returns non-empty
// result groups in type-name order.
func (r *Registry) Search(ctx context.Context, store policy.Finder, term string) ([]Match, error) {
	r.mu.RLock()
	names := sortedKeys(r.policies)
	policies := make([]*policy.Policy, len(names))
	for i, name := range names {
		policies[i] = r.policies[name]
	}
	r.mu.RUnlock()

	var matches []Match
	for i, p := range policies {
		records, err := p.Search(ctx, store, term)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			matches = append(matches, Match{Type: names[i], Records: records})
		}
	}
	return matches, nil
}

func sortedKeys(m map[string]*policy.Policy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
