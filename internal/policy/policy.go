// Package policy defines the per-type privacy declaration the registry
// validates and the engine executes.
package policy

import (
	"context"
	"fmt"
	"sort"

	"veil/internal/anonymiser"
	"veil/internal/domain"
	"veil/pkg/platform/sentinel"
)

// Finder is the slice of the record store the default search needs.
type Finder interface {
	FindByField(ctx context.Context, typeName, field string, value any) ([]*domain.Record, error)
}

// Policy declares which fields of a record type hold personal data and how
// they are anonymised, searched and exported.
//
// Invariant: a Policy is immutable after registration. Mutating it once the
// registry holds it is undefined behaviour.
type Policy struct {
	RecordType domain.RecordType

	// PrivateFields are anonymised in declaration order. They must exist on
	// the record type and must exclude the primary key.
	PrivateFields []string

	// FieldAnonymisers override the type-driven defaults per field. Only
	// entries for names in PrivateFields are valid. Overrides receive the
	// full record, so a replacement may derive from other fields. They do
	// not bypass the many-to-many safety rail.
	FieldAnonymisers map[string]anonymiser.Func

	// Declarations consumed by the admin search/export collaborator.
	SearchFields   []string
	ExportFields   []string
	ExportExclude  []string
	ExportFilename string

	// CustomSearch replaces the default exact-match search when set.
	CustomSearch func(ctx context.Context, store Finder, term string) ([]*domain.Record, error)

	// CustomExport replaces the default field stringification when set.
	CustomExport func(rec *domain.Record) map[string]string

	// CanAnonymise gates the engine. When false the policy still
	// participates in search and export, but anonymisation of matching
	// records is refused (audit trails and similar).
	CanAnonymise bool
}

// Default returns the policy used when registration supplies none: no
// private fields, anonymisable. It lets a type participate in cascade-edge
// computation without declaring personal data.
func Default(recordType domain.RecordType) *Policy {
	return &Policy{RecordType: recordType, CanAnonymise: true}
}

// Validate checks the policy invariants eagerly, at registration time.
// All violations are ErrConfiguration.
func (p *Policy) Validate() error {
	rt := p.RecordType
	if rt.Name == "" {
		return fmt.Errorf("%w: policy has no record type", sentinel.ErrConfiguration)
	}
	if rt.PrimaryKey == "" {
		return fmt.Errorf("%w: record type %s has no primary key", sentinel.ErrConfiguration, rt.Name)
	}

	private := make(map[string]bool, len(p.PrivateFields))
	for _, name := range p.PrivateFields {
		if name == rt.PrimaryKey {
			return fmt.Errorf("%w: %s declares primary key %s as private", sentinel.ErrConfiguration, rt.Name, name)
		}
		if _, ok := rt.Field(name); !ok {
			return fmt.Errorf("%w: %s has no field %s", sentinel.ErrConfiguration, rt.Name, name)
		}
		if private[name] {
			return fmt.Errorf("%w: %s declares field %s as private twice", sentinel.ErrConfiguration, rt.Name, name)
		}
		private[name] = true
	}

	for name := range p.FieldAnonymisers {
		if !private[name] {
			return fmt.Errorf("%w: %s has an anonymiser for non-private field %s", sentinel.ErrConfiguration, rt.Name, name)
		}
	}

	for _, name := range p.SearchFields {
		if _, ok := rt.Field(name); !ok {
			return fmt.Errorf("%w: %s search field %s does not exist", sentinel.ErrConfiguration, rt.Name, name)
		}
	}
	for _, name := range p.ExportFields {
		if _, ok := rt.Field(name); !ok {
			return fmt.Errorf("%w: %s export field %s does not exist", sentinel.ErrConfiguration, rt.Name, name)
		}
	}
	return nil
}

// Search finds records matching term. The default implementation exact-
// matches the term against each declared search field and deduplicates by
// primary key; CustomSearch takes precedence when set.
func (p *Policy) Search(ctx context.Context, store Finder, term string) ([]*domain.Record, error) {
	if p.CustomSearch != nil {
		return p.CustomSearch(ctx, store, term)
	}
	if len(p.SearchFields) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var matches []*domain.Record
	for _, field := range p.SearchFields {
		records, err := store.FindByField(ctx, p.RecordType.Name, field, term)
		if err != nil {
			return nil, fmt.Errorf("search %s by %s: %w", p.RecordType.Name, field, err)
		}
		for _, rec := range records {
			if !seen[rec.Key] {
				seen[rec.Key] = true
				matches = append(matches, rec)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Key < matches[j].Key })
	return matches, nil
}

// Export renders the record as a stringified field map for the export
// collaborator. Relationship fields and the primary key are excluded unless
// named explicitly in ExportFields.
func (p *Policy) Export(rec *domain.Record) map[string]string {
	if p.CustomExport != nil {
		return p.CustomExport(rec)
	}

	names := p.ExportFields
	if len(names) == 0 {
		for _, f := range p.RecordType.Fields {
			if f.Name == p.RecordType.PrimaryKey || f.Kind.IsRelation() {
				continue
			}
			names = append(names, f.Name)
		}
	}

	excluded := make(map[string]bool, len(p.ExportExclude))
	for _, name := range p.ExportExclude {
		excluded[name] = true
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		if excluded[name] {
			continue
		}
		value, ok := rec.Values[name]
		if !ok || value == nil {
			out[name] = ""
			continue
		}
		out[name] = fmt.Sprint(value)
	}
	return out
}

// ExportName returns the declared export filename, defaulting to
// "<type>.csv".
func (p *Policy) ExportName() string {
	if p.ExportFilename != "" {
		return p.ExportFilename
	}
	return p.RecordType.Name + ".csv"
}
