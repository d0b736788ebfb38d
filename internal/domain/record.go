package domain

import "fmt"

// FieldKind classifies a record field for type-driven anonymisation. The
// kind describes the declared schema type, not the current value.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindInt      FieldKind = "int"
	KindFloat    FieldKind = "float"
	KindBool     FieldKind = "bool"
	KindBinary   FieldKind = "binary"
	KindDate     FieldKind = "date"
	KindDateTime FieldKind = "datetime"
	KindTime     FieldKind = "time"
	KindDuration FieldKind = "duration"
	KindEmail    FieldKind = "email"
	KindURL      FieldKind = "url"
	KindIP       FieldKind = "ip"
	KindUUID     FieldKind = "uuid"
	KindFile     FieldKind = "file"

	// Relationship kinds. Single-valued relations can only be nulled;
	// many-to-many relations are never anonymised through the field path.
	KindForeignKey FieldKind = "foreign_key"
	KindOneToOne   FieldKind = "one_to_one"
	KindManyToMany FieldKind = "many_to_many"
)

// IsRelation reports whether the kind references another record type.
func (k FieldKind) IsRelation() bool {
	switch k {
	case KindForeignKey, KindOneToOne, KindManyToMany:
		return true
	}
	return false
}

// DeleteAction is the declared behaviour of a relationship field when the
// record it points at is deleted. The store's native vocabulary handles the
// field value itself; the anonymise-tagged actions additionally trigger
// anonymisation of the rest of the owning record.
type DeleteAction string

const (
	// DeleteNative leaves the store's declared behaviour untouched and does
	// not cascade anonymisation.
	DeleteNative DeleteAction = ""

	// Anonymise-tagged actions. A destructive cascade ("delete related rows
	// then anonymise") is deliberately not representable.
	DeleteAnonymise           DeleteAction = "anonymise"
	DeleteAnonymiseSetNull    DeleteAction = "anonymise_set_null"
	DeleteAnonymiseSetDefault DeleteAction = "anonymise_set_default"
)

// TriggersAnonymise reports whether the action cascades anonymisation to the
// owning record when the target of the relation is deleted.
func (a DeleteAction) TriggersAnonymise() bool {
	switch a {
	case DeleteAnonymise, DeleteAnonymiseSetNull, DeleteAnonymiseSetDefault:
		return true
	}
	return false
}

// Field is one typed column of a RecordType.
type Field struct {
	Name     string
	Kind     FieldKind
	Nullable bool
	// Blank marks text fields that accept the empty string. Blankable,
	// non-unique text anonymises to "" instead of the primary key string.
	Blank  bool
	Unique bool
	// RelatedType names the target record type for relationship kinds.
	RelatedType string
	// OnDelete applies to relationship kinds only.
	OnDelete DeleteAction
}

// RecordType is the schema contract the external store owns. The core reads
// it to drive anonymisation and cascade computation; it never mutates schema.
type RecordType struct {
	Name       string
	PrimaryKey string
	Fields     []Field
}

// Field returns the named field declaration.
func (t RecordType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a single persisted instance, addressed by type name and the
// string form of its primary key. Field values live in Values; a nil value
// is the null representation.
type Record struct {
	Type   string
	Key    string
	Values map[string]any
}

// Ref renders a stable "type/key" identifier for logs and errors.
func (r *Record) Ref() string {
	return fmt.Sprintf("%s/%s", r.Type, r.Key)
}

// Clone returns a deep-enough copy: the Values map is copied, values are
// shared (the core treats stored values as immutable).
func (r *Record) Clone() *Record {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return &Record{Type: r.Type, Key: r.Key, Values: values}
}

// CascadeEdge declares that deleting a TargetType record anonymises every
// SourceType record whose FieldName foreign key points at it. Built once at
// registry finalize time, read-only afterward.
type CascadeEdge struct {
	SourceType string
	FieldName  string
	TargetType string
	Action     DeleteAction
}
