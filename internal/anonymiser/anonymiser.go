// Package anonymiser holds the pure field-level anonymisation rules.
//
// Defaults dispatch on the field's declared kind, never on its current
// value, so the replacement for a given (type, primary key) pair is stable
// across repeated runs.
package anonymiser

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"veil/internal/domain"
	"veil/pkg/platform/sentinel"
)

// Func is a custom per-field anonymiser. It receives the full record so the
// replacement may derive from other fields, and the field declaration.
type Func func(rec *domain.Record, field domain.Field) (any, error)

// defaultFunc is an internal default rule; now is the anonymisation time.
type defaultFunc func(rec *domain.Record, field domain.Field, now time.Time) (any, error)

var defaults = map[domain.FieldKind]defaultFunc{
	domain.KindInt:        anonymiseInt,
	domain.KindFloat:      anonymiseFloat,
	domain.KindBool:       anonymiseBool,
	domain.KindBinary:     anonymiseBinary,
	domain.KindText:       anonymiseText,
	domain.KindDate:       anonymiseDate,
	domain.KindDateTime:   anonymiseDateTime,
	domain.KindTime:       anonymiseTime,
	domain.KindDuration:   anonymiseDuration,
	domain.KindEmail:      anonymiseEmail,
	domain.KindURL:        anonymiseURL,
	domain.KindIP:         anonymiseIP,
	domain.KindUUID:       anonymiseUUID,
	domain.KindFile:       anonymiseFile,
	domain.KindForeignKey: anonymiseRelation,
	domain.KindOneToOne:   anonymiseRelation,
	domain.KindManyToMany: anonymiseManyToMany,
}

// Anonymise returns the default replacement value for the field, or an
// ErrUnsupportedField error when the field class cannot be safely anonymised
// without a custom rule.
func Anonymise(rec *domain.Record, field domain.Field, now time.Time) (any, error) {
	fn, ok := defaults[field.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s has unknown kind %q", sentinel.ErrUnsupportedField, field.Name, field.Kind)
	}
	return fn(rec, field, now)
}

func anonymiseInt(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return int64(0), nil
}

func anonymiseFloat(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return float64(0), nil
}

func anonymiseBool(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return false, nil
}

func anonymiseBinary(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return []byte{}, nil
}

// Blankable non-unique text empties; everything else keeps a stable,
// non-identifying value derived from the primary key.
func anonymiseText(rec *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Blank && !field.Unique {
		return "", nil
	}
	return rec.Key, nil
}

func anonymiseDate(_ *domain.Record, field domain.Field, now time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), nil
}

func anonymiseDateTime(_ *domain.Record, field domain.Field, now time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return now, nil
}

// Time-of-day values are offsets from midnight; midnight is the zero offset.
func anonymiseTime(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return time.Duration(0), nil
}

func anonymiseDuration(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return time.Duration(0), nil
}

func anonymiseEmail(rec *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return rec.Key + "@anon.example.com", nil
}

func anonymiseURL(rec *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Blank {
		return "", nil
	}
	return "http://" + rec.Key + ".anon.example.com", nil
}

func anonymiseIP(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return "0.0.0.0", nil
}

// Unique UUID columns get a fresh random value; the all-zero UUID would
// collide on the second record.
func anonymiseUUID(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	if field.Unique {
		return uuid.New(), nil
	}
	return uuid.Nil, nil
}

func anonymiseFile(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s - can only null file fields", sentinel.ErrUnsupportedField, field.Name)
}

func anonymiseRelation(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	if field.Nullable {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s - can only null relationship fields", sentinel.ErrUnsupportedField, field.Name)
}

func anonymiseManyToMany(_ *domain.Record, field domain.Field, _ time.Time) (any, error) {
	return nil, fmt.Errorf("%w: %s - cannot anonymise many-to-many fields", sentinel.ErrUnsupportedField, field.Name)
}
