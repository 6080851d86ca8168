package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrInvalidCategory = errors.New("invalid categorical value")
	ErrInvalidNumber   = errors.New("invalid numeric value")
)

// Kind classifies a ValidationError.
type Kind int

const (
	KindMissingFields Kind = iota + 1
	KindInvalidCategory
	KindInvalidNumber
)

func (k Kind) String() string {
	switch k {
	case KindMissingFields:
		return "missing_fields"
	case KindInvalidCategory:
		return "invalid_category"
	case KindInvalidNumber:
		return "invalid_number"
	default:
		return "unknown"
	}
}

// ValidationError describes why a record was rejected. Missing is set for
// KindMissingFields; Field and Value name the offending field otherwise.
type ValidationError struct {
	Kind    Kind
	Missing []string
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingFields:
		return fmt.Sprintf("Missing fields: [%s]", strings.Join(e.Missing, ", "))
	case KindInvalidCategory:
		return fmt.Sprintf("Invalid value %q for %s; allowed: %s", e.Value, e.Field, strings.Join(e.Allowed, ", "))
	case KindInvalidNumber:
		return fmt.Sprintf("Invalid number %q for %s", e.Value, e.Field)
	default:
		return "invalid record"
	}
}

// Is lets errors.Is match a ValidationError against the kind sentinels.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrMissingFields:
		return e.Kind == KindMissingFields
	case ErrInvalidCategory:
		return e.Kind == KindInvalidCategory
	case ErrInvalidNumber:
		return e.Kind == KindInvalidNumber
	}
	return false
}
