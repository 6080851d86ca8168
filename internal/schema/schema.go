// Package schema describes the trip features the price model consumes and
// validates prediction records against them. The same Schema value is used
// when fitting the pipeline and when serving requests.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Field names of the taxi trip dataset.
const (
	FieldTripDistanceKm      = "Trip_Distance_km"
	FieldTripDurationMinutes = "Trip_Duration_Minutes"
	FieldPassengerCount      = "Passenger_Count"
	FieldBaseFare            = "Base_Fare"
	FieldPerKmRate           = "Per_Km_Rate"
	FieldPerMinuteRate       = "Per_Minute_Rate"
	FieldTimeOfDay           = "Time_of_Day"
	FieldDayOfWeek           = "Day_of_Week"
	FieldTrafficConditions   = "Traffic_Conditions"
	FieldWeather             = "Weather"

	FieldTripPrice = "Trip_Price"
)

// Record is one row of raw values keyed by field name. A key that is absent
// or holds nil is treated as missing.
type Record map[string]any

// Categorical is a categorical field and its closed set of legal values.
type Categorical struct {
	Name   string
	Domain []string
}

// Schema is an immutable description of the model inputs. Accessors return
// copies so callers cannot mutate shared state.
type Schema struct {
	numeric     []string
	categorical []Categorical
	target      string
	index       map[string]int
}

var defaultSchema = MustNew(
	[]string{
		FieldTripDistanceKm,
		FieldTripDurationMinutes,
		FieldPassengerCount,
		FieldBaseFare,
		FieldPerKmRate,
		FieldPerMinuteRate,
	},
	[]Categorical{
		{Name: FieldTimeOfDay, Domain: []string{"Morning", "Afternoon", "Evening", "Night"}},
		{Name: FieldDayOfWeek, Domain: []string{"Weekday", "Weekend"}},
		{Name: FieldTrafficConditions, Domain: []string{"Low", "Medium", "High"}},
		{Name: FieldWeather, Domain: []string{"Clear", "Rain", "Snow"}},
	},
	FieldTripPrice,
)

// Default returns the taxi trip schema shared by training and serving.
func Default() *Schema {
	return defaultSchema
}

// New builds a Schema. Field names must be unique and non-empty, and every
// categorical field needs at least one legal value.
func New(numeric []string, categorical []Categorical, target string) (*Schema, error) {
	if target == "" {
		return nil, errors.New("schema: target field name is required")
	}
	if len(numeric)+len(categorical) == 0 {
		return nil, errors.New("schema: at least one feature is required")
	}

	s := &Schema{
		numeric:     slices.Clone(numeric),
		categorical: make([]Categorical, 0, len(categorical)),
		target:      target,
		index:       make(map[string]int, len(numeric)+len(categorical)),
	}

	add := func(name string) error {
		if name == "" {
			return errors.New("schema: empty field name")
		}
		if name == target {
			return fmt.Errorf("schema: field %q collides with the target", name)
		}
		if _, dup := s.index[name]; dup {
			return fmt.Errorf("schema: duplicate field %q", name)
		}
		s.index[name] = len(s.index)
		return nil
	}

	for _, name := range numeric {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	for _, c := range categorical {
		if err := add(c.Name); err != nil {
			return nil, err
		}
		if len(c.Domain) == 0 {
			return nil, fmt.Errorf("schema: categorical field %q has no legal values", c.Name)
		}
		s.categorical = append(s.categorical, Categorical{Name: c.Name, Domain: slices.Clone(c.Domain)})
	}
	return s, nil
}

// MustNew is like New but panics on error. Intended for package-level vars.
func MustNew(numeric []string, categorical []Categorical, target string) *Schema {
	s, err := New(numeric, categorical, target)
	if err != nil {
		panic(err)
	}
	return s
}

// RequiredFields returns every feature name, numeric fields first, in
// declaration order.
func (s *Schema) RequiredFields() []string {
	out := make([]string, 0, len(s.index))
	out = append(out, s.numeric...)
	for _, c := range s.categorical {
		out = append(out, c.Name)
	}
	return out
}

// NumericFields returns the numeric feature names in order.
func (s *Schema) NumericFields() []string {
	return slices.Clone(s.numeric)
}

// CategoricalFields returns the categorical feature names in order.
func (s *Schema) CategoricalFields() []string {
	out := make([]string, len(s.categorical))
	for i, c := range s.categorical {
		out[i] = c.Name
	}
	return out
}

// CategoricalDomain returns the legal values of a categorical field in
// declaration order. ok is false when field is not categorical.
func (s *Schema) CategoricalDomain(field string) (values []string, ok bool) {
	for _, c := range s.categorical {
		if c.Name == field {
			return slices.Clone(c.Domain), true
		}
	}
	return nil, false
}

// Target returns the name of the target column.
func (s *Schema) Target() string {
	return s.target
}

// IsFeature reports whether name is one of the schema's feature fields.
func (s *Schema) IsFeature(name string) bool {
	_, ok := s.index[name]
	return ok
}

// UnknownFields returns the keys of r that are not feature fields, sorted.
func (s *Schema) UnknownFields(r Record) []string {
	var out []string
	for k := range r {
		if !s.IsFeature(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks that every feature is present, that numeric fields hold
// numbers and that categorical fields hold a value from their domain.
// Missing fields are reported before any value check. The returned error is
// always a *ValidationError.
func (s *Schema) Validate(r Record) error {
	var missing []string
	for _, name := range s.RequiredFields() {
		if IsMissing(r[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Kind: KindMissingFields, Missing: missing}
	}

	for _, name := range s.numeric {
		if _, ok := NumericValue(r[name]); !ok {
			return &ValidationError{Kind: KindInvalidNumber, Field: name, Value: fmt.Sprint(r[name])}
		}
	}

	for _, c := range s.categorical {
		v, ok := r[c.Name].(string)
		if !ok || !slices.Contains(c.Domain, v) {
			return &ValidationError{
				Kind:    KindInvalidCategory,
				Field:   c.Name,
				Value:   fmt.Sprint(r[c.Name]),
				Allowed: slices.Clone(c.Domain),
			}
		}
	}
	return nil
}

// IsMissing reports whether v counts as a missing value.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// NumericValue converts v to a finite float64. Strings are accepted when
// they parse as a number so CSV cells and form input go through the same
// path as JSON numbers.
func NumericValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
