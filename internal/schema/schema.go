// Package schema defines the closed set of decision shapes an evaluation can
// ask its agents for: boolean, categorical, scalar, and free-form. A schema
// validates candidate decision values and renders them into canonical strings
// used by alignment analysis and vote aggregation.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidSchema is returned by constructors when the schema definition
// violates structural rules (empty or duplicate categories, inverted bounds).
var ErrInvalidSchema = errors.New("invalid decision schema")

// Type identifies a decision schema variant.
type Type string

const (
	TypeBoolean     Type = "boolean"
	TypeCategorical Type = "categorical"
	TypeScalar      Type = "scalar"
	TypeFreeForm    Type = "freeform"
)

// Schema describes the shape of a decision value. Validate reports whether a
// candidate value conforms; Key renders a conforming value into a canonical
// string so that equivalent decisions compare equal (multi-select order and
// free-form casing are normalised away).
type Schema interface {
	Type() Type
	Validate(value interface{}) bool
	Key(value interface{}) string
}

// Boolean accepts true/false decisions with configurable display labels.
type Boolean struct {
	PositiveLabel string `json:"positive_label"`
	NegativeLabel string `json:"negative_label"`
}

// NewBoolean creates a boolean schema. Empty labels default to
// "positive" and "negative".
func NewBoolean(positiveLabel, negativeLabel string) (Boolean, error) {
	if positiveLabel == "" {
		positiveLabel = "positive"
	}
	if negativeLabel == "" {
		negativeLabel = "negative"
	}
	return Boolean{PositiveLabel: positiveLabel, NegativeLabel: negativeLabel}, nil
}

// Type returns TypeBoolean.
func (b Boolean) Type() Type { return TypeBoolean }

// Validate accepts only bool values.
func (b Boolean) Validate(value interface{}) bool {
	_, ok := AsBool(value)
	return ok
}

// Key renders the value as "true" or "false".
func (b Boolean) Key(value interface{}) string {
	if v, ok := AsBool(value); ok {
		return strconv.FormatBool(v)
	}
	return DecisionString(value)
}

// Label returns the display label for a boolean decision value.
func (b Boolean) Label(value bool) string {
	if value {
		return b.PositiveLabel
	}
	return b.NegativeLabel
}

// Categorical accepts decisions drawn from a fixed, ordered category set.
// With AllowMultiple the decision is an unordered selection of categories.
type Categorical struct {
	Categories    []string `json:"categories"`
	AllowMultiple bool     `json:"allow_multiple"`
}

// NewCategorical creates a categorical schema. Categories must be non-empty,
// unique, and contain no blank entries.
func NewCategorical(categories []string, allowMultiple bool) (Categorical, error) {
	if len(categories) == 0 {
		return Categorical{}, fmt.Errorf("%w: categories cannot be empty", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		if strings.TrimSpace(cat) == "" {
			return Categorical{}, fmt.Errorf("%w: categories cannot contain blank entries", ErrInvalidSchema)
		}
		if _, dup := seen[cat]; dup {
			return Categorical{}, fmt.Errorf("%w: duplicate category %q", ErrInvalidSchema, cat)
		}
		seen[cat] = struct{}{}
	}
	owned := make([]string, len(categories))
	copy(owned, categories)
	return Categorical{Categories: owned, AllowMultiple: allowMultiple}, nil
}

// Type returns TypeCategorical.
func (c Categorical) Type() Type { return TypeCategorical }

// Validate accepts a single category, or a collection of known categories
// when AllowMultiple is set. Category matching is case-sensitive.
func (c Categorical) Validate(value interface{}) bool {
	if c.AllowMultiple {
		items, ok := AsStrings(value)
		if !ok {
			return false
		}
		for _, item := range items {
			if !c.contains(item) {
				return false
			}
		}
		return true
	}
	s, ok := AsString(value)
	if !ok {
		return false
	}
	return c.contains(s)
}

// Key renders a single selection as the category itself and a multi-selection
// as the sorted, comma-joined categories so that order never matters.
func (c Categorical) Key(value interface{}) string {
	if c.AllowMultiple {
		if items, ok := AsStrings(value); ok {
			sorted := make([]string, len(items))
			copy(sorted, items)
			sort.Strings(sorted)
			return strings.Join(sorted, ",")
		}
		return DecisionString(value)
	}
	if s, ok := AsString(value); ok {
		return s
	}
	return DecisionString(value)
}

func (c Categorical) contains(category string) bool {
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// Scalar accepts numeric decisions within an inclusive [Min, Max] range.
type Scalar struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NewScalar creates a scalar schema. Max must be strictly greater than Min
// and both bounds must be finite.
func NewScalar(min, max float64) (Scalar, error) {
	if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
		return Scalar{}, fmt.Errorf("%w: bounds must be finite", ErrInvalidSchema)
	}
	if max <= min {
		return Scalar{}, fmt.Errorf("%w: max (%v) must be greater than min (%v)", ErrInvalidSchema, max, min)
	}
	return Scalar{Min: min, Max: max}, nil
}

// Type returns TypeScalar.
func (s Scalar) Type() Type { return TypeScalar }

// Validate accepts finite numeric values within [Min, Max].
func (s Scalar) Validate(value interface{}) bool {
	v, ok := AsFloat(value)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= s.Min && v <= s.Max
}

// Key renders the numeric value in its shortest exact decimal form.
func (s Scalar) Key(value interface{}) string {
	if v, ok := AsFloat(value); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return DecisionString(value)
}

// Range returns the width of the accepted interval.
func (s Scalar) Range() float64 { return s.Max - s.Min }

// FreeForm accepts open-ended text decisions with optional length bounds.
// A zero bound means unconstrained.
type FreeForm struct {
	MinLen int `json:"min_len"`
	MaxLen int `json:"max_len"`
}

// NewFreeForm creates a free-form schema. When both bounds are set, MaxLen
// must be strictly greater than MinLen.
func NewFreeForm(minLen, maxLen int) (FreeForm, error) {
	if minLen < 0 || maxLen < 0 {
		return FreeForm{}, fmt.Errorf("%w: length bounds cannot be negative", ErrInvalidSchema)
	}
	if minLen > 0 && maxLen > 0 && maxLen <= minLen {
		return FreeForm{}, fmt.Errorf("%w: max_len (%d) must be greater than min_len (%d)", ErrInvalidSchema, maxLen, minLen)
	}
	return FreeForm{MinLen: minLen, MaxLen: maxLen}, nil
}

// Type returns TypeFreeForm.
func (f FreeForm) Type() Type { return TypeFreeForm }

// Validate accepts strings whose rune count lies within the configured bounds.
func (f FreeForm) Validate(value interface{}) bool {
	s, ok := AsString(value)
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(s)
	if f.MinLen > 0 && n < f.MinLen {
		return false
	}
	if f.MaxLen > 0 && n > f.MaxLen {
		return false
	}
	return true
}

// Key renders the text lowercased and trimmed, so cosmetic differences do not
// register as disagreement.
func (f FreeForm) Key(value interface{}) string {
	if s, ok := AsString(value); ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return DecisionString(value)
}

// DecisionString renders a decision value of any shape into the raw string
// form used for frequency counting and event payloads. Unlike Key it applies
// no schema-aware normalisation.
func DecisionString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

// ClampConfidence normalises a raw confidence score into [0, 1]. NaN clamps
// to zero.
func ClampConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return 0
	}
	return math.Max(0, math.Min(1, confidence))
}

// AsBool coerces a decision value to bool.
func AsBool(value interface{}) (bool, bool) {
	v, ok := value.(bool)
	return v, ok
}

// AsFloat coerces a decision value to float64. Integers, floats, and
// json.Number are accepted; bool is not a number.
func AsFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsString coerces a decision value to string.
func AsString(value interface{}) (string, bool) {
	v, ok := value.(string)
	return v, ok
}

// AsStrings coerces a decision value to a string slice. []interface{} values
// decoded from JSON are accepted when every element is a string.
func AsStrings(value interface{}) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
