package schema

import "fmt"

// Spec is the serialisable description of a Schema, used wherever tasks cross
// a process boundary (message bus payloads, REST bodies, roster files).
type Spec struct {
	Type          Type     `json:"type" yaml:"type"`
	PositiveLabel string   `json:"positive_label,omitempty" yaml:"positive_label,omitempty"`
	NegativeLabel string   `json:"negative_label,omitempty" yaml:"negative_label,omitempty"`
	Categories    []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	AllowMultiple bool     `json:"allow_multiple,omitempty" yaml:"allow_multiple,omitempty"`
	Min           float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max           float64  `json:"max,omitempty" yaml:"max,omitempty"`
	MinLen        int      `json:"min_len,omitempty" yaml:"min_len,omitempty"`
	MaxLen        int      `json:"max_len,omitempty" yaml:"max_len,omitempty"`
}

// Build constructs the Schema the spec describes.
func (s Spec) Build() (Schema, error) {
	switch s.Type {
	case TypeBoolean:
		return NewBoolean(s.PositiveLabel, s.NegativeLabel)
	case TypeCategorical:
		return NewCategorical(s.Categories, s.AllowMultiple)
	case TypeScalar:
		return NewScalar(s.Min, s.Max)
	case TypeFreeForm:
		return NewFreeForm(s.MinLen, s.MaxLen)
	default:
		return nil, fmt.Errorf("%w: unknown schema type %q", ErrInvalidSchema, s.Type)
	}
}

// SpecOf produces the wire description of a schema built by this package.
// Schemas of unknown concrete types yield a bare Spec carrying only the tag.
func SpecOf(s Schema) Spec {
	switch v := s.(type) {
	case Boolean:
		return Spec{Type: TypeBoolean, PositiveLabel: v.PositiveLabel, NegativeLabel: v.NegativeLabel}
	case Categorical:
		return Spec{Type: TypeCategorical, Categories: v.Categories, AllowMultiple: v.AllowMultiple}
	case Scalar:
		return Spec{Type: TypeScalar, Min: v.Min, Max: v.Max}
	case FreeForm:
		return Spec{Type: TypeFreeForm, MinLen: v.MinLen, MaxLen: v.MaxLen}
	default:
		return Spec{Type: s.Type()}
	}
}
