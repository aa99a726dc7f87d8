package facet

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxFieldNameLength = 64
	MaxRatingScale     = 10
)

var typeSlots = map[FieldType]ValueSlot{
	FieldTypeRating:  ValueSlotNumeric,
	FieldTypeNumber:  ValueSlotNumeric,
	FieldTypeSelect:  ValueSlotText,
	FieldTypeText:    ValueSlotText,
	FieldTypeBoolean: ValueSlotBool,
}

var typeOperators = map[FieldType][]Operator{
	FieldTypeRating:  {OpEq, OpGte, OpLte, OpGt, OpLt, OpBetween},
	FieldTypeNumber:  {OpEq, OpGte, OpLte, OpGt, OpLt, OpBetween},
	FieldTypeSelect:  {OpEq, OpIn},
	FieldTypeBoolean: {OpEq},
	FieldTypeText:    {OpContains, OpEq, OpIsEmpty},
}

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	_, ok := typeSlots[t]
	return ok
}

// Slot returns the storage slot values of this type are written to.
func (t FieldType) Slot() ValueSlot {
	return typeSlots[t]
}

// Operators returns the filter operators legal for this type.
func (t FieldType) Operators() []Operator {
	return append([]Operator(nil), typeOperators[t]...)
}

func (t FieldType) Supports(op Operator) bool {
	for _, candidate := range typeOperators[t] {
		if candidate == op {
			return true
		}
	}
	return false
}

// NormalizeName is the form used when comparing field and tag names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks the field definition. Name and select options are trimmed in place.
func (f *Field) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return NewInvalidConfigError("name", "field name is required")
	}
	if len([]rune(f.Name)) > MaxFieldNameLength {
		return NewInvalidConfigError("name", fmt.Sprintf("field name exceeds %d characters", MaxFieldNameLength))
	}
	if !f.Type.Valid() {
		return NewInvalidConfigError("type", fmt.Sprintf("unsupported field type %q", f.Type))
	}

	switch f.Type {
	case FieldTypeRating:
		if f.Config.Select != nil {
			return NewInvalidConfigError("config.select", "rating fields do not take options")
		}
		if f.Config.Rating == nil {
			return NewInvalidConfigError("config.rating", "rating fields require a max")
		}
		if f.Config.Rating.Max < 1 || f.Config.Rating.Max > MaxRatingScale {
			return NewInvalidConfigError("config.rating.max",
				fmt.Sprintf("max must be between 1 and %d, got %d", MaxRatingScale, f.Config.Rating.Max))
		}
	case FieldTypeSelect:
		if f.Config.Rating != nil {
			return NewInvalidConfigError("config.rating", "select fields do not take a rating scale")
		}
		if f.Config.Select == nil || len(f.Config.Select.Options) == 0 {
			return NewInvalidConfigError("config.select.options", "select fields require at least one option")
		}
		seen := make(map[string]struct{}, len(f.Config.Select.Options))
		options := make([]string, 0, len(f.Config.Select.Options))
		for _, opt := range f.Config.Select.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return NewInvalidConfigError("config.select.options", "options must not be empty")
			}
			if _, dup := seen[opt]; dup {
				return NewInvalidConfigError("config.select.options", fmt.Sprintf("duplicate option %q", opt))
			}
			seen[opt] = struct{}{}
			options = append(options, opt)
		}
		f.Config.Select.Options = options
	default:
		if !f.Config.IsZero() {
			return NewInvalidConfigError("config", fmt.Sprintf("%s fields take no configuration", f.Type))
		}
	}
	return nil
}

// HasOption reports whether s is one of the select options.
func (f *Field) HasOption(s string) bool {
	if f.Config.Select == nil {
		return false
	}
	for _, opt := range f.Config.Select.Options {
		if opt == s {
			return true
		}
	}
	return false
}

// NewValue converts raw into a FieldValue for this field, enforcing the type rules.
func (f *Field) NewValue(itemID uuid.UUID, raw any) (FieldValue, error) {
	v := FieldValue{ItemID: itemID, FieldID: f.ID, UpdatedAt: NowMillis()}

	switch f.Type {
	case FieldTypeRating:
		n, ok := ToFloat(raw)
		if !ok || n != math.Trunc(n) {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("rating requires an integer, got %T", raw))
		}
		if n < 1 || n > float64(f.Config.Rating.Max) {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("rating must be between 1 and %d", f.Config.Rating.Max))
		}
		v.Numeric = &n
	case FieldTypeNumber:
		n, ok := ToFloat(raw)
		if !ok {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("number field requires a number, got %T", raw))
		}
		v.Numeric = &n
	case FieldTypeSelect:
		s, ok := raw.(string)
		if !ok {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("select field requires a string, got %T", raw))
		}
		if !f.HasOption(s) {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("%q is not an option", s))
		}
		v.Text = &s
	case FieldTypeText:
		s, ok := raw.(string)
		if !ok {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("text field requires a string, got %T", raw))
		}
		v.Text = &s
	case FieldTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return v, NewTypeMismatchError(f.Name, fmt.Sprintf("boolean field requires a bool, got %T", raw))
		}
		v.Bool = &b
	default:
		return v, NewInvalidConfigError("type", fmt.Sprintf("unsupported field type %q", f.Type))
	}
	return v, nil
}

// CheckValue verifies that a stored value still fits this field.
func (f *Field) CheckValue(v FieldValue) error {
	slot, ok := v.Slot()
	if !ok {
		return NewTypeMismatchError(f.Name, "value is empty")
	}
	if slot != f.Type.Slot() {
		return NewTypeMismatchError(f.Name, fmt.Sprintf("value stored as %s, field expects %s", slot, f.Type.Slot()))
	}
	_, err := f.NewValue(v.ItemID, v.Value())
	return err
}

// ToFloat converts the numeric kinds produced by encoding/json and Go callers to float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
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
