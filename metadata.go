package facet

// ValueSlot names the storage column a field type writes to.
type ValueSlot string

const (
	ValueSlotText    ValueSlot = "text"
	ValueSlotNumeric ValueSlot = "numeric"
	ValueSlotBool    ValueSlot = "bool"
)

// Slot returns the slot populated in v, or false if v is empty.
func (v FieldValue) Slot() (ValueSlot, bool) {
	switch {
	case v.Text != nil:
		return ValueSlotText, true
	case v.Numeric != nil:
		return ValueSlotNumeric, true
	case v.Bool != nil:
		return ValueSlotBool, true
	}
	return "", false
}

// Value returns the populated slot as a plain Go value (string, float64 or bool).
func (v FieldValue) Value() any {
	switch {
	case v.Text != nil:
		return *v.Text
	case v.Numeric != nil:
		return *v.Numeric
	case v.Bool != nil:
		return *v.Bool
	}
	return nil
}

// IsEmpty reports whether v holds no value or an empty text.
func (v FieldValue) IsEmpty() bool {
	if v.Text != nil {
		return *v.Text == ""
	}
	return v.Numeric == nil && v.Bool == nil
}
