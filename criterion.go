package facet

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq       Operator = "eq"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpBetween  Operator = "between"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpIsEmpty  Operator = "isEmpty"
)

// Criterion is a single field filter. Operand shape depends on the field type
// and operator: a number, a [lo, hi] pair for between, a list for in, a string
// or a bool. isEmpty ignores its operand.
type Criterion struct {
	FieldID  uuid.UUID `json:"field"`
	Operator Operator  `json:"op"`
	Operand  any       `json:"operand,omitempty"`
}

// UnmarshalJSON ensures the field and operator keys are present.
func (c *Criterion) UnmarshalJSON(data []byte) error {
	type criterionAlias struct {
		FieldID  *uuid.UUID `json:"field"`
		Operator Operator   `json:"op"`
		Operand  any        `json:"operand"`
	}

	var alias criterionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	if alias.FieldID == nil || *alias.FieldID == uuid.Nil {
		return fmt.Errorf("criterion missing field")
	}

	if alias.Operator == "" {
		return fmt.Errorf("criterion missing op")
	}

	c.FieldID = *alias.FieldID
	c.Operator = alias.Operator
	c.Operand = alias.Operand
	return nil
}
