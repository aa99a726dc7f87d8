// Package filter compiles field criteria into predicates and evaluates them
// over item field values, either in memory or as SQL.
package filter

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// clause is one compiled criterion with its operand already coerced.
type clause struct {
	field facet.Field
	op    facet.Operator
	num   float64
	lo    float64
	hi    float64
	text  string
	flag  bool
	set   []string
}

// Predicate is the conjunction of compiled criteria. The zero Predicate matches everything.
type Predicate struct {
	clauses []clause
}

// Compile validates criteria against their fields. The operator is checked
// against the field type before the operand shape is looked at.
func Compile(fields map[uuid.UUID]facet.Field, criteria []facet.Criterion) (*Predicate, error) {
	p := &Predicate{clauses: make([]clause, 0, len(criteria))}
	for _, c := range criteria {
		f, ok := fields[c.FieldID]
		if !ok {
			return nil, facet.NewUnknownFieldError(c.FieldID)
		}
		if !f.Type.Supports(c.Operator) {
			return nil, facet.NewIllegalOperatorError(f.Name, f.Type, c.Operator)
		}
		cl, err := compileClause(f, c.Operator, c.Operand)
		if err != nil {
			return nil, err
		}
		p.clauses = append(p.clauses, cl)
	}
	return p, nil
}

func compileClause(f facet.Field, op facet.Operator, operand any) (clause, error) {
	cl := clause{field: f, op: op}

	switch f.Type {
	case facet.FieldTypeRating, facet.FieldTypeNumber:
		if op == facet.OpBetween {
			bounds, ok := toList(operand)
			if !ok || len(bounds) != 2 {
				return cl, facet.NewTypeMismatchError(f.Name, "between requires a [lo, hi] pair")
			}
			lo, okLo := facet.ToFloat(bounds[0])
			hi, okHi := facet.ToFloat(bounds[1])
			if !okLo || !okHi {
				return cl, facet.NewTypeMismatchError(f.Name, "between bounds must be numbers")
			}
			if lo > hi {
				return cl, facet.NewTypeMismatchError(f.Name, fmt.Sprintf("between lower bound %v exceeds upper bound %v", lo, hi))
			}
			cl.lo, cl.hi = lo, hi
			return cl, nil
		}
		n, ok := facet.ToFloat(operand)
		if !ok {
			return cl, facet.NewTypeMismatchError(f.Name, fmt.Sprintf("operand must be a number, got %T", operand))
		}
		cl.num = n

	case facet.FieldTypeSelect:
		if op == facet.OpIn {
			items, ok := toList(operand)
			if !ok || len(items) == 0 {
				return cl, facet.NewTypeMismatchError(f.Name, "in requires a non-empty list of options")
			}
			for _, item := range items {
				s, err := selectOperand(f, item)
				if err != nil {
					return cl, err
				}
				cl.set = append(cl.set, s)
			}
			return cl, nil
		}
		s, err := selectOperand(f, operand)
		if err != nil {
			return cl, err
		}
		cl.text = s

	case facet.FieldTypeBoolean:
		b, ok := operand.(bool)
		if !ok {
			return cl, facet.NewTypeMismatchError(f.Name, fmt.Sprintf("operand must be a bool, got %T", operand))
		}
		cl.flag = b

	case facet.FieldTypeText:
		if op == facet.OpIsEmpty {
			return cl, nil
		}
		s, ok := operand.(string)
		if !ok {
			return cl, facet.NewTypeMismatchError(f.Name, fmt.Sprintf("operand must be a string, got %T", operand))
		}
		if op == facet.OpContains {
			s = strings.ToLower(s)
		}
		cl.text = s
	}
	return cl, nil
}

func selectOperand(f facet.Field, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", facet.NewTypeMismatchError(f.Name, fmt.Sprintf("option must be a string, got %T", v))
	}
	if !f.HasOption(s) {
		return "", facet.NewTypeMismatchError(f.Name, fmt.Sprintf("%q is not an option", s))
	}
	return s, nil
}

// toList accepts any slice or array operand.
func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Len returns the number of compiled criteria.
func (p *Predicate) Len() int {
	return len(p.clauses)
}

// FieldIDs returns the distinct fields the predicate reads, in criterion order.
func (p *Predicate) FieldIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.clauses))
	ids := make([]uuid.UUID, 0, len(p.clauses))
	for _, cl := range p.clauses {
		if _, ok := seen[cl.field.ID]; ok {
			continue
		}
		seen[cl.field.ID] = struct{}{}
		ids = append(ids, cl.field.ID)
	}
	return ids
}

// Match reports whether every criterion holds for values, keyed by field id.
// A missing value never matches, except for isEmpty.
func (p *Predicate) Match(values map[uuid.UUID]facet.FieldValue) bool {
	for i := range p.clauses {
		v, ok := values[p.clauses[i].field.ID]
		if !p.clauses[i].match(v, ok) {
			return false
		}
	}
	return true
}

func (cl *clause) match(v facet.FieldValue, present bool) bool {
	if cl.op == facet.OpIsEmpty {
		return !present || v.IsEmpty()
	}
	if !present {
		return false
	}

	switch cl.field.Type.Slot() {
	case facet.ValueSlotNumeric:
		if v.Numeric == nil {
			return false
		}
		n := *v.Numeric
		switch cl.op {
		case facet.OpEq:
			return n == cl.num
		case facet.OpGt:
			return n > cl.num
		case facet.OpGte:
			return n >= cl.num
		case facet.OpLt:
			return n < cl.num
		case facet.OpLte:
			return n <= cl.num
		case facet.OpBetween:
			return n >= cl.lo && n <= cl.hi
		}
	case facet.ValueSlotText:
		if v.Text == nil {
			return false
		}
		s := *v.Text
		switch cl.op {
		case facet.OpEq:
			return s == cl.text
		case facet.OpContains:
			return strings.Contains(strings.ToLower(s), cl.text)
		case facet.OpIn:
			for _, candidate := range cl.set {
				if s == candidate {
					return true
				}
			}
			return false
		}
	case facet.ValueSlotBool:
		if v.Bool == nil {
			return false
		}
		return *v.Bool == cl.flag
	}
	return false
}
