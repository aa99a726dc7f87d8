package filter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// Tables holds the already sanitized table identifiers used in rendered SQL.
type Tables struct {
	Items       string
	ItemTags    string
	FieldValues string
}

// Reach says for which items a field is visible: for every item of the
// collection (Always) or only for items whose category is in CategoryIDs.
type Reach struct {
	Always      bool
	CategoryIDs []uuid.UUID
}

// Scope carries the request context a predicate is evaluated in.
type Scope struct {
	CollectionID uuid.UUID
	TagIDs       []uuid.UUID
	Reach        map[uuid.UUID]Reach
}

// Reachable reports whether fieldID is visible on an item whose category is categoryID.
func (s Scope) Reachable(fieldID uuid.UUID, categoryID *uuid.UUID) bool {
	r, ok := s.Reach[fieldID]
	if !ok {
		return false
	}
	if r.Always {
		return true
	}
	if categoryID == nil {
		return false
	}
	for _, id := range r.CategoryIDs {
		if id == *categoryID {
			return true
		}
	}
	return false
}

// ToSQL renders the predicate and the tag facet into one query returning the
// matching item ids in listing order. Each criterion becomes an item id set;
// the sets are combined with INTERSECT and the tag facet is a single ANY() set
// so the listed tags are alternatives.
func (p *Predicate) ToSQL(tables Tables, scope Scope) (string, []any, error) {
	paramIndex := 0
	var args []any

	paramIndex++
	collectionPlaceholder := fmt.Sprintf("$%d", paramIndex)
	args = append(args, scope.CollectionID)

	sets := []string{
		fmt.Sprintf("(SELECT id FROM %s WHERE collection_id = %s)", tables.Items, collectionPlaceholder),
	}

	for i := range p.clauses {
		sql, clauseArgs, err := p.clauses[i].toSqlClause(tables, scope, collectionPlaceholder, &paramIndex)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		sets = append(sets, sql)
		args = append(args, clauseArgs...)
	}

	if len(scope.TagIDs) > 0 {
		paramIndex++
		sets = append(sets, fmt.Sprintf("(SELECT item_id FROM %s WHERE tag_id = ANY($%d))", tables.ItemTags, paramIndex))
		args = append(args, scope.TagIDs)
	}

	query := fmt.Sprintf(
		"SELECT i.id FROM %s i WHERE i.id IN (%s) ORDER BY i.created_at, i.id",
		tables.Items,
		strings.Join(sets, " INTERSECT "),
	)
	return query, args, nil
}

// toSqlClause renders one criterion as a parenthesized item id set. An empty
// string means the criterion holds for every item.
func (cl *clause) toSqlClause(tables Tables, scope Scope, collectionPlaceholder string, paramIndex *int) (string, []any, error) {
	var args []any

	reach, known := scope.Reach[cl.field.ID]
	if !known || (!reach.Always && len(reach.CategoryIDs) == 0) {
		// Nobody can see the field: every item is empty, no item has a value.
		if cl.op == facet.OpIsEmpty {
			return "", nil, nil
		}
		return fmt.Sprintf("(SELECT id FROM %s WHERE FALSE)", tables.Items), nil, nil
	}

	*paramIndex++
	fieldPlaceholder := fmt.Sprintf("$%d", *paramIndex)
	args = append(args, cl.field.ID)

	reachFilter := ""
	if !reach.Always {
		*paramIndex++
		reachFilter = fmt.Sprintf(
			" AND item_id IN (SELECT item_id FROM %s WHERE is_category AND tag_id = ANY($%d))",
			tables.ItemTags, *paramIndex,
		)
		args = append(args, reach.CategoryIDs)
	}

	var condition string
	switch cl.op {
	case facet.OpIsEmpty:
		return fmt.Sprintf(
			"(SELECT id FROM %s WHERE collection_id = %s EXCEPT SELECT item_id FROM %s WHERE field_id = %s AND value_text <> ''%s)",
			tables.Items, collectionPlaceholder, tables.FieldValues, fieldPlaceholder, reachFilter,
		), args, nil
	case facet.OpBetween:
		*paramIndex++
		lo := *paramIndex
		*paramIndex++
		condition = fmt.Sprintf("value_numeric BETWEEN $%d AND $%d", lo, *paramIndex)
		args = append(args, cl.lo, cl.hi)
	case facet.OpIn:
		*paramIndex++
		condition = fmt.Sprintf("value_text = ANY($%d)", *paramIndex)
		args = append(args, cl.set)
	case facet.OpContains:
		*paramIndex++
		condition = fmt.Sprintf("value_text ILIKE $%d", *paramIndex)
		args = append(args, "%"+escapeLike(cl.text)+"%")
	case facet.OpEq, facet.OpGt, facet.OpGte, facet.OpLt, facet.OpLte:
		column, value := cl.valueColumn()
		*paramIndex++
		condition = fmt.Sprintf("%s %s $%d", column, sqlOperators[cl.op], *paramIndex)
		args = append(args, value)
	default:
		return "", nil, fmt.Errorf("unsupported operator: %s", cl.op)
	}

	return fmt.Sprintf(
		"(SELECT item_id FROM %s WHERE field_id = %s AND %s%s)",
		tables.FieldValues, fieldPlaceholder, condition, reachFilter,
	), args, nil
}

var sqlOperators = map[facet.Operator]string{
	facet.OpEq:  "=",
	facet.OpGt:  ">",
	facet.OpGte: ">=",
	facet.OpLt:  "<",
	facet.OpLte: "<=",
}

func (cl *clause) valueColumn() (string, any) {
	switch cl.field.Type.Slot() {
	case facet.ValueSlotNumeric:
		return "value_numeric", cl.num
	case facet.ValueSlotBool:
		return "value_bool", cl.flag
	default:
		return "value_text", cl.text
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
