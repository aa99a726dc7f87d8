package filter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFields struct {
	rating facet.Field
	pages  facet.Field
	status facet.Field
	notes  facet.Field
	read   facet.Field
}

func newTestFields() testFields {
	return testFields{
		rating: facet.Field{ID: uuid.New(), Name: "Rating", Type: facet.FieldTypeRating, Config: facet.FieldConfig{Rating: &facet.RatingConfig{Max: 5}}},
		pages:  facet.Field{ID: uuid.New(), Name: "Pages", Type: facet.FieldTypeNumber},
		status: facet.Field{ID: uuid.New(), Name: "Status", Type: facet.FieldTypeSelect, Config: facet.FieldConfig{Select: &facet.SelectConfig{Options: []string{"Todo", "Doing", "Done"}}}},
		notes:  facet.Field{ID: uuid.New(), Name: "Notes", Type: facet.FieldTypeText},
		read:   facet.Field{ID: uuid.New(), Name: "Read", Type: facet.FieldTypeBoolean},
	}
}

func (tf testFields) byID() map[uuid.UUID]facet.Field {
	return map[uuid.UUID]facet.Field{
		tf.rating.ID: tf.rating,
		tf.pages.ID:  tf.pages,
		tf.status.ID: tf.status,
		tf.notes.ID:  tf.notes,
		tf.read.ID:   tf.read,
	}
}

func num(f facet.Field, n float64) facet.FieldValue {
	return facet.FieldValue{FieldID: f.ID, Numeric: &n}
}

func text(f facet.Field, s string) facet.FieldValue {
	return facet.FieldValue{FieldID: f.ID, Text: &s}
}

func flag(f facet.Field, b bool) facet.FieldValue {
	return facet.FieldValue{FieldID: f.ID, Bool: &b}
}

func values(vs ...facet.FieldValue) map[uuid.UUID]facet.FieldValue {
	out := make(map[uuid.UUID]facet.FieldValue, len(vs))
	for _, v := range vs {
		out[v.FieldID] = v
	}
	return out
}

func TestCompile_Errors(t *testing.T) {
	tf := newTestFields()

	tests := []struct {
		name      string
		criterion facet.Criterion
		wantCode  string
	}{
		{
			name:      "unknown field",
			criterion: facet.Criterion{FieldID: uuid.New(), Operator: facet.OpEq, Operand: 1},
			wantCode:  facet.ErrCodeUnknownField,
		},
		{
			name:      "gt on boolean",
			criterion: facet.Criterion{FieldID: tf.read.ID, Operator: facet.OpGt, Operand: true},
			wantCode:  facet.ErrCodeIllegalOperator,
		},
		{
			name:      "illegal operator wins over bad operand",
			criterion: facet.Criterion{FieldID: tf.read.ID, Operator: facet.OpContains, Operand: 42},
			wantCode:  facet.ErrCodeIllegalOperator,
		},
		{
			name:      "contains on select",
			criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpContains, Operand: "Do"},
			wantCode:  facet.ErrCodeIllegalOperator,
		},
		{
			name:      "in on text",
			criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpIn, Operand: []any{"a"}},
			wantCode:  facet.ErrCodeIllegalOperator,
		},
		{
			name:      "isEmpty on number",
			criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpIsEmpty},
			wantCode:  facet.ErrCodeIllegalOperator,
		},
		{
			name:      "rating with string operand",
			criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpGte, Operand: "4"},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "between with single bound",
			criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpBetween, Operand: []any{1.0}},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "between with inverted bounds",
			criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpBetween, Operand: []any{10.0, 1.0}},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "between with scalar",
			criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpBetween, Operand: 3},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "select option outside set",
			criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpEq, Operand: "Someday"},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "in with empty list",
			criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpIn, Operand: []any{}},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "in with unknown option",
			criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpIn, Operand: []any{"Todo", "Later"}},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "boolean with string",
			criterion: facet.Criterion{FieldID: tf.read.ID, Operator: facet.OpEq, Operand: "true"},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
		{
			name:      "text with number",
			criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpContains, Operand: 3},
			wantCode:  facet.ErrCodeTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tf.byID(), []facet.Criterion{tt.criterion})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, facet.CodeOf(err))
		})
	}
}

func TestCompile_AcceptsGoSlices(t *testing.T) {
	tf := newTestFields()

	p, err := Compile(tf.byID(), []facet.Criterion{
		{FieldID: tf.pages.ID, Operator: facet.OpBetween, Operand: []int{10, 20}},
		{FieldID: tf.status.ID, Operator: facet.OpIn, Operand: []string{"Todo", "Done"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []uuid.UUID{tf.pages.ID, tf.status.ID}, p.FieldIDs())
}

func TestPredicate_Match(t *testing.T) {
	tf := newTestFields()

	tests := []struct {
		name      string
		criterion facet.Criterion
		values    map[uuid.UUID]facet.FieldValue
		want      bool
	}{
		{name: "rating gte hit", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpGte, Operand: 4}, values: values(num(tf.rating, 5)), want: true},
		{name: "rating gte miss", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpGte, Operand: 4}, values: values(num(tf.rating, 3)), want: false},
		{name: "rating missing", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpGte, Operand: 1}, values: values(), want: false},
		{name: "number lt", criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpLt, Operand: 100}, values: values(num(tf.pages, 99.5)), want: true},
		{name: "number lte boundary", criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpLte, Operand: 100}, values: values(num(tf.pages, 100)), want: true},
		{name: "number gt boundary", criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpGt, Operand: 100}, values: values(num(tf.pages, 100)), want: false},
		{name: "number eq", criterion: facet.Criterion{FieldID: tf.pages.ID, Operator: facet.OpEq, Operand: 7}, values: values(num(tf.pages, 7)), want: true},
		{name: "between inclusive low", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpBetween, Operand: []any{2.0, 4.0}}, values: values(num(tf.rating, 2)), want: true},
		{name: "between inclusive high", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpBetween, Operand: []any{2.0, 4.0}}, values: values(num(tf.rating, 4)), want: true},
		{name: "between outside", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpBetween, Operand: []any{2.0, 4.0}}, values: values(num(tf.rating, 5)), want: false},
		{name: "between equal bounds", criterion: facet.Criterion{FieldID: tf.rating.ID, Operator: facet.OpBetween, Operand: []any{3.0, 3.0}}, values: values(num(tf.rating, 3)), want: true},
		{name: "select eq", criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpEq, Operand: "Done"}, values: values(text(tf.status, "Done")), want: true},
		{name: "select in", criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpIn, Operand: []any{"Todo", "Doing"}}, values: values(text(tf.status, "Doing")), want: true},
		{name: "select in miss", criterion: facet.Criterion{FieldID: tf.status.ID, Operator: facet.OpIn, Operand: []any{"Todo", "Doing"}}, values: values(text(tf.status, "Done")), want: false},
		{name: "boolean eq false", criterion: facet.Criterion{FieldID: tf.read.ID, Operator: facet.OpEq, Operand: false}, values: values(flag(tf.read, false)), want: true},
		{name: "boolean missing", criterion: facet.Criterion{FieldID: tf.read.ID, Operator: facet.OpEq, Operand: false}, values: values(), want: false},
		{name: "text contains case-insensitive", criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpContains, Operand: "GO"}, values: values(text(tf.notes, "Learning go generics")), want: true},
		{name: "text eq exact", criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpEq, Operand: "go"}, values: values(text(tf.notes, "Go")), want: false},
		{name: "isEmpty missing", criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpIsEmpty}, values: values(), want: true},
		{name: "isEmpty empty string", criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpIsEmpty, Operand: "ignored"}, values: values(text(tf.notes, "")), want: true},
		{name: "isEmpty with text", criterion: facet.Criterion{FieldID: tf.notes.ID, Operator: facet.OpIsEmpty}, values: values(text(tf.notes, "x")), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(tf.byID(), []facet.Criterion{tt.criterion})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.values))
		})
	}
}

func TestPredicate_MatchConjunction(t *testing.T) {
	tf := newTestFields()

	p, err := Compile(tf.byID(), []facet.Criterion{
		{FieldID: tf.rating.ID, Operator: facet.OpGte, Operand: 4},
		{FieldID: tf.status.ID, Operator: facet.OpEq, Operand: "Done"},
	})
	require.NoError(t, err)

	assert.True(t, p.Match(values(num(tf.rating, 5), text(tf.status, "Done"))))
	assert.False(t, p.Match(values(num(tf.rating, 5), text(tf.status, "Todo"))))
	assert.False(t, p.Match(values(num(tf.rating, 5))))

	empty, err := Compile(tf.byID(), nil)
	require.NoError(t, err)
	assert.True(t, empty.Match(values()))
}
