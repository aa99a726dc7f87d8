package facet

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriterion_UnmarshalJSON(t *testing.T) {
	fieldID := uuid.New()

	tests := []struct {
		name        string
		json        string
		wantOp      Operator
		wantOperand any
		wantErr     bool
		errSubstr   string
	}{
		{
			name:        "numeric operand",
			json:        `{"field":"` + fieldID.String() + `","op":"gte","operand":4}`,
			wantOp:      OpGte,
			wantOperand: 4.0,
		},
		{
			name:        "between pair",
			json:        `{"field":"` + fieldID.String() + `","op":"between","operand":[1,3]}`,
			wantOp:      OpBetween,
			wantOperand: []any{1.0, 3.0},
		},
		{
			name:   "isEmpty without operand",
			json:   `{"field":"` + fieldID.String() + `","op":"isEmpty"}`,
			wantOp: OpIsEmpty,
		},
		{
			name:      "missing field",
			json:      `{"op":"eq","operand":true}`,
			wantErr:   true,
			errSubstr: "missing field",
		},
		{
			name:      "missing op",
			json:      `{"field":"` + fieldID.String() + `","operand":true}`,
			wantErr:   true,
			errSubstr: "missing op",
		},
		{
			name:    "malformed field id",
			json:    `{"field":"nope","op":"eq"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Criterion
			err := json.Unmarshal([]byte(tt.json), &c)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errSubstr != "" {
					assert.Contains(t, err.Error(), tt.errSubstr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fieldID, c.FieldID)
			assert.Equal(t, tt.wantOp, c.Operator)
			assert.Equal(t, tt.wantOperand, c.Operand)
		})
	}
}

func TestFilterRequest_UnmarshalJSON(t *testing.T) {
	collectionID := uuid.New()
	fieldID := uuid.New()
	tagID := uuid.New()

	payload := `{"collectionId":"` + collectionID.String() + `",` +
		`"criteria":[{"field":"` + fieldID.String() + `","op":"eq","operand":"Done"}],` +
		`"tagIds":["` + tagID.String() + `"]}`

	var req FilterRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, collectionID, req.CollectionID)
	require.Len(t, req.Criteria, 1)
	assert.Equal(t, OpEq, req.Criteria[0].Operator)
	assert.Equal(t, "Done", req.Criteria[0].Operand)
	assert.Equal(t, []uuid.UUID{tagID}, req.TagIDs)
}
