package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    Item
		wantErr bool
	}{
		{"eq string", Item{Field: "name", Operator: Equal, Value: "Acme"}, false},
		{"eq number", Item{Field: "name", Operator: Equal, Value: 3}, true},
		{"in any list", Item{Field: "kind", Operator: InList, Value: []any{"a", "b"}}, false},
		{"in mixed list", Item{Field: "kind", Operator: InList, Value: []any{"a", 1}}, true},
		{"null", Item{Field: "kind", Operator: IsNull}, false},
		{"unknown op", Item{Field: "kind", Operator: "between"}, true},
		{"no field", Item{Operator: IsNull}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestItem_Strings(t *testing.T) {
	got, err := Item{Field: "k", Operator: NotInList, Value: []string{"x"}}.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)
}
