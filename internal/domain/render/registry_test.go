package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/entity"
	"erpdir/internal/domain/directory"
)

type kanbanHandler struct{}

func (kanbanHandler) Capability() string { return "kanban" }

func (kanbanHandler) Describe(*directory.Directory, []*directory.Field) View {
	return View{Renderer: "kanban"}
}

func field(name string, visible bool) *directory.Field {
	return &directory.Field{
		BaseEntity: entity.NewBaseEntity(),
		Name:       name,
		Type:       directory.FieldType{Kind: directory.KindString},
		Meta:       directory.FieldMeta{IsVisibleOnTable: visible},
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewDefaultRegistry()
	require.NoError(t, r.Register(kanbanHandler{}))
	assert.Error(t, r.Register(TreeHandler{}), "duplicate capability")
	assert.Equal(t, []string{"custom", "kanban", "table", "tree"}, r.Capabilities())

	tests := []struct {
		name string
		meta directory.DirectoryMeta
		want string
	}{
		{"declared capability", directory.DirectoryMeta{Capability: "tree"}, CapabilityTree},
		{"registered extension", directory.DirectoryMeta{Capability: "kanban"}, "kanban"},
		{"component name", directory.DirectoryMeta{ComponentName: "PaymentPicker"}, CapabilityCustom},
		{"unknown capability", directory.DirectoryMeta{Capability: "gantt"}, CapabilityTable},
		{"nothing declared", directory.DirectoryMeta{}, CapabilityTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &directory.Directory{Meta: tt.meta}
			assert.Equal(t, tt.want, r.Resolve(dir).Capability())
		})
	}
}

func TestRegistry_Describe(t *testing.T) {
	r := NewDefaultRegistry()
	code, name := field("code", false), field("name", true)
	hidden := false

	v := r.Describe(&directory.Directory{Meta: directory.DirectoryMeta{Visible: &hidden}}, []*directory.Field{code, name})
	assert.Equal(t, CapabilityTable, v.Renderer)
	require.Len(t, v.Columns, 1)
	assert.Equal(t, "name", v.Columns[0].Name)
	assert.Equal(t, "name", v.DisplayField)
	assert.True(t, v.Hidden)

	v = r.Describe(&directory.Directory{Meta: directory.DirectoryMeta{ComponentName: "PaymentPicker"}}, []*directory.Field{code})
	assert.Equal(t, CapabilityCustom, v.Renderer)
	assert.Equal(t, "PaymentPicker", v.Component)
	assert.Len(t, v.Columns, 1)
	assert.False(t, v.Hidden)
}
