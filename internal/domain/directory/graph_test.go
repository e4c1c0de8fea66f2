package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
)

func relationField(from, to id.ID, name string) *Field {
	target := to
	return &Field{
		BaseEntity:  entity.NewBaseEntity(),
		DirectoryID: from,
		Name:        name,
		Type:        FieldType{Kind: KindRelation, Target: &target},
	}
}

func TestRelationGraph_Cycles(t *testing.T) {
	a, b, c := id.New(), id.New(), id.New()
	g := BuildRelationGraph([]*Field{
		relationField(a, b, "b"),
		relationField(b, a, "a"),
		relationField(b, c, "c"),
	})

	assert.ElementsMatch(t, []id.ID{b, a, c}, g.Reachable(a, 0))
	assert.True(t, g.HasCycleFrom(a))
	assert.False(t, g.HasCycleFrom(c))
	assert.Equal(t, []id.ID{b}, g.Reachable(a, 1))
	assert.Equal(t, []id.ID{b}, g.Referrers(a))
	assert.Len(t, g.Incoming(a), 1)
	assert.Len(t, g.Outgoing(b), 2)
}

func TestRelationGraph_SelfLoop(t *testing.T) {
	a := id.New()
	g := BuildRelationGraph([]*Field{relationField(a, a, "parent")})

	assert.True(t, g.HasCycleFrom(a))
	assert.Empty(t, g.Referrers(a), "a self-loop does not make the directory referenced by others")
}

func TestRelationGraph_SkipsDanglingTargets(t *testing.T) {
	a := id.New()
	f := relationField(a, id.New(), "gone")
	f.Type.Target = nil
	g := BuildRelationGraph([]*Field{f})

	assert.Empty(t, g.Outgoing(a))
}
