package directory

import (
	"slices"
	"strings"

	"erpdir/internal/core/id"
)

// Edge is a relation field seen as a directed link between directories.
type Edge struct {
	From      id.ID  `json:"from"`
	To        id.ID  `json:"to"`
	FieldID   id.ID  `json:"fieldId"`
	FieldName string `json:"fieldName"`
}

// RelationGraph is the directory-to-directory graph formed by relation
// fields. Self-loops are kept so callers can detect them.
type RelationGraph struct {
	out map[id.ID][]Edge
	in  map[id.ID][]Edge
}

// BuildRelationGraph indexes relation fields by source and target.
// Relation fields whose target was deleted are skipped.
func BuildRelationGraph(fields []*Field) *RelationGraph {
	g := &RelationGraph{
		out: make(map[id.ID][]Edge),
		in:  make(map[id.ID][]Edge),
	}
	for _, f := range fields {
		target, ok := f.RelationTarget()
		if !ok {
			continue
		}
		e := Edge{From: f.DirectoryID, To: target, FieldID: f.ID, FieldName: f.Name}
		g.out[e.From] = append(g.out[e.From], e)
		g.in[e.To] = append(g.in[e.To], e)
	}
	return g
}

// Outgoing returns relation fields declared on dir.
func (g *RelationGraph) Outgoing(dir id.ID) []Edge { return g.out[dir] }

// Incoming returns relation fields that point at dir.
func (g *RelationGraph) Incoming(dir id.ID) []Edge { return g.in[dir] }

// Referrers returns the other directories holding relation fields to dir.
func (g *RelationGraph) Referrers(dir id.ID) []id.ID {
	var out []id.ID
	for _, e := range g.in[dir] {
		if e.From != dir && !slices.Contains(out, e.From) {
			out = append(out, e.From)
		}
	}
	slices.SortFunc(out, func(a, b id.ID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

// Reachable walks outgoing edges breadth-first from dir, at most maxDepth
// hops (0 means unbounded). dir itself is excluded unless a cycle leads back.
func (g *RelationGraph) Reachable(dir id.ID, maxDepth int) []id.ID {
	visited := map[id.ID]bool{}
	var out []id.ID
	frontier := []id.ID{dir}
	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		var next []id.ID
		for _, cur := range frontier {
			for _, e := range g.out[cur] {
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				out = append(out, e.To)
				next = append(next, e.To)
			}
		}
		frontier = next
	}
	return out
}

// HasCycleFrom reports whether following relations from dir leads back to dir.
func (g *RelationGraph) HasCycleFrom(dir id.ID) bool {
	return slices.Contains(g.Reachable(dir, 0), dir)
}
