package render

import (
	"erpdir/internal/domain/directory"
)

// Built-in capabilities.
const (
	CapabilityTable  = "table"
	CapabilityTree   = "tree"
	CapabilityCustom = "custom"
)

// TableHandler shows fields marked isVisibleOnTable, or all fields when none are.
type TableHandler struct{}

func (TableHandler) Capability() string { return CapabilityTable }

func (TableHandler) Describe(dir *directory.Directory, fields []*directory.Field) View {
	var cols []Column
	for _, f := range fields {
		if f.Meta.IsVisibleOnTable {
			cols = append(cols, column(f))
		}
	}
	if len(cols) == 0 {
		cols = columns(fields)
	}
	return View{Renderer: CapabilityTable, Columns: cols, DisplayField: displayField(dir, fields)}
}

// TreeHandler groups records by their parentValue metadata.
type TreeHandler struct{}

func (TreeHandler) Capability() string { return CapabilityTree }

func (TreeHandler) Describe(dir *directory.Directory, fields []*directory.Field) View {
	return View{Renderer: CapabilityTree, Columns: columns(fields), DisplayField: displayField(dir, fields)}
}

// CustomHandler defers drawing to a named client component.
type CustomHandler struct{}

func (CustomHandler) Capability() string { return CapabilityCustom }

func (CustomHandler) Describe(dir *directory.Directory, fields []*directory.Field) View {
	return View{
		Renderer:     CapabilityCustom,
		Component:    dir.Meta.ComponentName,
		Columns:      columns(fields),
		DisplayField: displayField(dir, fields),
	}
}

func column(f *directory.Field) Column {
	return Column{FieldID: f.ID.String(), Name: f.Name, Type: string(f.Type.Kind)}
}

func columns(fields []*directory.Field) []Column {
	out := make([]Column, 0, len(fields))
	for _, f := range fields {
		out = append(out, column(f))
	}
	return out
}

func displayField(dir *directory.Directory, fields []*directory.Field) string {
	if f := directory.LabelField(dir, fields); f != nil {
		return f.Name
	}
	return ""
}
