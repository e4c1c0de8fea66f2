package dto

import (
	"time"

	"erpdir/internal/core/entity"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/render"
)

// --- Directories ---

// CreateDirectoryRequest defines a directory.
type CreateDirectoryRequest struct {
	Name     string            `json:"name" binding:"required,max=255"`
	Icon     string            `json:"icon" binding:"max=255"`
	Type     string            `json:"type" binding:"required,oneof=system company module"`
	Metadata entity.Attributes `json:"metadata"`
}

// UpdateDirectoryRequest changes a directory. Absent fields stay unchanged.
type UpdateDirectoryRequest struct {
	Name     *string           `json:"name" binding:"omitempty,max=255"`
	Icon     *string           `json:"icon" binding:"omitempty,max=255"`
	Metadata entity.Attributes `json:"metadata"`
}

// DirectoryFilter is the query of GET /directories.
type DirectoryFilter struct {
	Search string   `form:"search"`
	Types  []string `form:"type"`
	IDs    []string `form:"ids"`
}

// DirectoryResponse is a directory definition.
type DirectoryResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Icon      string            `json:"icon,omitempty"`
	Type      string            `json:"type"`
	Metadata  entity.Attributes `json:"metadata"`
	Renderer  string            `json:"renderer,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// FromDirectory maps a directory. renderer is the resolved capability and
// may be empty in lists.
func FromDirectory(d *directory.Directory, renderer string) DirectoryResponse {
	return DirectoryResponse{
		ID:        d.ID.String(),
		Name:      d.Name,
		Icon:      d.Icon,
		Type:      string(d.Type),
		Metadata:  attrs(d.Meta),
		Renderer:  renderer,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// --- Fields ---

// CreateFieldRequest defines a field.
type CreateFieldRequest struct {
	Name                string            `json:"name" binding:"required,max=255"`
	Type                string            `json:"type" binding:"required"`
	Required            bool              `json:"required"`
	RelationDirectoryID *string           `json:"relationDirectoryId" binding:"omitempty,uuid"`
	Metadata            entity.Attributes `json:"metadata"`
}

// UpdateFieldRequest changes a field. The type cannot change.
type UpdateFieldRequest struct {
	Name     *string           `json:"name" binding:"omitempty,max=255"`
	Required *bool             `json:"required"`
	Metadata entity.Attributes `json:"metadata"`
}

// FieldResponse is a field definition.
type FieldResponse struct {
	ID                  string            `json:"id"`
	DirectoryID         string            `json:"directoryId"`
	Name                string            `json:"name"`
	Type                string            `json:"type"`
	RelationDirectoryID *string           `json:"relationDirectoryId,omitempty"`
	Required            bool              `json:"required"`
	Metadata            entity.Attributes `json:"metadata"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// FromField maps a field.
func FromField(f *directory.Field) FieldResponse {
	return FieldResponse{
		ID:                  f.ID.String(),
		DirectoryID:         f.DirectoryID.String(),
		Name:                f.Name,
		Type:                string(f.Type.Kind),
		RelationDirectoryID: idString(f.Type.Target),
		Required:            f.Required,
		Metadata:            attrs(f.Meta),
		CreatedAt:           f.CreatedAt,
		UpdatedAt:           f.UpdatedAt,
	}
}

// FromFields maps a field list.
func FromFields(fields []*directory.Field) []FieldResponse {
	out := make([]FieldResponse, len(fields))
	for i, f := range fields {
		out[i] = FromField(f)
	}
	return out
}

// DirectoryDetailResponse is a directory with its fields and resolved view.
type DirectoryDetailResponse struct {
	DirectoryResponse
	Fields []FieldResponse `json:"fields"`
	View   render.View     `json:"view"`
}
