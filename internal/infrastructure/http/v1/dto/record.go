package dto

import (
	"erpdir/internal/core/entity"
	"erpdir/internal/domain/directory"
)

// RecordRequest carries values keyed by field name or field id.
// ModuleID picks the binding when a directory is bound more than once.
type RecordRequest struct {
	Values   map[string]any    `json:"values"`
	Metadata entity.Attributes `json:"metadata"`
	ModuleID *string           `json:"moduleId" binding:"omitempty,uuid"`
}

// RecordFilter is the query of GET /directories/:id/data.
type RecordFilter struct {
	PaginationRequest
	Search string `form:"search"`
	// Filter is a JSON array of filter items.
	Filter string `form:"filter"`
}

// RecordResponse is a record with decoded values. Labels holds the
// display text of relation values by field name.
type RecordResponse struct {
	ID                 string                           `json:"id"`
	CompanyDirectoryID string                           `json:"companyDirectoryId"`
	Metadata           entity.Attributes                `json:"metadata"`
	Values             []directory.FieldValue           `json:"values"`
	Labels             map[string]directory.ResolvedRef `json:"labels,omitempty"`
}

// FromRecordView maps a record view.
func FromRecordView(v *directory.RecordView, labels map[string]directory.ResolvedRef) RecordResponse {
	values := v.Values
	if values == nil {
		values = []directory.FieldValue{}
	}
	return RecordResponse{
		ID:                 v.ID.String(),
		CompanyDirectoryID: v.CompanyDirectoryID.String(),
		Metadata:           attrs(v.Meta),
		Values:             values,
		Labels:             labels,
	}
}

// --- Bindings ---

// BindRequest binds a directory to the session company.
type BindRequest struct {
	DirectoryID string  `json:"directoryId" binding:"required,uuid"`
	ModuleID    *string `json:"moduleId" binding:"omitempty,uuid"`
}

// BindingResponse is a company directory binding.
type BindingResponse struct {
	ID          string  `json:"id"`
	CompanyID   string  `json:"companyId"`
	DirectoryID string  `json:"directoryId"`
	ModuleID    *string `json:"moduleId,omitempty"`
}

// FromBinding maps a binding.
func FromBinding(b *directory.CompanyDirectory) BindingResponse {
	return BindingResponse{
		ID:          b.ID.String(),
		CompanyID:   b.CompanyID.String(),
		DirectoryID: b.DirectoryID.String(),
		ModuleID:    idString(b.ModuleID),
	}
}

// --- Cascade ---

// CascadeVisibleRequest asks which dependent fields a selection reveals.
type CascadeVisibleRequest struct {
	FieldID    string            `json:"fieldId" binding:"required,uuid"`
	Value      string            `json:"value"`
	Selections map[string]string `json:"selections"`
}

// CascadeVisibleResponse is the stateless evaluation of a selection.
// Selections are pruned of fields that are no longer visible.
type CascadeVisibleResponse struct {
	Config     directory.CascadingConfig  `json:"config"`
	Visible    []directory.DependentField `json:"visible"`
	Selections map[string]string          `json:"selections"`
	Missing    []string                   `json:"missing"`
}

// CascadeOptionsRequest asks for the options of one dependent field.
type CascadeOptionsRequest struct {
	CascadeVisibleRequest
	Field  string `json:"field" binding:"required"`
	Search string `json:"search"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=500"`
}
