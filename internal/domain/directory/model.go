// Package directory implements user-definable reference data: a schema
// registry of directories and fields, per-company bindings, an EAV record
// store and relation resolution between directories.
package directory

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
)

// Type classifies a directory by ownership.
type Type string

const (
	TypeSystem  Type = "system"
	TypeCompany Type = "company"
	TypeModule  Type = "module"
)

// ParseType validates a directory type name.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeSystem, TypeCompany, TypeModule:
		return t, nil
	}
	return "", apperror.NewValidation("unknown directory type").WithDetail("type", s)
}

// Directory is a named schema: an ordered set of fields.
type Directory struct {
	entity.BaseEntity
	Name string        `json:"name"`
	Icon string        `json:"icon,omitempty"`
	Type Type          `json:"type"`
	Meta DirectoryMeta `json:"metadata"`
}

// Validate implements entity.Validatable.
func (d *Directory) Validate(_ context.Context) error {
	if strings.TrimSpace(d.Name) == "" {
		return apperror.NewValidation("directory name is required").WithDetail("field", "name")
	}
	if _, err := ParseType(string(d.Type)); err != nil {
		return err
	}
	return nil
}

// Field is a typed column of a directory.
type Field struct {
	entity.BaseEntity
	DirectoryID id.ID     `json:"directoryId"`
	Name        string    `json:"name"`
	Type        FieldType `json:"-"`
	Required    bool      `json:"required"`
	Meta        FieldMeta `json:"metadata"`
}

// Validate implements entity.Validatable.
func (f *Field) Validate(_ context.Context) error {
	if strings.TrimSpace(f.Name) == "" {
		return apperror.NewValidation("field name is required").WithDetail("field", "name")
	}
	if _, err := ParseKind(string(f.Type.Kind)); err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("field", "type")
	}
	if f.Type.IsRelation() != (f.Type.Target != nil) {
		return apperror.NewValidation("relation target must be set exactly for relation fields").
			WithDetail("field", f.Name)
	}
	return nil
}

// RelationTarget returns the target directory of a relation field.
func (f *Field) RelationTarget() (id.ID, bool) {
	if !f.Type.IsRelation() || f.Type.Target == nil {
		return id.Nil(), false
	}
	return *f.Type.Target, true
}

// SortFields orders fields for display: metadata order first, fields
// without an order after, ties broken by creation.
func SortFields(fields []*Field) {
	order := func(f *Field) int {
		if f.Meta.Order == nil {
			return math.MaxInt
		}
		return *f.Meta.Order
	}
	slices.SortStableFunc(fields, func(a, b *Field) int {
		if c := cmp.Compare(order(a), order(b)); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// CompanyDirectory binds a directory to a company, optionally scoped to a module.
type CompanyDirectory struct {
	entity.BaseEntity
	CompanyID   id.ID  `json:"companyId"`
	DirectoryID id.ID  `json:"directoryId"`
	ModuleID    *id.ID `json:"moduleId,omitempty"`
}

// Record is one entry of a bound directory. Values hold stored strings.
type Record struct {
	entity.BaseEntity
	CompanyDirectoryID id.ID      `json:"companyDirectoryId"`
	Meta               RecordMeta `json:"metadata"`
	Values             []Value    `json:"-"`
}

// Value is one stored cell. FieldID is nil once the field has been deleted;
// FieldName keeps a snapshot of the name for that case.
type Value struct {
	ID        id.ID   `json:"id"`
	RecordID  id.ID   `json:"recordId"`
	FieldID   *id.ID  `json:"fieldId,omitempty"`
	FieldName string  `json:"fieldName"`
	Stored    *string `json:"value"`
}

// FieldValue is a stored value joined to its current field definition.
type FieldValue struct {
	FieldID   *id.ID `json:"fieldId,omitempty"`
	FieldName string `json:"fieldName"`
	Type      Kind   `json:"type,omitempty"`
	Value     any    `json:"value"`
	Raw       string `json:"raw"`
	// Orphan marks values whose field no longer exists.
	Orphan bool `json:"orphan,omitempty"`
}

// RecordView is a record with values decoded against the current schema.
type RecordView struct {
	ID                 id.ID        `json:"id"`
	CompanyDirectoryID id.ID        `json:"companyDirectoryId"`
	Meta               RecordMeta   `json:"metadata"`
	Values             []FieldValue `json:"values"`
}

// Get returns the decoded value of a field by name.
func (v *RecordView) Get(name string) (any, bool) {
	for _, fv := range v.Values {
		if fv.FieldName == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// valueByField finds the stored value for a field.
func (r *Record) valueByField(fieldID id.ID) (Value, bool) {
	for _, v := range r.Values {
		if v.FieldID != nil && *v.FieldID == fieldID {
			return v, true
		}
	}
	return Value{}, false
}
