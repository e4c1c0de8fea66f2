package directory

import (
	"context"

	"erpdir/internal/core/id"
	"erpdir/internal/domain/filter"
)

// DirectoryRepository persists directory definitions.
type DirectoryRepository interface {
	CreateDirectory(ctx context.Context, d *Directory) error
	UpdateDirectory(ctx context.Context, d *Directory) error
	GetDirectory(ctx context.Context, directoryID id.ID) (*Directory, error)
	ListDirectories(ctx context.Context, q DirectoryQuery) ([]*Directory, error)
	DirectoryExists(ctx context.Context, directoryID id.ID) (bool, error)

	// DeleteDirectory removes the directory; fields, bindings, records and
	// values go with it. Relation fields elsewhere keep their rows with a
	// NULL target.
	DeleteDirectory(ctx context.Context, directoryID id.ID) error
}

// DirectoryQuery filters ListDirectories.
type DirectoryQuery struct {
	Search string
	Types  []Type
	IDs    []id.ID
}

// FieldRepository persists field definitions.
type FieldRepository interface {
	CreateField(ctx context.Context, f *Field) error
	UpdateField(ctx context.Context, f *Field) error
	GetField(ctx context.Context, fieldID id.ID) (*Field, error)

	// ListFields returns the fields of a directory in display order.
	ListFields(ctx context.Context, directoryID id.ID) ([]*Field, error)

	// ListRelationFields returns every relation field across directories.
	ListRelationFields(ctx context.Context) ([]*Field, error)

	FieldNameExists(ctx context.Context, directoryID id.ID, name string, exceptID *id.ID) (bool, error)

	// DeleteField removes the definition; stored values keep their name
	// snapshot and lose the field link.
	DeleteField(ctx context.Context, fieldID id.ID) error
}

// BindingRepository persists company_directories rows.
type BindingRepository interface {
	CreateBinding(ctx context.Context, b *CompanyDirectory) error
	GetBinding(ctx context.Context, bindingID id.ID) (*CompanyDirectory, error)

	// FindBinding looks up the (company, directory, module) triple; nil module
	// matches only unscoped bindings.
	FindBinding(ctx context.Context, companyID, directoryID id.ID, moduleID *id.ID) (*CompanyDirectory, error)

	ListBindings(ctx context.Context, companyID id.ID) ([]*CompanyDirectory, error)
	ListBindingsForDirectory(ctx context.Context, companyID, directoryID id.ID) ([]*CompanyDirectory, error)
	DeleteBinding(ctx context.Context, bindingID id.ID) error
}

// RecordRepository persists records and their values.
type RecordRepository interface {
	CreateRecord(ctx context.Context, r *Record) error
	UpdateRecordMeta(ctx context.Context, recordID id.ID, meta RecordMeta) error
	GetRecord(ctx context.Context, recordID id.ID) (*Record, error)
	GetRecords(ctx context.Context, recordIDs []id.ID) ([]*Record, error)

	// ListRecords returns records with their values, newest last.
	ListRecords(ctx context.Context, q RecordQuery) ([]*Record, int64, error)

	// UpsertValues inserts or replaces values keyed by (record, field).
	UpsertValues(ctx context.Context, recordID id.ID, values []Value) error

	DeleteRecord(ctx context.Context, recordID id.ID) error

	// DeleteValuesByBinding and DeleteRecordsByBinding clear a binding's data
	// ahead of the binding row itself.
	DeleteValuesByBinding(ctx context.Context, bindingID id.ID) (int64, error)
	DeleteRecordsByBinding(ctx context.Context, bindingID id.ID) (int64, error)
}

// RecordQuery selects records of one or more bindings.
type RecordQuery struct {
	BindingIDs []id.ID

	// Search is a case-insensitive substring. With SearchFieldID it keeps
	// records whose value of that field matches or that have no value for
	// it. With SearchByID it matches the record id. Otherwise any value.
	Search        string
	SearchFieldID *id.ID
	SearchByID    bool

	// ParentValues keeps records whose parentValue metadata is one of these.
	ParentValues []string

	Filters []filter.Item
	Limit   int
	Offset  int
}

// AuditLog records value changes of records.
type AuditLog interface {
	LogRecordChange(ctx context.Context, recordID id.ID, action string, changes map[string]any) error
}

// Audit actions.
const (
	AuditCreate = "create"
	AuditUpdate = "update"
	AuditDelete = "delete"
)
