package directory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/infrastructure/storage/postgres"
)

const fieldsTable = "directory_fields"

type fieldRow struct {
	entity.BaseEntity
	DirectoryID         id.ID             `db:"directory_id"`
	Name                string            `db:"name"`
	Type                string            `db:"type"`
	RelationDirectoryID *id.ID            `db:"relation_directory_id"`
	Required            bool              `db:"required"`
	Metadata            entity.Attributes `db:"metadata"`
}

var fieldCols = postgres.ExtractDBColumns[fieldRow]()

func (r *fieldRow) toDomain() (*directory.Field, error) {
	meta, err := directory.DecodeFieldMeta(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &directory.Field{
		BaseEntity:  r.BaseEntity,
		DirectoryID: r.DirectoryID,
		Name:        r.Name,
		Type:        directory.FieldType{Kind: directory.Kind(r.Type), Target: r.RelationDirectoryID},
		Required:    r.Required,
		Meta:        meta,
	}, nil
}

func fieldToRow(f *directory.Field) (*fieldRow, error) {
	attrs, err := f.Meta.Attributes()
	if err != nil {
		return nil, fmt.Errorf("encode field metadata: %w", err)
	}
	return &fieldRow{
		BaseEntity:          f.BaseEntity,
		DirectoryID:         f.DirectoryID,
		Name:                f.Name,
		Type:                string(f.Type.Kind),
		RelationDirectoryID: f.Type.Target,
		Required:            f.Required,
		Metadata:            attrs,
	}, nil
}

func rowsToFields(rows []*fieldRow) ([]*directory.Field, error) {
	out := make([]*directory.Field, 0, len(rows))
	for _, row := range rows {
		f, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// FieldRepo implements directory.FieldRepository.
type FieldRepo struct {
	base
}

var _ directory.FieldRepository = (*FieldRepo)(nil)

func NewFieldRepo(txManager *postgres.TxManager) *FieldRepo {
	return &FieldRepo{base{txManager: txManager}}
}

func (r *FieldRepo) CreateField(ctx context.Context, f *directory.Field) error {
	row, err := fieldToRow(f)
	if err != nil {
		return err
	}
	q := r.builder().Insert(fieldsTable).SetMap(postgres.StructToMap(row))
	if _, err := r.exec(ctx, q); err != nil {
		return mapFieldErr(err, f)
	}
	return nil
}

// UpdateField also rewrites the name snapshot of the field's stored values.
func (r *FieldRepo) UpdateField(ctx context.Context, f *directory.Field) error {
	row, err := fieldToRow(f)
	if err != nil {
		return err
	}
	q := r.builder().Update(fieldsTable).
		Set("name", row.Name).
		Set("required", row.Required).
		Set("metadata", row.Metadata).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID})
	tag, err := r.exec(ctx, q)
	if err != nil {
		return mapFieldErr(err, f)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("field", f.ID)
	}

	if _, err := r.exec(ctx, renameSnapshotsQuery(r.builder(), f.ID, f.Name)); err != nil {
		return fmt.Errorf("rename value snapshots: %w", err)
	}
	return nil
}

func renameSnapshotsQuery(b squirrel.StatementBuilderType, fieldID id.ID, name string) squirrel.UpdateBuilder {
	return b.Update(valuesTable).
		Set("field_name", name).
		Where(squirrel.Eq{"field_id": fieldID}).
		Where(squirrel.NotEq{"field_name": name})
}

func (r *FieldRepo) GetField(ctx context.Context, fieldID id.ID) (*directory.Field, error) {
	var row fieldRow
	q := r.builder().Select(fieldCols...).From(fieldsTable).Where(squirrel.Eq{"id": fieldID})
	if err := r.get(ctx, &row, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("field", fieldID)
		}
		return nil, fmt.Errorf("get field: %w", err)
	}
	return row.toDomain()
}

// ListFields returns fields in display order. Metadata order is applied in
// Go so a malformed order value cannot break the query.
func (r *FieldRepo) ListFields(ctx context.Context, directoryID id.ID) ([]*directory.Field, error) {
	var rows []*fieldRow
	q := r.builder().Select(fieldCols...).From(fieldsTable).
		Where(squirrel.Eq{"directory_id": directoryID}).
		OrderBy("created_at ASC", "id ASC")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	fields, err := rowsToFields(rows)
	if err != nil {
		return nil, err
	}
	directory.SortFields(fields)
	return fields, nil
}

func (r *FieldRepo) ListRelationFields(ctx context.Context) ([]*directory.Field, error) {
	var rows []*fieldRow
	q := r.builder().Select(fieldCols...).From(fieldsTable).
		Where(squirrel.Eq{"type": string(directory.KindRelation)}).
		OrderBy("created_at ASC", "id ASC")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list relation fields: %w", err)
	}
	return rowsToFields(rows)
}

func (r *FieldRepo) FieldNameExists(ctx context.Context, directoryID id.ID, name string, exceptID *id.ID) (bool, error) {
	q := r.builder().Select("1").From(fieldsTable).
		Where(squirrel.Eq{"directory_id": directoryID}).
		Where(squirrel.Eq{"name": name})
	if exceptID != nil {
		q = q.Where(squirrel.NotEq{"id": *exceptID})
	}
	ok, err := r.exists(ctx, q)
	if err != nil {
		return false, fmt.Errorf("field name exists: %w", err)
	}
	return ok, nil
}

// DeleteField drops the definition; directory_values.field_id is SET NULL
// by the schema and the name snapshot stays.
func (r *FieldRepo) DeleteField(ctx context.Context, fieldID id.ID) error {
	tag, err := r.exec(ctx, r.builder().Delete(fieldsTable).Where(squirrel.Eq{"id": fieldID}))
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("field", fieldID)
	}
	return nil
}

func mapFieldErr(err error, f *directory.Field) error {
	switch {
	case postgres.IsUniqueViolation(err):
		return apperror.NewDuplicateField(f.DirectoryID, f.Name).WithCause(err)
	case postgres.IsForeignKeyViolation(err):
		if f.Type.Target != nil && postgres.Constraint(err) == "directory_fields_relation_directory_id_fkey" {
			return apperror.NewInvalidReference("directory", *f.Type.Target).WithCause(err)
		}
		return apperror.NewNotFound("directory", f.DirectoryID).WithCause(err)
	}
	return fmt.Errorf("write field: %w", err)
}
