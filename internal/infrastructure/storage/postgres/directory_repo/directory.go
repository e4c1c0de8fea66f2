package directory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/infrastructure/storage/postgres"
)

const directoriesTable = "directories"

type directoryRow struct {
	entity.BaseEntity
	Name     string            `db:"name"`
	Icon     string            `db:"icon"`
	Type     string            `db:"type"`
	Metadata entity.Attributes `db:"metadata"`
}

var directoryCols = postgres.ExtractDBColumns[directoryRow]()

func (r *directoryRow) toDomain() (*directory.Directory, error) {
	meta, err := directory.DecodeDirectoryMeta(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &directory.Directory{
		BaseEntity: r.BaseEntity,
		Name:       r.Name,
		Icon:       r.Icon,
		Type:       directory.Type(r.Type),
		Meta:       meta,
	}, nil
}

func directoryToRow(d *directory.Directory) (*directoryRow, error) {
	attrs, err := d.Meta.Attributes()
	if err != nil {
		return nil, fmt.Errorf("encode directory metadata: %w", err)
	}
	return &directoryRow{
		BaseEntity: d.BaseEntity,
		Name:       d.Name,
		Icon:       d.Icon,
		Type:       string(d.Type),
		Metadata:   attrs,
	}, nil
}

// DirectoryRepo implements directory.DirectoryRepository.
type DirectoryRepo struct {
	base
}

var _ directory.DirectoryRepository = (*DirectoryRepo)(nil)

func NewDirectoryRepo(txManager *postgres.TxManager) *DirectoryRepo {
	return &DirectoryRepo{base{txManager: txManager}}
}

func (r *DirectoryRepo) CreateDirectory(ctx context.Context, d *directory.Directory) error {
	row, err := directoryToRow(d)
	if err != nil {
		return err
	}
	q := r.builder().Insert(directoriesTable).SetMap(postgres.StructToMap(row))
	if _, err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("insert directory: %w", err)
	}
	return nil
}

func (r *DirectoryRepo) UpdateDirectory(ctx context.Context, d *directory.Directory) error {
	row, err := directoryToRow(d)
	if err != nil {
		return err
	}
	q := r.builder().Update(directoriesTable).
		Set("name", row.Name).
		Set("icon", row.Icon).
		Set("type", row.Type).
		Set("metadata", row.Metadata).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID})
	tag, err := r.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("update directory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("directory", d.ID)
	}
	return nil
}

func (r *DirectoryRepo) GetDirectory(ctx context.Context, directoryID id.ID) (*directory.Directory, error) {
	var row directoryRow
	q := r.builder().Select(directoryCols...).From(directoriesTable).Where(squirrel.Eq{"id": directoryID})
	if err := r.get(ctx, &row, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("directory", directoryID)
		}
		return nil, fmt.Errorf("get directory: %w", err)
	}
	return row.toDomain()
}

func (r *DirectoryRepo) ListDirectories(ctx context.Context, dq directory.DirectoryQuery) ([]*directory.Directory, error) {
	var rows []*directoryRow
	if err := r.selectAll(ctx, &rows, r.listQuery(dq)); err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	out := make([]*directory.Directory, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *DirectoryRepo) listQuery(dq directory.DirectoryQuery) squirrel.SelectBuilder {
	q := r.builder().Select(directoryCols...).From(directoriesTable)
	if dq.Search != "" {
		q = q.Where(squirrel.ILike{"name": containsPattern(dq.Search)})
	}
	if len(dq.Types) > 0 {
		types := make([]string, len(dq.Types))
		for i, t := range dq.Types {
			types[i] = string(t)
		}
		q = q.Where(squirrel.Eq{"type": types})
	}
	if len(dq.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": dq.IDs})
	}
	return q.OrderBy("name ASC", "created_at ASC")
}

func (r *DirectoryRepo) DirectoryExists(ctx context.Context, directoryID id.ID) (bool, error) {
	ok, err := r.exists(ctx, r.builder().Select("1").From(directoriesTable).Where(squirrel.Eq{"id": directoryID}))
	if err != nil {
		return false, fmt.Errorf("directory exists: %w", err)
	}
	return ok, nil
}

// DeleteDirectory clears records (values cascade) and bindings before the
// directory row; its fields cascade and foreign relation fields are set to
// a NULL target by the schema.
func (r *DirectoryRepo) DeleteDirectory(ctx context.Context, directoryID id.ID) error {
	bindings := r.builder().Select("id").From(bindingsTable).Where(squirrel.Eq{"directory_id": directoryID})
	steps := []struct {
		name string
		q    squirrel.Sqlizer
	}{
		{"records", r.builder().Delete(recordsTable).Where(squirrel.Expr("company_directory_id IN (?)", bindings))},
		{"bindings", r.builder().Delete(bindingsTable).Where(squirrel.Eq{"directory_id": directoryID})},
	}
	for _, s := range steps {
		if _, err := r.exec(ctx, s.q); err != nil {
			return fmt.Errorf("delete directory %s: %w", s.name, err)
		}
	}

	tag, err := r.exec(ctx, r.builder().Delete(directoriesTable).Where(squirrel.Eq{"id": directoryID}))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewConflict("directory is still referenced").
				WithDetail("directory_id", directoryID.String()).
				WithCause(err)
		}
		return fmt.Errorf("delete directory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("directory", directoryID)
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }
