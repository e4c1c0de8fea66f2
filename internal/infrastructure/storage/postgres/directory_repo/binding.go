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

const bindingsTable = "company_directories"

type bindingRow struct {
	entity.BaseEntity
	CompanyID   id.ID  `db:"company_id"`
	DirectoryID id.ID  `db:"directory_id"`
	ModuleID    *id.ID `db:"module_id"`
}

var bindingCols = postgres.ExtractDBColumns[bindingRow]()

func (r *bindingRow) toDomain() *directory.CompanyDirectory {
	return &directory.CompanyDirectory{
		BaseEntity:  r.BaseEntity,
		CompanyID:   r.CompanyID,
		DirectoryID: r.DirectoryID,
		ModuleID:    r.ModuleID,
	}
}

// BindingRepo implements directory.BindingRepository.
type BindingRepo struct {
	base
}

var _ directory.BindingRepository = (*BindingRepo)(nil)

func NewBindingRepo(txManager *postgres.TxManager) *BindingRepo {
	return &BindingRepo{base{txManager: txManager}}
}

func (r *BindingRepo) CreateBinding(ctx context.Context, b *directory.CompanyDirectory) error {
	q := r.builder().Insert(bindingsTable).
		Columns(bindingCols...).
		Values(b.ID, b.CreatedAt, b.UpdatedAt, b.CompanyID, b.DirectoryID, moduleArg(b.ModuleID))
	if _, err := r.exec(ctx, q); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("company directory", "directory_id", b.DirectoryID.String()).WithCause(err)
		}
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("directory", b.DirectoryID).WithCause(err)
		}
		return fmt.Errorf("insert binding: %w", err)
	}
	return nil
}

func (r *BindingRepo) GetBinding(ctx context.Context, bindingID id.ID) (*directory.CompanyDirectory, error) {
	return r.getOne(ctx, r.selectQuery().Where(squirrel.Eq{"id": bindingID}), bindingID)
}

func (r *BindingRepo) FindBinding(ctx context.Context, companyID, directoryID id.ID, moduleID *id.ID) (*directory.CompanyDirectory, error) {
	return r.getOne(ctx, r.findQuery(companyID, directoryID, moduleID), directoryID)
}

func (r *BindingRepo) findQuery(companyID, directoryID id.ID, moduleID *id.ID) squirrel.SelectBuilder {
	return r.selectQuery().
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.Eq{"directory_id": directoryID}).
		Where(squirrel.Eq{"module_id": moduleArg(moduleID)}).
		Limit(1)
}

func (r *BindingRepo) ListBindings(ctx context.Context, companyID id.ID) ([]*directory.CompanyDirectory, error) {
	return r.list(ctx, r.selectQuery().Where(squirrel.Eq{"company_id": companyID}))
}

func (r *BindingRepo) ListBindingsForDirectory(ctx context.Context, companyID, directoryID id.ID) ([]*directory.CompanyDirectory, error) {
	return r.list(ctx, r.selectQuery().
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.Eq{"directory_id": directoryID}))
}

// DeleteBinding removes the binding row. Records still pointing at it make
// the delete fail on the foreign key.
func (r *BindingRepo) DeleteBinding(ctx context.Context, bindingID id.ID) error {
	tag, err := r.exec(ctx, r.builder().Delete(bindingsTable).Where(squirrel.Eq{"id": bindingID}))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewConflict("binding still has records").
				WithDetail("binding_id", bindingID.String()).
				WithCause(err)
		}
		return fmt.Errorf("delete binding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("company directory", bindingID)
	}
	return nil
}

func (r *BindingRepo) selectQuery() squirrel.SelectBuilder {
	return r.builder().Select(bindingCols...).From(bindingsTable)
}

func (r *BindingRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key id.ID) (*directory.CompanyDirectory, error) {
	var row bindingRow
	if err := r.get(ctx, &row, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("company directory", key)
		}
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return row.toDomain(), nil
}

func (r *BindingRepo) list(ctx context.Context, q squirrel.SelectBuilder) ([]*directory.CompanyDirectory, error) {
	var rows []*bindingRow
	if err := r.selectAll(ctx, &rows, q.OrderBy("created_at ASC", "id ASC")); err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	out := make([]*directory.CompanyDirectory, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// moduleArg turns a nil module into an untyped nil so squirrel renders
// IS NULL instead of dereferencing the pointer.
func moduleArg(m *id.ID) any {
	if m == nil {
		return nil
	}
	return *m
}
