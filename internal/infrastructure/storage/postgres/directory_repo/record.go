package directory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/filter"
	"erpdir/internal/infrastructure/storage/postgres"
	"erpdir/pkg/logger"
)

const (
	recordsTable = "directory_records"
	valuesTable  = "directory_values"
)

type recordRow struct {
	entity.BaseEntity
	CompanyDirectoryID id.ID             `db:"company_directory_id"`
	Metadata           entity.Attributes `db:"metadata"`
}

type valueRow struct {
	entity.BaseEntity
	RecordID  id.ID   `db:"record_id"`
	FieldID   *id.ID  `db:"field_id"`
	FieldName string  `db:"field_name"`
	Value     *string `db:"value"`
}

var (
	recordCols = postgres.ExtractDBColumns[recordRow]()
	valueCols  = postgres.ExtractDBColumns[valueRow]()
)

func (v *valueRow) toDomain() directory.Value {
	return directory.Value{
		ID:        v.ID,
		RecordID:  v.RecordID,
		FieldID:   v.FieldID,
		FieldName: v.FieldName,
		Stored:    v.Value,
	}
}

// RecordRepo implements directory.RecordRepository.
type RecordRepo struct {
	base
}

var _ directory.RecordRepository = (*RecordRepo)(nil)

func NewRecordRepo(txManager *postgres.TxManager) *RecordRepo {
	return &RecordRepo{base{txManager: txManager}}
}

// CreateRecord inserts the record row and bulk-loads its values with COPY.
func (r *RecordRepo) CreateRecord(ctx context.Context, rec *directory.Record) error {
	attrs, err := rec.Meta.Attributes()
	if err != nil {
		return fmt.Errorf("encode record metadata: %w", err)
	}
	q := r.builder().Insert(recordsTable).
		Columns(recordCols...).
		Values(rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.CompanyDirectoryID, attrs)
	if _, err := r.exec(ctx, q); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("company directory", rec.CompanyDirectoryID).WithCause(err)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	if len(rec.Values) == 0 {
		return nil
	}

	rows := make([][]any, len(rec.Values))
	for i, v := range rec.Values {
		rows[i] = []any{v.ID, rec.CreatedAt, rec.CreatedAt, rec.ID, v.FieldID, v.FieldName, v.Stored}
	}
	if _, err := r.txManager.CopyFrom(ctx, pgx.Identifier{valuesTable}, valueCols, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy record values: %w", err)
	}
	return nil
}

func (r *RecordRepo) UpdateRecordMeta(ctx context.Context, recordID id.ID, meta directory.RecordMeta) error {
	attrs, err := meta.Attributes()
	if err != nil {
		return fmt.Errorf("encode record metadata: %w", err)
	}
	q := r.builder().Update(recordsTable).
		Set("metadata", attrs).
		Set("updated_at", now()).
		Where(squirrel.Eq{"id": recordID})
	tag, err := r.exec(ctx, q)
	if err != nil {
		return fmt.Errorf("update record metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("record", recordID)
	}
	return nil
}

// GetRecord returns one record. Unlike list reads, metadata that fails to
// decode is reported to the caller.
func (r *RecordRepo) GetRecord(ctx context.Context, recordID id.ID) (*directory.Record, error) {
	var row recordRow
	q := r.builder().Select(recordCols...).From(recordsTable).Where(squirrel.Eq{"id": recordID})
	if err := r.get(ctx, &row, q); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("record", recordID)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	meta, err := directory.DecodeRecordMeta(row.Metadata)
	if err != nil {
		return nil, err
	}
	values, err := r.loadValues(ctx, []id.ID{recordID})
	if err != nil {
		return nil, err
	}
	return &directory.Record{
		BaseEntity:         row.BaseEntity,
		CompanyDirectoryID: row.CompanyDirectoryID,
		Meta:               meta,
		Values:             values[recordID],
	}, nil
}

func (r *RecordRepo) GetRecords(ctx context.Context, recordIDs []id.ID) ([]*directory.Record, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	var rows []*recordRow
	q := r.builder().Select(recordCols...).From(recordsTable).
		Where(squirrel.Eq{"id": recordIDs}).
		OrderBy("created_at ASC", "id ASC")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	return r.withValues(ctx, rows)
}

func (r *RecordRepo) ListRecords(ctx context.Context, rq directory.RecordQuery) ([]*directory.Record, int64, error) {
	if len(rq.BindingIDs) == 0 {
		return nil, 0, nil
	}
	q, err := r.listQuery(rq)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	countSQL, countArgs, err := r.builder().Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	if err := r.querier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	q = q.OrderBy("r.created_at ASC", "r.id ASC")
	if rq.Limit > 0 {
		q = q.Limit(uint64(rq.Limit))
	}
	if rq.Offset > 0 {
		q = q.Offset(uint64(rq.Offset))
	}
	var rows []*recordRow
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	records, err := r.withValues(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// listQuery builds the unordered, unpaged selection for rq.
func (r *RecordRepo) listQuery(rq directory.RecordQuery) (squirrel.SelectBuilder, error) {
	q := r.builder().Select(qualify("r", recordCols)...).
		From(recordsTable + " r").
		Where(squirrel.Eq{"r.company_directory_id": rq.BindingIDs})

	if len(rq.ParentValues) > 0 {
		q = q.Where(squirrel.Eq{parentValueExpr: rq.ParentValues})
	}

	if rq.Search != "" {
		pattern := containsPattern(rq.Search)
		switch {
		case rq.SearchByID:
			q = q.Where(squirrel.ILike{"r.id::text": pattern})
		case rq.SearchFieldID != nil:
			own := squirrel.Eq{"v.field_id": *rq.SearchFieldID}
			q = q.Where(squirrel.Or{
				valueExists(own, squirrel.ILike{"v.value": pattern}),
				valueNotExists(own, squirrel.NotEq{"v.value": ""}),
			})
		default:
			q = q.Where(valueExists(squirrel.ILike{"v.value": pattern}))
		}
	}

	for _, item := range rq.Filters {
		cond, err := filterCond(item)
		if err != nil {
			return q, apperror.NewValidation(err.Error()).WithDetail("field", item.Field)
		}
		q = q.Where(cond)
	}
	return q, nil
}

const parentValueExpr = "r.metadata->>'parentValue'"

// valueExists renders EXISTS over the record's values with the given conditions.
func valueExists(conds ...squirrel.Sqlizer) squirrel.Sqlizer {
	sub := squirrel.Select("1").From(valuesTable + " v").Where("v.record_id = r.id")
	for _, c := range conds {
		sub = sub.Where(c)
	}
	return squirrel.Expr("EXISTS (?)", sub)
}

func valueNotExists(conds ...squirrel.Sqlizer) squirrel.Sqlizer {
	return squirrel.Expr("NOT ?", valueExists(conds...))
}

// filterCond translates one filter item. Field filters match values by
// their name snapshot, so they keep working for deleted fields.
func filterCond(item filter.Item) (squirrel.Sqlizer, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	s, _ := item.Value.(string)
	var list []string
	if item.Operator == filter.InList || item.Operator == filter.NotInList {
		list, _ = item.Strings()
	}

	if item.Field == filter.ParentValueField {
		col := "NULLIF(" + parentValueExpr + ", '')"
		switch item.Operator {
		case filter.Equal:
			return squirrel.Eq{col: s}, nil
		case filter.NotEqual:
			return squirrel.Or{squirrel.Eq{col: nil}, squirrel.NotEq{col: s}}, nil
		case filter.Contains:
			return squirrel.ILike{col: containsPattern(s)}, nil
		case filter.NotContains:
			return squirrel.Or{squirrel.Eq{col: nil}, squirrel.NotILike{col: containsPattern(s)}}, nil
		case filter.InList:
			return squirrel.Eq{col: list}, nil
		case filter.NotInList:
			return squirrel.Or{squirrel.Eq{col: nil}, squirrel.NotEq{col: list}}, nil
		case filter.IsNull:
			return squirrel.Eq{col: nil}, nil
		case filter.IsNotNull:
			return squirrel.NotEq{col: nil}, nil
		}
		return nil, fmt.Errorf("unsupported filter operator %q", item.Operator)
	}

	named := squirrel.Eq{"v.field_name": item.Field}
	present := squirrel.NotEq{"v.value": nil}
	switch item.Operator {
	case filter.Equal:
		return valueExists(named, squirrel.Eq{"v.value": s}), nil
	case filter.NotEqual:
		return valueNotExists(named, squirrel.Eq{"v.value": s}), nil
	case filter.Contains:
		return valueExists(named, squirrel.ILike{"v.value": containsPattern(s)}), nil
	case filter.NotContains:
		return valueNotExists(named, squirrel.ILike{"v.value": containsPattern(s)}), nil
	case filter.InList:
		return valueExists(named, squirrel.Eq{"v.value": list}), nil
	case filter.NotInList:
		return valueNotExists(named, squirrel.Eq{"v.value": list}), nil
	case filter.IsNull:
		return valueNotExists(named, present), nil
	case filter.IsNotNull:
		return valueExists(named, present), nil
	}
	return nil, fmt.Errorf("unsupported filter operator %q", item.Operator)
}

// UpsertValues writes values keyed by (record, field) in one statement.
func (r *RecordRepo) UpsertValues(ctx context.Context, recordID id.ID, values []directory.Value) error {
	if len(values) == 0 {
		return nil
	}
	ts := now()
	if _, err := r.exec(ctx, upsertValuesQuery(r.builder(), recordID, values, ts)); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return apperror.NewNotFound("record", recordID).WithCause(err)
		}
		return fmt.Errorf("upsert values: %w", err)
	}
	touch := r.builder().Update(recordsTable).Set("updated_at", ts).Where(squirrel.Eq{"id": recordID})
	if _, err := r.exec(ctx, touch); err != nil {
		return fmt.Errorf("touch record: %w", err)
	}
	return nil
}

func upsertValuesQuery(b squirrel.StatementBuilderType, recordID id.ID, values []directory.Value, ts time.Time) squirrel.InsertBuilder {
	q := b.Insert(valuesTable).Columns(valueCols...)
	for _, v := range values {
		vid := v.ID
		if id.IsNil(vid) {
			vid = id.New()
		}
		q = q.Values(vid, ts, ts, recordID, v.FieldID, v.FieldName, v.Stored)
	}
	return q.Suffix(`ON CONFLICT (record_id, field_id) WHERE field_id IS NOT NULL DO UPDATE SET
		value = EXCLUDED.value, field_name = EXCLUDED.field_name, updated_at = EXCLUDED.updated_at`)
}

func (r *RecordRepo) DeleteRecord(ctx context.Context, recordID id.ID) error {
	tag, err := r.exec(ctx, r.builder().Delete(recordsTable).Where(squirrel.Eq{"id": recordID}))
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("record", recordID)
	}
	return nil
}

func (r *RecordRepo) DeleteValuesByBinding(ctx context.Context, bindingID id.ID) (int64, error) {
	records := r.builder().Select("id").From(recordsTable).Where(squirrel.Eq{"company_directory_id": bindingID})
	tag, err := r.exec(ctx, r.builder().Delete(valuesTable).Where(squirrel.Expr("record_id IN (?)", records)))
	if err != nil {
		return 0, fmt.Errorf("delete values by binding: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RecordRepo) DeleteRecordsByBinding(ctx context.Context, bindingID id.ID) (int64, error) {
	tag, err := r.exec(ctx, r.builder().Delete(recordsTable).Where(squirrel.Eq{"company_directory_id": bindingID}))
	if err != nil {
		return 0, fmt.Errorf("delete records by binding: %w", err)
	}
	return tag.RowsAffected(), nil
}

// withValues decodes rows and attaches their values. Records whose metadata
// fails to decode are kept with empty metadata so one bad row cannot hide a
// whole listing.
func (r *RecordRepo) withValues(ctx context.Context, rows []*recordRow) ([]*directory.Record, error) {
	ids := make([]id.ID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	values, err := r.loadValues(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*directory.Record, len(rows))
	for i, row := range rows {
		meta, err := directory.DecodeRecordMeta(row.Metadata)
		if err != nil {
			logger.Warn(ctx, "record metadata ignored", "record_id", row.ID, "error", err)
			meta = directory.RecordMeta{}
		}
		out[i] = &directory.Record{
			BaseEntity:         row.BaseEntity,
			CompanyDirectoryID: row.CompanyDirectoryID,
			Meta:               meta,
			Values:             values[row.ID],
		}
	}
	return out, nil
}

func (r *RecordRepo) loadValues(ctx context.Context, recordIDs []id.ID) (map[id.ID][]directory.Value, error) {
	out := make(map[id.ID][]directory.Value, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}
	var rows []*valueRow
	q := r.builder().Select(valueCols...).From(valuesTable).
		Where(squirrel.Eq{"record_id": recordIDs}).
		OrderBy("created_at ASC", "id ASC")
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	for _, row := range rows {
		out[row.RecordID] = append(out[row.RecordID], row.toDomain())
	}
	return out, nil
}
