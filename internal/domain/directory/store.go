package directory

import (
	"context"
	"fmt"
	"slices"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/entity"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tx"
	"erpdir/internal/domain"
	"erpdir/pkg/logger"
)

// RecordChange is passed to record lifecycle hooks.
// Changes maps field name to {"old": ..., "new": ...} stored strings.
type RecordChange struct {
	Record  *Record
	Action  string
	Changes map[string]any
}

// EntityStore stores records and their per-field values.
type EntityStore struct {
	records   RecordRepository
	fields    FieldRepository
	bindings  *BindingService
	txManager tx.Manager
	rules     *RuleSet
	hooks     *domain.HookRegistry[*RecordChange]
}

// EntityStoreConfig configures the store.
type EntityStoreConfig struct {
	Records   RecordRepository
	Fields    FieldRepository
	Bindings  *BindingService
	TxManager tx.Manager
	Rules     *RuleSet
}

// NewEntityStore creates an entity store.
func NewEntityStore(cfg EntityStoreConfig) *EntityStore {
	return &EntityStore{
		records:   cfg.Records,
		fields:    cfg.Fields,
		bindings:  cfg.Bindings,
		txManager: cfg.TxManager,
		rules:     cfg.Rules,
		hooks:     domain.NewHookRegistry[*RecordChange](),
	}
}

// Hooks returns the hook registry. Hooks run inside the write transaction.
func (s *EntityStore) Hooks() *domain.HookRegistry[*RecordChange] {
	return s.hooks
}

// AuditHook adapts an AuditLog to a record hook.
func AuditHook(log AuditLog) domain.Hook[*RecordChange] {
	return func(ctx context.Context, c *RecordChange) error {
		return log.LogRecordChange(ctx, c.Record.ID, c.Action, c.Changes)
	}
}

// RecordInput carries values keyed by field id. On update, a nil Metadata
// leaves record metadata unchanged.
type RecordInput struct {
	Values   map[id.ID]any
	Metadata entity.Attributes
}

// CreateRecord validates and stores a record with all its values in one
// transaction. Missing optional fields take their metadata default.
func (s *EntityStore) CreateRecord(ctx context.Context, companyID, bindingID id.ID, in RecordInput) (*RecordView, error) {
	binding, err := s.bindings.GetBinding(ctx, companyID, bindingID)
	if err != nil {
		return nil, err
	}
	fields, err := s.listFields(ctx, binding.DirectoryID)
	if err != nil {
		return nil, err
	}
	meta, err := DecodeRecordMeta(in.Metadata)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		BaseEntity:         entity.NewBaseEntity(),
		CompanyDirectoryID: binding.ID,
		Meta:               meta,
	}
	values, err := s.encodeValues(fields, rec.ID, in.Values, nil)
	if err != nil {
		return nil, err
	}
	rec.Values = values

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.records.CreateRecord(ctx, rec); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return s.hooks.Run(ctx, domain.AfterCreate, &RecordChange{
			Record:  rec,
			Action:  AuditCreate,
			Changes: diffValues(nil, values),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "record created", "record_id", rec.ID, "binding_id", bindingID, "values", len(values))
	return BuildView(rec, fields), nil
}

// UpdateRecord upserts only the supplied values. Values of fields not
// mentioned are left untouched. A nil raw value clears the field.
func (s *EntityStore) UpdateRecord(ctx context.Context, companyID, recordID id.ID, in RecordInput) (*RecordView, error) {
	var view *RecordView
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, binding, err := s.loadRecord(ctx, companyID, recordID)
		if err != nil {
			return err
		}
		fields, err := s.listFields(ctx, binding.DirectoryID)
		if err != nil {
			return err
		}

		values, err := s.encodeValues(fields, rec.ID, in.Values, rec)
		if err != nil {
			return err
		}
		if len(values) > 0 {
			if err := s.records.UpsertValues(ctx, rec.ID, values); err != nil {
				return fmt.Errorf("upsert values: %w", err)
			}
		}
		if in.Metadata != nil {
			meta, err := DecodeRecordMeta(in.Metadata)
			if err != nil {
				return err
			}
			if err := s.records.UpdateRecordMeta(ctx, rec.ID, meta); err != nil {
				return fmt.Errorf("update record metadata: %w", err)
			}
		}

		changes := diffValues(rec.Values, values)
		updated, err := s.records.GetRecord(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("reload record: %w", err)
		}
		if err := s.hooks.Run(ctx, domain.AfterUpdate, &RecordChange{
			Record:  updated,
			Action:  AuditUpdate,
			Changes: changes,
		}); err != nil {
			return err
		}
		view = BuildView(updated, fields)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GetRecord returns a record with values joined to current fields.
func (s *EntityStore) GetRecord(ctx context.Context, companyID, recordID id.ID) (*RecordView, error) {
	rec, binding, err := s.loadRecord(ctx, companyID, recordID)
	if err != nil {
		return nil, err
	}
	fields, err := s.listFields(ctx, binding.DirectoryID)
	if err != nil {
		return nil, err
	}
	return BuildView(rec, fields), nil
}

// ListRecords lists the records of one binding. Search matches any value.
func (s *EntityStore) ListRecords(ctx context.Context, companyID, bindingID id.ID, f domain.ListFilter) (domain.ListResult[*RecordView], error) {
	binding, err := s.bindings.GetBinding(ctx, companyID, bindingID)
	if err != nil {
		return domain.ListResult[*RecordView]{}, err
	}
	return s.list(ctx, binding.DirectoryID, []id.ID{binding.ID}, f)
}

// ListDirectoryData lists records of a directory across all of the
// company's enabled bindings of it.
func (s *EntityStore) ListDirectoryData(ctx context.Context, companyID, directoryID id.ID, f domain.ListFilter) (domain.ListResult[*RecordView], error) {
	bindings, err := s.bindings.EnabledBindingsForDirectory(ctx, companyID, directoryID)
	if err != nil {
		return domain.ListResult[*RecordView]{}, err
	}
	if len(bindings) == 0 {
		return domain.ListResult[*RecordView]{Items: []*RecordView{}, Limit: f.Limit, Offset: f.Offset}, nil
	}
	ids := make([]id.ID, len(bindings))
	for i, b := range bindings {
		ids[i] = b.ID
	}
	return s.list(ctx, directoryID, ids, f)
}

func (s *EntityStore) list(ctx context.Context, directoryID id.ID, bindingIDs []id.ID, f domain.ListFilter) (domain.ListResult[*RecordView], error) {
	for _, item := range f.AdvancedFilters {
		if err := item.Validate(); err != nil {
			return domain.ListResult[*RecordView]{}, apperror.NewValidation(err.Error())
		}
	}
	fields, err := s.listFields(ctx, directoryID)
	if err != nil {
		return domain.ListResult[*RecordView]{}, err
	}
	recs, total, err := s.records.ListRecords(ctx, RecordQuery{
		BindingIDs: bindingIDs,
		Search:     f.Search,
		Filters:    f.AdvancedFilters,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
	if err != nil {
		return domain.ListResult[*RecordView]{}, fmt.Errorf("list records: %w", err)
	}
	items := make([]*RecordView, len(recs))
	for i, r := range recs {
		items[i] = BuildView(r, fields)
	}
	return domain.ListResult[*RecordView]{Items: items, TotalCount: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// DeleteRecord removes a record and its values.
func (s *EntityStore) DeleteRecord(ctx context.Context, companyID, recordID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, _, err := s.loadRecord(ctx, companyID, recordID)
		if err != nil {
			return err
		}
		if err := s.hooks.Run(ctx, domain.BeforeDelete, &RecordChange{
			Record:  rec,
			Action:  AuditDelete,
			Changes: diffValues(rec.Values, deletedValues(rec.Values)),
		}); err != nil {
			return err
		}
		if err := s.records.DeleteRecord(ctx, recordID); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
}

// ResolveFieldKeys maps request keys (field id or field name) to field ids.
func (s *EntityStore) ResolveFieldKeys(ctx context.Context, companyID, bindingID id.ID, raw map[string]any) (map[id.ID]any, error) {
	binding, err := s.bindings.GetBinding(ctx, companyID, bindingID)
	if err != nil {
		return nil, err
	}
	fields, err := s.listFields(ctx, binding.DirectoryID)
	if err != nil {
		return nil, err
	}
	return ResolveFieldKeys(fields, raw)
}

// RecordBinding returns the binding a company's record belongs to.
func (s *EntityStore) RecordBinding(ctx context.Context, companyID, recordID id.ID) (*CompanyDirectory, error) {
	_, b, err := s.loadRecord(ctx, companyID, recordID)
	return b, err
}

// ResolveFieldKeys maps keys that are either field ids or field names to ids.
func ResolveFieldKeys(fields []*Field, raw map[string]any) (map[id.ID]any, error) {
	byName := make(map[string]*Field, len(fields))
	byID := make(map[id.ID]*Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
		byID[f.ID] = f
	}
	out := make(map[id.ID]any, len(raw))
	for key, v := range raw {
		if fid, err := id.Parse(key); err == nil {
			if _, ok := byID[fid]; ok {
				out[fid] = v
				continue
			}
		}
		f, ok := byName[key]
		if !ok {
			return nil, apperror.NewValidation("unknown field").WithDetail("field", key)
		}
		out[f.ID] = v
	}
	return out, nil
}

func (s *EntityStore) loadRecord(ctx context.Context, companyID, recordID id.ID) (*Record, *CompanyDirectory, error) {
	rec, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, nil, normalizeGetErr(err, "record", recordID)
	}
	binding, err := s.bindings.GetBinding(ctx, companyID, rec.CompanyDirectoryID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound("record", recordID)
		}
		return nil, nil, err
	}
	return rec, binding, nil
}

func (s *EntityStore) listFields(ctx context.Context, directoryID id.ID) ([]*Field, error) {
	fields, err := s.fields.ListFields(ctx, directoryID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	SortFields(fields)
	return fields, nil
}

// encodeValues validates raw input against field types. existing is nil on
// create; then defaults are applied and every required field must be present.
func (s *EntityStore) encodeValues(fields []*Field, recordID id.ID, raw map[id.ID]any, existing *Record) ([]Value, error) {
	byID := make(map[id.ID]*Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
	}
	for fid := range raw {
		if _, ok := byID[fid]; !ok {
			return nil, apperror.NewValidation("unknown field").WithDetail("field_id", fid)
		}
	}

	var (
		out     []Value
		missing []string
	)
	decoded := make(map[string]any, len(fields))
	for _, f := range fields {
		v, supplied := raw[f.ID]
		if !supplied && existing == nil && f.Meta.DefaultValue != nil {
			v, supplied = f.Meta.DefaultValue, true
		}
		if !supplied {
			if existing == nil && f.Required {
				missing = append(missing, f.Name)
			}
			if existing != nil {
				if old, ok := existing.valueByField(f.ID); ok && old.Stored != nil {
					if d, err := f.Type.Decode(*old.Stored); err == nil {
						decoded[f.Name] = d
					}
				}
			}
			continue
		}

		fid := f.ID
		val := Value{ID: id.New(), RecordID: recordID, FieldID: &fid, FieldName: f.Name}
		if v == nil || v == "" {
			if f.Required {
				missing = append(missing, f.Name)
				continue
			}
			if v == "" {
				empty := ""
				val.Stored = &empty
			}
			out = append(out, val)
			continue
		}

		stored, err := f.Type.Encode(v)
		if err != nil {
			return nil, apperror.NewTypeMismatch(f.Name, string(f.Type.Kind), v)
		}
		val.Stored = &stored
		if d, err := f.Type.Decode(stored); err == nil {
			decoded[f.Name] = d
		}
		out = append(out, val)
	}
	if len(missing) > 0 {
		return nil, apperror.NewMissingRequiredField(missing)
	}

	for _, val := range out {
		f := byID[*val.FieldID]
		if f.Meta.Rule == "" || s.rules == nil {
			continue
		}
		value, ok := decoded[f.Name]
		if !ok {
			continue
		}
		passed, err := s.rules.Eval(f.Meta.Rule, value, decoded)
		if err != nil {
			return nil, apperror.NewRuleViolation(f.Name, f.Meta.Rule, f.Meta.RuleMessage).WithCause(err)
		}
		if !passed {
			return nil, apperror.NewRuleViolation(f.Name, f.Meta.Rule, f.Meta.RuleMessage)
		}
	}
	return out, nil
}

// BuildView joins stored values to the current field list.
//
// Values are matched by field id first. Values whose field is gone are
// matched by their name snapshot, then values with neither id nor name are
// matched by position against the remaining fields. Anything left is kept
// as an orphan with its raw text.
func BuildView(rec *Record, fields []*Field) *RecordView {
	view := &RecordView{
		ID:                 rec.ID,
		CompanyDirectoryID: rec.CompanyDirectoryID,
		Meta:               rec.Meta,
	}

	byID := make(map[id.ID]*Field, len(fields))
	byName := make(map[string]*Field, len(fields))
	for _, f := range fields {
		byID[f.ID] = f
		byName[f.Name] = f
	}

	matched := make(map[id.ID]bool, len(fields))
	assigned := make([]*Field, len(rec.Values))
	for i, v := range rec.Values {
		if v.FieldID == nil {
			continue
		}
		if f, ok := byID[*v.FieldID]; ok && !matched[f.ID] {
			assigned[i] = f
			matched[f.ID] = true
		}
	}
	for i, v := range rec.Values {
		if assigned[i] != nil || v.FieldName == "" {
			continue
		}
		if f, ok := byName[v.FieldName]; ok && !matched[f.ID] {
			assigned[i] = f
			matched[f.ID] = true
		}
	}
	var free []*Field
	for _, f := range fields {
		if !matched[f.ID] {
			free = append(free, f)
		}
	}
	for i, v := range rec.Values {
		if assigned[i] != nil || v.FieldName != "" || (v.FieldID != nil && byID[*v.FieldID] != nil) || len(free) == 0 {
			continue
		}
		assigned[i], free = free[0], free[1:]
	}

	index := make(map[id.ID]int, len(fields))
	for i, f := range fields {
		index[f.ID] = i
	}
	for i, v := range rec.Values {
		raw := ""
		if v.Stored != nil {
			raw = *v.Stored
		}
		f := assigned[i]
		if f == nil {
			view.Values = append(view.Values, FieldValue{FieldName: v.FieldName, Raw: raw, Value: raw, Orphan: true})
			continue
		}
		fid := f.ID
		fv := FieldValue{FieldID: &fid, FieldName: f.Name, Type: f.Type.Kind, Raw: raw}
		if v.Stored != nil {
			if d, err := f.Type.Decode(raw); err == nil {
				fv.Value = d
			} else {
				fv.Value = raw
			}
		}
		view.Values = append(view.Values, fv)
	}

	slices.SortStableFunc(view.Values, func(a, b FieldValue) int {
		ia, ib := len(fields), len(fields)
		if a.FieldID != nil {
			ia = index[*a.FieldID]
		}
		if b.FieldID != nil {
			ib = index[*b.FieldID]
		}
		return ia - ib
	})
	return view
}

func storedOf(v Value) any {
	if v.Stored == nil {
		return nil
	}
	return *v.Stored
}

// diffValues describes value changes keyed by field name.
func diffValues(before, after []Value) map[string]any {
	old := make(map[string]Value, len(before))
	for _, v := range before {
		old[v.FieldName] = v
	}
	changes := make(map[string]any, len(after))
	for _, v := range after {
		prev, had := old[v.FieldName]
		if had && storedOf(prev) == storedOf(v) {
			continue
		}
		change := map[string]any{"new": storedOf(v)}
		if had {
			change["old"] = storedOf(prev)
		}
		changes[v.FieldName] = change
	}
	return changes
}

func deletedValues(values []Value) []Value {
	out := make([]Value, len(values))
	for i, v := range values {
		v.Stored = nil
		out[i] = v
	}
	return out
}
