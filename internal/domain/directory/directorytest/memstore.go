// Package directorytest provides an in-memory implementation of the
// directory repositories for tests.
package directorytest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/filter"
)

type state struct {
	directories map[id.ID]*directory.Directory
	fields      map[id.ID]*directory.Field
	bindings    map[id.ID]*directory.CompanyDirectory
	records     map[id.ID]*directory.Record
}

func (s *state) clone() *state {
	c := &state{
		directories: make(map[id.ID]*directory.Directory, len(s.directories)),
		fields:      make(map[id.ID]*directory.Field, len(s.fields)),
		bindings:    make(map[id.ID]*directory.CompanyDirectory, len(s.bindings)),
		records:     make(map[id.ID]*directory.Record, len(s.records)),
	}
	for k, v := range s.directories {
		cp := *v
		c.directories[k] = &cp
	}
	for k, v := range s.fields {
		c.fields[k] = copyField(v)
	}
	for k, v := range s.bindings {
		cp := *v
		c.bindings[k] = &cp
	}
	for k, v := range s.records {
		c.records[k] = copyRecord(v)
	}
	return c
}

// Store is an in-memory directory database. RunInTransaction snapshots the
// state and restores it when fn fails.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	st     *state
	failOn map[string]error
}

type txKey struct{}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		st: &state{
			directories: make(map[id.ID]*directory.Directory),
			fields:      make(map[id.ID]*directory.Field),
			bindings:    make(map[id.ID]*directory.CompanyDirectory),
			records:     make(map[id.ID]*directory.Record),
		},
		failOn: make(map[string]error),
	}
}

// FailOn makes the named repository method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[method] = err
}

func (s *Store) fail(method string) error {
	return s.failOn[method]
}

// RunInTransaction implements tx.Manager. Nested calls join the outer one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}
	return err
}

// --- directories ---

func (s *Store) CreateDirectory(_ context.Context, d *directory.Directory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateDirectory"); err != nil {
		return err
	}
	cp := *d
	s.st.directories[d.ID] = &cp
	return nil
}

func (s *Store) UpdateDirectory(_ context.Context, d *directory.Directory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.directories[d.ID]; !ok {
		return apperror.NewNotFound("directory", d.ID)
	}
	cp := *d
	s.st.directories[d.ID] = &cp
	return nil
}

func (s *Store) GetDirectory(_ context.Context, directoryID id.ID) (*directory.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.st.directories[directoryID]
	if !ok {
		return nil, apperror.NewNotFound("directory", directoryID)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDirectories(_ context.Context, q directory.DirectoryQuery) ([]*directory.Directory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*directory.Directory
	for _, d := range s.st.directories {
		if q.Search != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(q.Search)) {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, d.Type) {
			continue
		}
		if len(q.IDs) > 0 && !slices.Contains(q.IDs, d.ID) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *directory.Directory) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) DirectoryExists(_ context.Context, directoryID id.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.directories[directoryID]
	return ok, nil
}

func (s *Store) DeleteDirectory(_ context.Context, directoryID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteDirectory"); err != nil {
		return err
	}
	delete(s.st.directories, directoryID)
	for fid, f := range s.st.fields {
		if f.DirectoryID == directoryID {
			s.deleteFieldLocked(fid)
			continue
		}
		if t, ok := f.RelationTarget(); ok && t == directoryID {
			f.Type.Target = nil
		}
	}
	for bid, b := range s.st.bindings {
		if b.DirectoryID == directoryID {
			s.deleteBindingDataLocked(bid)
			delete(s.st.bindings, bid)
		}
	}
	return nil
}

// --- fields ---

func (s *Store) CreateField(_ context.Context, f *directory.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateField"); err != nil {
		return err
	}
	s.st.fields[f.ID] = copyField(f)
	return nil
}

func (s *Store) UpdateField(_ context.Context, f *directory.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.st.fields[f.ID]
	if !ok {
		return apperror.NewNotFound("field", f.ID)
	}
	if old.Name != f.Name {
		for _, r := range s.st.records {
			for i := range r.Values {
				if r.Values[i].FieldID != nil && *r.Values[i].FieldID == f.ID {
					r.Values[i].FieldName = f.Name
				}
			}
		}
	}
	s.st.fields[f.ID] = copyField(f)
	return nil
}

func (s *Store) GetField(_ context.Context, fieldID id.ID) (*directory.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.st.fields[fieldID]
	if !ok {
		return nil, apperror.NewNotFound("field", fieldID)
	}
	return copyField(f), nil
}

func (s *Store) ListFields(_ context.Context, directoryID id.ID) ([]*directory.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListFields"); err != nil {
		return nil, err
	}
	var out []*directory.Field
	for _, f := range s.st.fields {
		if f.DirectoryID == directoryID {
			out = append(out, copyField(f))
		}
	}
	directory.SortFields(out)
	return out, nil
}

func (s *Store) ListRelationFields(_ context.Context) ([]*directory.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*directory.Field
	for _, f := range s.st.fields {
		if f.Type.IsRelation() {
			out = append(out, copyField(f))
		}
	}
	return out, nil
}

func (s *Store) FieldNameExists(_ context.Context, directoryID id.ID, name string, exceptID *id.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.st.fields {
		if f.DirectoryID == directoryID && f.Name == name && (exceptID == nil || *exceptID != f.ID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteField(_ context.Context, fieldID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.fields[fieldID]; !ok {
		return apperror.NewNotFound("field", fieldID)
	}
	s.deleteFieldLocked(fieldID)
	return nil
}

func (s *Store) deleteFieldLocked(fieldID id.ID) {
	delete(s.st.fields, fieldID)
	for _, r := range s.st.records {
		for i := range r.Values {
			if r.Values[i].FieldID != nil && *r.Values[i].FieldID == fieldID {
				r.Values[i].FieldID = nil
			}
		}
	}
}

// --- bindings ---

func (s *Store) CreateBinding(_ context.Context, b *directory.CompanyDirectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.bindings {
		if existing.CompanyID == b.CompanyID && existing.DirectoryID == b.DirectoryID && id.Equal(existing.ModuleID, b.ModuleID) {
			return apperror.NewDuplicate("company directory", "directory_id", b.DirectoryID.String())
		}
	}
	cp := *b
	s.st.bindings[b.ID] = &cp
	return nil
}

func (s *Store) GetBinding(_ context.Context, bindingID id.ID) (*directory.CompanyDirectory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bindings[bindingID]
	if !ok {
		return nil, apperror.NewNotFound("company directory", bindingID)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) FindBinding(_ context.Context, companyID, directoryID id.ID, moduleID *id.ID) (*directory.CompanyDirectory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.st.bindings {
		if b.CompanyID == companyID && b.DirectoryID == directoryID && id.Equal(b.ModuleID, moduleID) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("company directory", directoryID)
}

func (s *Store) ListBindings(_ context.Context, companyID id.ID) ([]*directory.CompanyDirectory, error) {
	return s.listBindings(func(b *directory.CompanyDirectory) bool { return b.CompanyID == companyID }), nil
}

func (s *Store) ListBindingsForDirectory(_ context.Context, companyID, directoryID id.ID) ([]*directory.CompanyDirectory, error) {
	return s.listBindings(func(b *directory.CompanyDirectory) bool {
		return b.CompanyID == companyID && b.DirectoryID == directoryID
	}), nil
}

func (s *Store) listBindings(keep func(*directory.CompanyDirectory) bool) []*directory.CompanyDirectory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*directory.CompanyDirectory
	for _, b := range s.st.bindings {
		if keep(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *directory.CompanyDirectory) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (s *Store) DeleteBinding(_ context.Context, bindingID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteBinding"); err != nil {
		return err
	}
	for _, r := range s.st.records {
		if r.CompanyDirectoryID == bindingID {
			return fmt.Errorf("binding %s still has records", bindingID)
		}
	}
	delete(s.st.bindings, bindingID)
	return nil
}

// --- records ---

func (s *Store) CreateRecord(_ context.Context, r *directory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateRecord"); err != nil {
		return err
	}
	if _, ok := s.st.bindings[r.CompanyDirectoryID]; !ok {
		return fmt.Errorf("binding %s does not exist", r.CompanyDirectoryID)
	}
	s.st.records[r.ID] = copyRecord(r)
	return nil
}

func (s *Store) UpdateRecordMeta(_ context.Context, recordID id.ID, meta directory.RecordMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.records[recordID]
	if !ok {
		return apperror.NewNotFound("record", recordID)
	}
	r.Meta = meta
	return nil
}

func (s *Store) GetRecord(_ context.Context, recordID id.ID) (*directory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.records[recordID]
	if !ok {
		return nil, apperror.NewNotFound("record", recordID)
	}
	return copyRecord(r), nil
}

func (s *Store) GetRecords(_ context.Context, recordIDs []id.ID) ([]*directory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*directory.Record
	for _, rid := range recordIDs {
		if r, ok := s.st.records[rid]; ok {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (s *Store) ListRecords(_ context.Context, q directory.RecordQuery) ([]*directory.Record, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListRecords"); err != nil {
		return nil, 0, err
	}
	var matched []*directory.Record
	for _, r := range s.st.records {
		if !slices.Contains(q.BindingIDs, r.CompanyDirectoryID) {
			continue
		}
		if len(q.ParentValues) > 0 && !slices.Contains(q.ParentValues, r.Meta.ParentValue) {
			continue
		}
		if q.Search != "" && !matchSearch(r, q) {
			continue
		}
		if !matchFilters(r, q.Filters) {
			continue
		}
		matched = append(matched, r)
	}
	slices.SortFunc(matched, func(a, b *directory.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := int64(len(matched))
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]*directory.Record, len(matched))
	for i, r := range matched {
		out[i] = copyRecord(r)
	}
	return out, total, nil
}

func (s *Store) UpsertValues(_ context.Context, recordID id.ID, values []directory.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertValues"); err != nil {
		return err
	}
	r, ok := s.st.records[recordID]
	if !ok {
		return apperror.NewNotFound("record", recordID)
	}
	for _, v := range values {
		replaced := false
		for i := range r.Values {
			if r.Values[i].FieldID != nil && v.FieldID != nil && *r.Values[i].FieldID == *v.FieldID {
				r.Values[i].Stored = copyString(v.Stored)
				r.Values[i].FieldName = v.FieldName
				replaced = true
				break
			}
		}
		if !replaced {
			r.Values = append(r.Values, copyValue(v))
		}
	}
	return nil
}

func (s *Store) DeleteRecord(_ context.Context, recordID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.records[recordID]; !ok {
		return apperror.NewNotFound("record", recordID)
	}
	delete(s.st.records, recordID)
	return nil
}

func (s *Store) DeleteValuesByBinding(_ context.Context, bindingID id.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteValuesByBinding"); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range s.st.records {
		if r.CompanyDirectoryID == bindingID {
			n += int64(len(r.Values))
			r.Values = nil
		}
	}
	return n, nil
}

func (s *Store) DeleteRecordsByBinding(_ context.Context, bindingID id.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteRecordsByBinding"); err != nil {
		return 0, err
	}
	var n int64
	for rid, r := range s.st.records {
		if r.CompanyDirectoryID == bindingID {
			delete(s.st.records, rid)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteBindingDataLocked(bindingID id.ID) {
	for rid, r := range s.st.records {
		if r.CompanyDirectoryID == bindingID {
			delete(s.st.records, rid)
		}
	}
}

// RecordCount returns the number of records stored for a binding.
func (s *Store) RecordCount(bindingID id.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.st.records {
		if r.CompanyDirectoryID == bindingID {
			n++
		}
	}
	return n
}

func matchSearch(r *directory.Record, q directory.RecordQuery) bool {
	needle := strings.ToLower(q.Search)
	if q.SearchByID {
		return strings.Contains(strings.ToLower(r.ID.String()), needle)
	}
	present := false
	for _, v := range r.Values {
		if v.Stored == nil {
			continue
		}
		if q.SearchFieldID != nil && (v.FieldID == nil || *v.FieldID != *q.SearchFieldID) {
			continue
		}
		if *v.Stored != "" {
			present = true
		}
		if strings.Contains(strings.ToLower(*v.Stored), needle) {
			return true
		}
	}
	return q.SearchFieldID != nil && !present
}

func matchFilters(r *directory.Record, items []filter.Item) bool {
	for _, item := range items {
		var (
			value string
			has   bool
		)
		if item.Field == filter.ParentValueField {
			value, has = r.Meta.ParentValue, r.Meta.ParentValue != ""
		} else {
			for _, v := range r.Values {
				if v.FieldName == item.Field && v.Stored != nil {
					value, has = *v.Stored, true
				}
			}
		}
		s, _ := item.Value.(string)
		switch item.Operator {
		case filter.Equal:
			if !has || value != s {
				return false
			}
		case filter.NotEqual:
			if has && value == s {
				return false
			}
		case filter.Contains:
			if !has || !strings.Contains(strings.ToLower(value), strings.ToLower(s)) {
				return false
			}
		case filter.NotContains:
			if has && strings.Contains(strings.ToLower(value), strings.ToLower(s)) {
				return false
			}
		case filter.InList, filter.NotInList:
			list, _ := item.Strings()
			in := has && slices.Contains(list, value)
			if in != (item.Operator == filter.InList) {
				return false
			}
		case filter.IsNull:
			if has {
				return false
			}
		case filter.IsNotNull:
			if !has {
				return false
			}
		}
	}
	return true
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyValue(v directory.Value) directory.Value {
	out := v
	if v.FieldID != nil {
		fid := *v.FieldID
		out.FieldID = &fid
	}
	out.Stored = copyString(v.Stored)
	return out
}

func copyField(f *directory.Field) *directory.Field {
	cp := *f
	if f.Type.Target != nil {
		t := *f.Type.Target
		cp.Type.Target = &t
	}
	return &cp
}

func copyRecord(r *directory.Record) *directory.Record {
	cp := *r
	cp.Values = make([]directory.Value, len(r.Values))
	for i, v := range r.Values {
		cp.Values[i] = copyValue(v)
	}
	if r.Meta.CascadingConfig != nil {
		cfg := *r.Meta.CascadingConfig
		cfg.DependentFields = slices.Clone(r.Meta.CascadingConfig.DependentFields)
		cp.Meta.CascadingConfig = &cfg
	}
	return &cp
}
