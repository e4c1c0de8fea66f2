package directory

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
)

// Option is one selectable target record of a relation.
type Option struct {
	ID          id.ID  `json:"id"`
	Label       string `json:"label"`
	ParentValue string `json:"parentValue,omitempty"`
	HasCascade  bool   `json:"hasCascade,omitempty"`
}

// ResolvedRef is a stored relation value rendered for display. Unresolved
// is set when the target record no longer exists.
type ResolvedRef struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// LabelField applies the label precedence: the directory's
// selectDisplayField when it names an existing field, then the field marked
// isVisibleOnTable, then the first defined field. Nil means labels fall back
// to the record id. fields must be in display order.
func LabelField(dir *Directory, fields []*Field) *Field {
	if name := dir.Meta.SelectDisplayField; name != "" {
		for _, f := range fields {
			if f.Name == name {
				return f
			}
		}
	}
	for _, f := range fields {
		if f.Meta.IsVisibleOnTable {
			return f
		}
	}
	var first *Field
	for _, f := range fields {
		if first == nil || f.CreatedAt.Before(first.CreatedAt) ||
			(f.CreatedAt.Equal(first.CreatedAt) && f.ID.String() < first.ID.String()) {
			first = f
		}
	}
	return first
}

// Resolver turns relation targets into labelled options.
type Resolver struct {
	directories DirectoryRepository
	fields      FieldRepository
	records     RecordRepository
	bindings    *BindingService
	pageSize    int
	maxDepth    int
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Directories DirectoryRepository
	Fields      FieldRepository
	Records     RecordRepository
	Bindings    *BindingService

	// PageSize caps an unfiltered page and sizes lazy fetches.
	PageSize int
	// MaxDepth bounds label resolution through relation display fields.
	MaxDepth int
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 8
	}
	return &Resolver{
		directories: cfg.Directories,
		fields:      cfg.Fields,
		records:     cfg.Records,
		bindings:    cfg.Bindings,
		pageSize:    cfg.PageSize,
		maxDepth:    cfg.MaxDepth,
	}
}

// OptionsQuery selects candidate records of a directory for a company.
type OptionsQuery struct {
	DirectoryID id.ID
	CompanyID   id.ID

	// Search is a case-insensitive substring of the label.
	Search string

	// ParentValues keeps only records whose parentValue metadata matches.
	ParentValues []string

	// Limit caps the sequence; zero means one page.
	Limit int
}

// ResolveOptions returns a lazy sequence of options. Records are fetched a
// page at a time as the sequence is consumed. A directory the company has
// not bound yields an empty sequence.
func (r *Resolver) ResolveOptions(ctx context.Context, q OptionsQuery) (iter.Seq2[Option, error], error) {
	dir, err := r.directories.GetDirectory(ctx, q.DirectoryID)
	if err != nil {
		return nil, normalizeGetErr(err, "directory", q.DirectoryID)
	}
	bindings, err := r.bindings.EnabledBindingsForDirectory(ctx, q.CompanyID, q.DirectoryID)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return func(func(Option, error) bool) {}, nil
	}
	src, err := r.labelField(ctx, dir)
	if err != nil {
		return nil, err
	}

	bindingIDs := make([]id.ID, len(bindings))
	for i, b := range bindings {
		bindingIDs[i] = b.ID
	}
	limit := q.Limit
	if limit <= 0 {
		limit = r.pageSize
	}

	base := RecordQuery{
		BindingIDs:   bindingIDs,
		ParentValues: q.ParentValues,
	}
	// Relation labels live in another directory, so only scalar and
	// record id labels can be narrowed in storage. The final match is
	// always made on the rendered label.
	if q.Search != "" {
		switch {
		case src == nil:
			base.Search = q.Search
			base.SearchByID = true
		case !src.Type.IsRelation():
			fid := src.ID
			base.Search = q.Search
			base.SearchFieldID = &fid
		}
	}
	needle := strings.ToLower(q.Search)

	return func(yield func(Option, error) bool) {
		labels := newLabeler(r)
		labels.sources[dir.ID] = src
		produced, offset := 0, 0
		for produced < limit {
			page := base
			page.Limit = min(r.pageSize, limit-produced)
			if needle != "" {
				page.Limit = r.pageSize
			}
			page.Offset = offset
			recs, _, err := r.records.ListRecords(ctx, page)
			if err != nil {
				yield(Option{}, fmt.Errorf("list options: %w", err))
				return
			}
			for _, rec := range recs {
				label := labels.label(ctx, dir.ID, rec, 0, map[id.ID]bool{dir.ID: true})
				if needle != "" && !strings.Contains(strings.ToLower(label), needle) {
					continue
				}
				opt := Option{
					ID:          rec.ID,
					Label:       label,
					ParentValue: rec.Meta.ParentValue,
					HasCascade:  rec.Meta.CascadingConfig != nil && rec.Meta.CascadingConfig.Enabled,
				}
				if !yield(opt, nil) {
					return
				}
				produced++
				if produced == limit {
					return
				}
			}
			if len(recs) < page.Limit {
				return
			}
			offset += len(recs)
		}
	}, nil
}

// FieldOptionsQuery resolves options for a relation field.
type FieldOptionsQuery struct {
	FieldID   id.ID
	CompanyID id.ID

	// EditingDirectoryID is the directory whose form is open; it defaults
	// to the field's own directory.
	EditingDirectoryID *id.ID

	Search       string
	ParentValues []string
	Limit        int
}

// ResolveField resolves options for a relation field. A field whose
// target is the directory being edited is refused with InvalidSelfReference.
func (r *Resolver) ResolveField(ctx context.Context, q FieldOptionsQuery) (iter.Seq2[Option, error], error) {
	f, err := r.fields.GetField(ctx, q.FieldID)
	if err != nil {
		return nil, normalizeGetErr(err, "field", q.FieldID)
	}
	target, err := r.CheckRelationField(f, q.EditingDirectoryID)
	if err != nil {
		return nil, err
	}
	return r.ResolveOptions(ctx, OptionsQuery{
		DirectoryID:  target,
		CompanyID:    q.CompanyID,
		Search:       q.Search,
		ParentValues: q.ParentValues,
		Limit:        q.Limit,
	})
}

// CheckRelationField returns the relation target or the reason it cannot
// be resolved.
func (r *Resolver) CheckRelationField(f *Field, editing *id.ID) (id.ID, error) {
	if !f.Type.IsRelation() {
		return id.Nil(), apperror.NewValidation("field is not a relation").WithDetail("field", f.Name)
	}
	target, ok := f.RelationTarget()
	if !ok {
		return id.Nil(), apperror.NewInvalidReference("directory", nil).WithDetail("field", f.Name)
	}
	current := f.DirectoryID
	if editing != nil {
		current = *editing
	}
	if target == current {
		return id.Nil(), apperror.NewInvalidSelfReference(f.ID, current)
	}
	return target, nil
}

// ResolveLabel renders a stored relation value. Missing targets are
// reported as unresolved, never as an error.
func (r *Resolver) ResolveLabel(ctx context.Context, directoryID id.ID, stored string) (ResolvedRef, error) {
	ref := ResolvedRef{ID: stored, Label: stored}
	recordID, err := id.Parse(stored)
	if err != nil {
		ref.Unresolved = true
		return ref, nil
	}
	rec, err := r.records.GetRecord(ctx, recordID)
	if err != nil {
		if apperror.IsNotFound(err) {
			ref.Unresolved = true
			return ref, nil
		}
		return ref, err
	}
	labels := newLabeler(r)
	ref.Label = labels.label(ctx, directoryID, rec, 0, map[id.ID]bool{directoryID: true})
	return ref, nil
}

func (r *Resolver) labelField(ctx context.Context, dir *Directory) (*Field, error) {
	fields, err := r.fields.ListFields(ctx, dir.ID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	SortFields(fields)
	return LabelField(dir, fields), nil
}

// labeler renders labels, following relation display fields through other
// directories up to maxDepth without revisiting a directory.
type labeler struct {
	r       *Resolver
	sources map[id.ID]*Field
}

func newLabeler(r *Resolver) *labeler {
	return &labeler{r: r, sources: make(map[id.ID]*Field)}
}

func (l *labeler) source(ctx context.Context, dirID id.ID) (*Field, bool) {
	if src, ok := l.sources[dirID]; ok {
		return src, true
	}
	dir, err := l.r.directories.GetDirectory(ctx, dirID)
	if err != nil {
		return nil, false
	}
	src, err := l.r.labelField(ctx, dir)
	if err != nil {
		return nil, false
	}
	l.sources[dirID] = src
	return src, true
}

func (l *labeler) label(ctx context.Context, dirID id.ID, rec *Record, depth int, visited map[id.ID]bool) string {
	fallback := rec.ID.String()
	src, ok := l.source(ctx, dirID)
	if !ok || src == nil {
		return fallback
	}
	v, ok := rec.valueByField(src.ID)
	if !ok {
		// field re-created under the same name
		for _, cand := range rec.Values {
			if cand.FieldID == nil && cand.FieldName == src.Name {
				v, ok = cand, true
				break
			}
		}
	}
	if !ok || v.Stored == nil || *v.Stored == "" {
		return fallback
	}
	raw := *v.Stored

	target, isRelation := src.RelationTarget()
	if !isRelation || depth+1 >= l.r.maxDepth || visited[target] {
		return raw
	}
	targetID, err := id.Parse(raw)
	if err != nil {
		return raw
	}
	next, err := l.r.records.GetRecord(ctx, targetID)
	if err != nil {
		return raw
	}
	visited[target] = true
	defer delete(visited, target)
	return l.label(ctx, target, next, depth+1, visited)
}
