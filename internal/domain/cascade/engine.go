// Package cascade reveals dependent fields after a parent relation value is
// chosen. The configuration lives on the chosen parent record, so different
// parent values can reveal different chains.
package cascade

import (
	"context"
	"iter"
	"slices"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/pkg/logger"
)

// FieldSource loads field definitions.
type FieldSource interface {
	GetField(ctx context.Context, fieldID id.ID) (*directory.Field, error)
}

// RecordSource loads records.
type RecordSource interface {
	GetRecord(ctx context.Context, recordID id.ID) (*directory.Record, error)
}

// OptionSource resolves the options of a dependent field.
type OptionSource interface {
	ResolveOptions(ctx context.Context, q directory.OptionsQuery) (iter.Seq2[directory.Option, error], error)
	ResolveLabel(ctx context.Context, directoryID id.ID, stored string) (directory.ResolvedRef, error)
}

// Selections maps dependent field name to the chosen value.
type Selections map[string]string

// Clone copies the selections.
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Engine evaluates cascading configs. It holds no per-form state.
type Engine struct {
	fields   FieldSource
	records  RecordSource
	options  OptionSource
	maxDepth int
}

// NewEngine creates an Engine. maxDepth bounds dependsOn chains.
func NewEngine(fields FieldSource, records RecordSource, options OptionSource, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = 16
	}
	return &Engine{fields: fields, records: records, options: options, maxDepth: maxDepth}
}

// Disabled is the config used when a parent has none.
func Disabled() directory.CascadingConfig {
	return directory.CascadingConfig{Enabled: false, DependentFields: []directory.DependentField{}}
}

// LoadConfig returns the cascading config of the record selected as the
// value of a relation field. Unknown or config-less records yield a
// disabled config, not an error.
func (e *Engine) LoadConfig(ctx context.Context, fieldID id.ID, value string) (directory.CascadingConfig, error) {
	f, err := e.fields.GetField(ctx, fieldID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return Disabled(), apperror.NewNotFound("field", fieldID)
		}
		return Disabled(), err
	}
	if !f.Type.IsRelation() {
		return Disabled(), apperror.NewValidation("cascading config requires a relation field").
			WithDetail("field", f.Name)
	}
	if value == "" {
		return Disabled(), nil
	}
	recordID, err := id.Parse(value)
	if err != nil {
		return Disabled(), nil
	}
	rec, err := e.records.GetRecord(ctx, recordID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return Disabled(), nil
		}
		if apperror.HasCode(err, apperror.CodeInvalidMetadata) {
			logger.Warn(ctx, "ignoring invalid cascading config", "record_id", recordID, "error", err)
			return Disabled(), nil
		}
		return Disabled(), err
	}
	cfg := rec.Meta.CascadingConfig
	if cfg == nil || !cfg.Enabled || len(cfg.DependentFields) == 0 {
		return Disabled(), nil
	}
	return *cfg, nil
}

// depths returns each reachable field's distance from the parent. Fields in
// a loop or pointing at unknown names are absent.
func (e *Engine) depths(cfg directory.CascadingConfig) map[string]int {
	byName := make(map[string]directory.DependentField, len(cfg.DependentFields))
	for _, f := range cfg.DependentFields {
		byName[f.FieldName] = f
	}
	out := make(map[string]int, len(byName))
	for _, f := range cfg.DependentFields {
		depth, cur := 0, f
		seen := map[string]bool{}
		for cur.DependsOn != nil && depth < e.maxDepth {
			if seen[cur.FieldName] {
				depth = e.maxDepth
				break
			}
			seen[cur.FieldName] = true
			next, ok := byName[*cur.DependsOn]
			if !ok {
				depth = e.maxDepth
				break
			}
			cur = next
			depth++
		}
		if depth < e.maxDepth {
			out[f.FieldName] = depth
		}
	}
	return out
}

// Prune drops selections whose field is unknown or no longer visible,
// repeating until nothing changes, so clearing a field also clears every
// field that transitively depends on it.
func (e *Engine) Prune(cfg directory.CascadingConfig, sel Selections) Selections {
	if !cfg.Enabled {
		return Selections{}
	}
	depths := e.depths(cfg)
	out := make(Selections, len(sel))
	for k, v := range sel {
		if _, ok := depths[k]; ok && v != "" {
			out[k] = v
		}
	}
	for changed := true; changed; {
		changed = false
		for _, f := range cfg.DependentFields {
			if _, picked := out[f.FieldName]; !picked {
				continue
			}
			if f.DependsOn != nil {
				if _, ok := out[*f.DependsOn]; !ok {
					delete(out, f.FieldName)
					changed = true
				}
			}
		}
	}
	return out
}

// Visible returns the dependent fields to show, in config order. A field is
// visible when it depends on nothing or its prerequisite has a selection.
// sel must already be pruned.
func (e *Engine) Visible(cfg directory.CascadingConfig, sel Selections) []directory.DependentField {
	if !cfg.Enabled {
		return nil
	}
	depths := e.depths(cfg)
	var out []directory.DependentField
	for _, f := range cfg.DependentFields {
		if _, ok := depths[f.FieldName]; !ok {
			continue
		}
		if f.DependsOn == nil {
			out = append(out, f)
			continue
		}
		if _, ok := sel[*f.DependsOn]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Dependents returns the names of fields that transitively depend on name.
func (e *Engine) Dependents(cfg directory.CascadingConfig, name string) []string {
	var out []string
	frontier := []string{name}
	seen := map[string]bool{name: true}
	for len(frontier) > 0 && len(out) < len(cfg.DependentFields) {
		var next []string
		for _, parent := range frontier {
			for _, f := range cfg.DependentFields {
				if f.DependsOn != nil && *f.DependsOn == parent && !seen[f.FieldName] {
					seen[f.FieldName] = true
					out = append(out, f.FieldName)
					next = append(next, f.FieldName)
				}
			}
		}
		frontier = next
	}
	return out
}

// Validate reports visible required fields without a selection.
func (e *Engine) Validate(cfg directory.CascadingConfig, sel Selections) error {
	var missing []string
	for _, f := range e.Visible(cfg, sel) {
		if f.Required && sel[f.FieldName] == "" {
			missing = append(missing, f.FieldName)
		}
	}
	if len(missing) > 0 {
		return apperror.NewFieldRequired(missing)
	}
	return nil
}

// OptionsRequest asks for the options of one dependent field.
type OptionsRequest struct {
	CompanyID  id.ID
	Config     directory.CascadingConfig
	Selections Selections
	Field      string
	Search     string
	Limit      int
}

// Options resolves the candidates of a visible dependent field. Fields with
// a prerequisite only offer records whose parentValue equals the
// prerequisite's selection (as stored, or as its label).
func (e *Engine) Options(ctx context.Context, req OptionsRequest) ([]directory.Option, error) {
	sel := e.Prune(req.Config, req.Selections)
	var field *directory.DependentField
	for _, f := range e.Visible(req.Config, sel) {
		if f.FieldName == req.Field {
			field = &f
			break
		}
	}
	if field == nil {
		return nil, apperror.NewValidation("dependent field is not visible").WithDetail("field", req.Field)
	}

	q := directory.OptionsQuery{
		DirectoryID: field.DirectoryID,
		CompanyID:   req.CompanyID,
		Search:      req.Search,
		Limit:       req.Limit,
	}
	if field.DependsOn != nil {
		parent, _ := req.Config.Field(*field.DependsOn)
		chosen := sel[parent.FieldName]
		q.ParentValues = []string{chosen}
		if ref, err := e.options.ResolveLabel(ctx, parent.DirectoryID, chosen); err == nil && !ref.Unresolved {
			if !slices.Contains(q.ParentValues, ref.Label) {
				q.ParentValues = append(q.ParentValues, ref.Label)
			}
		}
	}

	seq, err := e.options.ResolveOptions(ctx, q)
	if err != nil {
		return nil, err
	}
	out := []directory.Option{}
	for opt, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}
