package handlers

import (
	"context"
	"iter"

	"github.com/gin-gonic/gin"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/cascade"
	"erpdir/internal/domain/directory"
	"erpdir/internal/infrastructure/http/v1/dto"
)

// OptionsHandler serves relation options and cascading configs.
type OptionsHandler struct {
	*BaseHandler
	schema   *directory.SchemaRegistry
	resolver *directory.Resolver
	engine   *cascade.Engine
	maxLimit int
}

// NewOptionsHandler creates an options handler. maxLimit caps the limit
// query parameter.
func NewOptionsHandler(base *BaseHandler, schema *directory.SchemaRegistry, resolver *directory.Resolver, engine *cascade.Engine, maxLimit int) *OptionsHandler {
	if maxLimit <= 0 {
		maxLimit = 500
	}
	return &OptionsHandler{
		BaseHandler: base,
		schema:      schema,
		resolver:    resolver,
		engine:      engine,
		maxLimit:    maxLimit,
	}
}

// DirectoryOptions handles GET /directories/:id/options.
func (h *OptionsHandler) DirectoryOptions(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	seq, err := h.resolver.ResolveOptions(ctx, directory.OptionsQuery{
		DirectoryID:  dirID,
		CompanyID:    company,
		Search:       c.Query("search"),
		ParentValues: c.QueryArray("parentValue"),
		Limit:        h.limit(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.respondOptions(c, seq)
}

// FieldOptions handles GET /directories/:id/fields/:fieldId/options.
// editing names the directory whose form is open; a relation back to it
// is refused.
func (h *OptionsHandler) FieldOptions(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	f, ok := loadField(c, h.BaseHandler, h.schema)
	if !ok {
		return
	}
	editingRaw := c.Query("editing")
	editing, ok := h.OptionalID(c, "editing", &editingRaw)
	if !ok {
		return
	}
	seq, err := h.resolver.ResolveField(ctx, directory.FieldOptionsQuery{
		FieldID:            f.ID,
		CompanyID:          company,
		EditingDirectoryID: editing,
		Search:             c.Query("search"),
		ParentValues:       c.QueryArray("parentValue"),
		Limit:              h.limit(c),
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.respondOptions(c, seq)
}

// CascadingConfig handles GET /directories/:id/fields/:fieldId/cascading-config.
func (h *OptionsHandler) CascadingConfig(c *gin.Context) {
	f, ok := loadField(c, h.BaseHandler, h.schema)
	if !ok {
		return
	}
	cfg, err := h.engine.LoadConfig(c.Request.Context(), f.ID, c.Query("value"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cfg)
}

// Visible handles POST /cascade/visible: which dependent fields the
// selections reveal, which selections survive and which are missing.
func (h *OptionsHandler) Visible(c *gin.Context) {
	var req dto.CascadeVisibleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cfg, sel, ok := h.evaluate(c, req)
	if !ok {
		return
	}

	missing := []string{}
	if err := h.engine.Validate(cfg, sel); err != nil {
		appErr, isApp := apperror.AsAppError(err)
		if !isApp || appErr.Code != apperror.CodeFieldRequired {
			h.Error(c, err)
			return
		}
		if fields, ok := appErr.Details["fields"].([]string); ok {
			missing = fields
		}
	}
	visible := h.engine.Visible(cfg, sel)
	if visible == nil {
		visible = []directory.DependentField{}
	}
	h.OK(c, dto.CascadeVisibleResponse{
		Config:     cfg,
		Visible:    visible,
		Selections: sel,
		Missing:    missing,
	})
}

// Options handles POST /cascade/options for one visible dependent field.
func (h *OptionsHandler) Options(c *gin.Context) {
	company, ok := h.Company(c)
	if !ok {
		return
	}
	var req dto.CascadeOptionsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cfg, sel, ok := h.evaluate(c, req.CascadeVisibleRequest)
	if !ok {
		return
	}
	opts, err := h.engine.Options(c.Request.Context(), cascade.OptionsRequest{
		CompanyID:  company,
		Config:     cfg,
		Selections: sel,
		Field:      req.Field,
		Search:     req.Search,
		Limit:      req.Limit,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(opts))
}

func (h *OptionsHandler) evaluate(c *gin.Context, req dto.CascadeVisibleRequest) (directory.CascadingConfig, cascade.Selections, bool) {
	fieldID, err := id.Parse(req.FieldID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", "fieldId"))
		return directory.CascadingConfig{}, nil, false
	}
	cfg, err := h.engine.LoadConfig(c.Request.Context(), fieldID, req.Value)
	if err != nil {
		h.Error(c, err)
		return directory.CascadingConfig{}, nil, false
	}
	return cfg, h.engine.Prune(cfg, cascade.Selections(req.Selections)), true
}

func (h *OptionsHandler) limit(c *gin.Context) int {
	n := h.ParseIntQuery(c, "limit", 0)
	if n < 0 {
		return 0
	}
	return min(n, h.maxLimit)
}

func (h *OptionsHandler) respondOptions(c *gin.Context, seq iter.Seq2[directory.Option, error]) {
	opts, err := collect(c.Request.Context(), seq)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(opts))
}

func collect(ctx context.Context, seq iter.Seq2[directory.Option, error]) ([]directory.Option, error) {
	out := []directory.Option{}
	for opt, err := range seq {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}
