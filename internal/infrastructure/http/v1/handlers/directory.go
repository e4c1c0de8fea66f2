package handlers

import (
	"github.com/gin-gonic/gin"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
	"erpdir/internal/domain/render"
	"erpdir/internal/infrastructure/http/v1/dto"
)

// DirectoryHandler serves directory and field definitions.
type DirectoryHandler struct {
	*BaseHandler
	schema        *directory.SchemaRegistry
	renderers     *render.Registry
	relationDepth int
}

// NewDirectoryHandler creates a directory handler.
func NewDirectoryHandler(base *BaseHandler, schema *directory.SchemaRegistry, renderers *render.Registry, relationDepth int) *DirectoryHandler {
	return &DirectoryHandler{
		BaseHandler:   base,
		schema:        schema,
		renderers:     renderers,
		relationDepth: relationDepth,
	}
}

// List handles GET /directories.
func (h *DirectoryHandler) List(c *gin.Context) {
	var f dto.DirectoryFilter
	if !h.BindQuery(c, &f) {
		return
	}
	q := directory.DirectoryQuery{Search: f.Search}
	for _, t := range f.Types {
		typ, err := directory.ParseType(t)
		if err != nil {
			h.Error(c, err)
			return
		}
		q.Types = append(q.Types, typ)
	}
	for _, raw := range f.IDs {
		v, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid id format").WithDetail("ids", raw))
			return
		}
		q.IDs = append(q.IDs, v)
	}

	dirs, err := h.schema.ListDirectories(c.Request.Context(), q)
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.DirectoryResponse, len(dirs))
	for i, d := range dirs {
		out[i] = dto.FromDirectory(d, h.renderers.Resolve(d).Capability())
	}
	h.OK(c, dto.NewItems(out))
}

// Create handles POST /directories.
func (h *DirectoryHandler) Create(c *gin.Context) {
	var req dto.CreateDirectoryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	typ, err := directory.ParseType(req.Type)
	if err != nil {
		h.Error(c, err)
		return
	}
	d, err := h.schema.DefineDirectory(c.Request.Context(), directory.DefineDirectoryInput{
		Name:     req.Name,
		Icon:     req.Icon,
		Type:     typ,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDirectory(d, h.renderers.Resolve(d).Capability()))
}

// Get handles GET /directories/:id. The response carries the fields and
// the view built by the renderer the directory's capability resolves to.
func (h *DirectoryHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	d, err := h.schema.GetDirectory(ctx, dirID)
	if err != nil {
		h.Error(c, err)
		return
	}
	fields, err := h.schema.ListFields(ctx, dirID)
	if err != nil {
		h.Error(c, err)
		return
	}
	view := h.renderers.Describe(d, fields)
	h.OK(c, dto.DirectoryDetailResponse{
		DirectoryResponse: dto.FromDirectory(d, view.Renderer),
		Fields:            dto.FromFields(fields),
		View:              view,
	})
}

// Update handles PUT /directories/:id.
func (h *DirectoryHandler) Update(c *gin.Context) {
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateDirectoryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	d, err := h.schema.UpdateDirectory(c.Request.Context(), dirID, directory.UpdateDirectoryInput{
		Name:     req.Name,
		Icon:     req.Icon,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDirectory(d, h.renderers.Resolve(d).Capability()))
}

// Delete handles DELETE /directories/:id?force=.
func (h *DirectoryHandler) Delete(c *gin.Context) {
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	if err := h.schema.DeleteDirectory(c.Request.Context(), dirID, force); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Relations handles GET /directories/:id/relations.
func (h *DirectoryHandler) Relations(c *gin.Context) {
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	depth := h.ParseIntQuery(c, "depth", h.relationDepth)
	if depth <= 0 || depth > h.relationDepth {
		depth = h.relationDepth
	}
	rel, err := h.schema.DirectoryRelations(c.Request.Context(), dirID, depth)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rel)
}

// ListFields handles GET /directories/:id/fields.
func (h *DirectoryHandler) ListFields(c *gin.Context) {
	ctx := c.Request.Context()
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.schema.GetDirectory(ctx, dirID); err != nil {
		h.Error(c, err)
		return
	}
	fields, err := h.schema.ListFields(ctx, dirID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(dto.FromFields(fields)))
}

// CreateField handles POST /directories/:id/fields.
func (h *DirectoryHandler) CreateField(c *gin.Context) {
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateFieldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	relationID, ok := h.OptionalID(c, "relationDirectoryId", req.RelationDirectoryID)
	if !ok {
		return
	}
	f, err := h.schema.DefineField(c.Request.Context(), dirID, directory.DefineFieldInput{
		Name:       req.Name,
		Type:       req.Type,
		Required:   req.Required,
		RelationID: relationID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromField(f))
}

// UpdateField handles PUT /directories/:id/fields/:fieldId.
func (h *DirectoryHandler) UpdateField(c *gin.Context) {
	f, ok := h.field(c)
	if !ok {
		return
	}
	var req dto.UpdateFieldRequest
	if !h.BindJSON(c, &req) {
		return
	}
	updated, err := h.schema.UpdateField(c.Request.Context(), f.ID, directory.UpdateFieldInput{
		Name:     req.Name,
		Required: req.Required,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromField(updated))
}

// DeleteField handles DELETE /directories/:id/fields/:fieldId.
func (h *DirectoryHandler) DeleteField(c *gin.Context) {
	f, ok := h.field(c)
	if !ok {
		return
	}
	if err := h.schema.DeleteField(c.Request.Context(), f.ID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// field loads :fieldId and checks it belongs to :id.
func (h *DirectoryHandler) field(c *gin.Context) (*directory.Field, bool) {
	return loadField(c, h.BaseHandler, h.schema)
}

func loadField(c *gin.Context, h *BaseHandler, schema *directory.SchemaRegistry) (*directory.Field, bool) {
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return nil, false
	}
	fieldID, ok := h.ParamID(c, "fieldId")
	if !ok {
		return nil, false
	}
	f, err := schema.GetField(c.Request.Context(), fieldID)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	if f.DirectoryID != dirID {
		h.Error(c, apperror.NewNotFound("field", fieldID))
		return nil, false
	}
	return f, true
}
