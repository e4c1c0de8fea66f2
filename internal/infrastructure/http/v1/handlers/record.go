package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"erpdir/internal/core/id"
	"erpdir/internal/domain"
	"erpdir/internal/domain/directory"
	"erpdir/internal/infrastructure/http/v1/dto"
	"erpdir/internal/infrastructure/storage/postgres"
	"erpdir/pkg/logger"
)

// RecordHistory reads the audit trail of a record.
type RecordHistory interface {
	History(ctx context.Context, recordID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// RecordHandler serves directory records.
type RecordHandler struct {
	*BaseHandler
	store    *directory.EntityStore
	bindings *directory.BindingService
	schema   *directory.SchemaRegistry
	resolver *directory.Resolver
	history  RecordHistory
}

// RecordHandlerConfig configures a RecordHandler. History may be nil.
type RecordHandlerConfig struct {
	Store    *directory.EntityStore
	Bindings *directory.BindingService
	Schema   *directory.SchemaRegistry
	Resolver *directory.Resolver
	History  RecordHistory
}

// NewRecordHandler creates a record handler.
func NewRecordHandler(base *BaseHandler, cfg RecordHandlerConfig) *RecordHandler {
	return &RecordHandler{
		BaseHandler: base,
		store:       cfg.Store,
		bindings:    cfg.Bindings,
		schema:      cfg.Schema,
		resolver:    cfg.Resolver,
		history:     cfg.History,
	}
}

// Data handles GET /directories/:id/data - records of every enabled
// binding of the directory for the company.
func (h *RecordHandler) Data(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var q dto.RecordFilter
	if !h.BindQuery(c, &q) {
		return
	}
	q.Defaults()
	items, ok := h.ParseFilter(c, q.Filter)
	if !ok {
		return
	}

	f := domain.DefaultListFilter()
	f.Search = q.Search
	f.AdvancedFilters = items
	f.Limit = q.PageSize
	f.Offset = q.Offset()

	res, err := h.store.ListDirectoryData(ctx, company, dirID, f)
	if err != nil {
		h.Error(c, err)
		return
	}
	labels := h.labeler(ctx, dirID)
	out := make([]dto.RecordResponse, len(res.Items))
	for i, v := range res.Items {
		out[i] = dto.FromRecordView(v, labels(v))
	}
	h.OK(c, dto.GenericListResponse[dto.RecordResponse]{
		Data:       out,
		Pagination: dto.NewPaginationResponse(q.Page, q.PageSize, res.TotalCount),
	})
}

// Create handles POST /directories/:id/records.
func (h *RecordHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	dirID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RecordRequest
	if !h.BindJSON(c, &req) {
		return
	}
	moduleID, ok := h.OptionalID(c, "moduleId", req.ModuleID)
	if !ok {
		return
	}

	binding, err := h.bindings.FindBinding(ctx, company, dirID, moduleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	values, err := h.store.ResolveFieldKeys(ctx, company, binding.ID, req.Values)
	if err != nil {
		h.Error(c, err)
		return
	}
	view, err := h.store.CreateRecord(ctx, company, binding.ID, directory.RecordInput{
		Values:   values,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromRecordView(view, h.labeler(ctx, dirID)(view)))
}

// Get handles GET /records/:id.
func (h *RecordHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	binding, err := h.store.RecordBinding(ctx, company, recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	view, err := h.store.GetRecord(ctx, company, recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRecordView(view, h.labeler(ctx, binding.DirectoryID)(view)))
}

// Update handles PUT /records/:id. Only supplied values change.
func (h *RecordHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.RecordRequest
	if !h.BindJSON(c, &req) {
		return
	}
	binding, err := h.store.RecordBinding(ctx, company, recordID)
	if err != nil {
		h.Error(c, err)
		return
	}
	values, err := h.store.ResolveFieldKeys(ctx, company, binding.ID, req.Values)
	if err != nil {
		h.Error(c, err)
		return
	}
	view, err := h.store.UpdateRecord(ctx, company, recordID, directory.RecordInput{
		Values:   values,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromRecordView(view, h.labeler(ctx, binding.DirectoryID)(view)))
}

// Delete handles DELETE /records/:id.
func (h *RecordHandler) Delete(c *gin.Context) {
	company, ok := h.Company(c)
	if !ok {
		return
	}
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteRecord(c.Request.Context(), company, recordID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// History handles GET /records/:id/history.
func (h *RecordHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	company, ok := h.Company(c)
	if !ok {
		return
	}
	recordID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.RecordBinding(ctx, company, recordID); err != nil {
		h.Error(c, err)
		return
	}
	if h.history == nil {
		h.OK(c, dto.NewItems([]postgres.AuditEntry{}))
		return
	}
	entries, err := h.history.History(ctx, recordID, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(entries))
}

// labeler returns a function resolving the relation values of a record
// view to display labels. Failures degrade to no label.
func (h *RecordHandler) labeler(ctx context.Context, directoryID id.ID) func(*directory.RecordView) map[string]directory.ResolvedRef {
	none := func(*directory.RecordView) map[string]directory.ResolvedRef { return nil }
	if h.resolver == nil || h.schema == nil {
		return none
	}
	fields, err := h.schema.ListFields(ctx, directoryID)
	if err != nil {
		logger.Warn(ctx, "cannot load fields for labels", "directory_id", directoryID, "error", err)
		return none
	}
	targets := make(map[id.ID]id.ID)
	for _, f := range fields {
		if t, ok := f.RelationTarget(); ok {
			targets[f.ID] = t
		}
	}
	if len(targets) == 0 {
		return none
	}
	return func(v *directory.RecordView) map[string]directory.ResolvedRef {
		out := make(map[string]directory.ResolvedRef)
		for _, fv := range v.Values {
			if fv.FieldID == nil || fv.Raw == "" {
				continue
			}
			target, ok := targets[*fv.FieldID]
			if !ok {
				continue
			}
			ref, err := h.resolver.ResolveLabel(ctx, target, fv.Raw)
			if err != nil {
				logger.Warn(ctx, "label resolution failed", "field", fv.FieldName, "error", err)
				continue
			}
			out[fv.FieldName] = ref
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
}
