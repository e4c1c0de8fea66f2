package handlers

import (
	"github.com/gin-gonic/gin"

	"erpdir/internal/domain/directory"
	"erpdir/internal/infrastructure/http/v1/dto"
)

// BindingHandler serves company directory bindings.
type BindingHandler struct {
	*BaseHandler
	bindings *directory.BindingService
}

// NewBindingHandler creates a binding handler.
func NewBindingHandler(base *BaseHandler, bindings *directory.BindingService) *BindingHandler {
	return &BindingHandler{BaseHandler: base, bindings: bindings}
}

// Bind handles POST /bindings. Binding twice returns the existing binding.
func (h *BindingHandler) Bind(c *gin.Context) {
	company, ok := h.Company(c)
	if !ok {
		return
	}
	var req dto.BindRequest
	if !h.BindJSON(c, &req) {
		return
	}
	dirID, ok := h.OptionalID(c, "directoryId", &req.DirectoryID)
	if !ok {
		return
	}
	moduleID, ok := h.OptionalID(c, "moduleId", req.ModuleID)
	if !ok {
		return
	}
	b, err := h.bindings.Bind(c.Request.Context(), company, *dirID, moduleID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromBinding(b))
}

// Unbind handles DELETE /bindings/:id, removing the binding with its
// records and values.
func (h *BindingHandler) Unbind(c *gin.Context) {
	company, ok := h.Company(c)
	if !ok {
		return
	}
	bindingID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.bindings.Unbind(c.Request.Context(), company, bindingID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListEnabled handles GET /companies/:companyId/directories.
func (h *BindingHandler) ListEnabled(c *gin.Context) {
	company, ok := h.Company(c)
	if !ok {
		return
	}
	list, err := h.bindings.ListEnabledDirectories(c.Request.Context(), company)
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.BindingResponse, len(list))
	for i, b := range list {
		out[i] = dto.FromBinding(b)
	}
	h.OK(c, dto.NewItems(out))
}
