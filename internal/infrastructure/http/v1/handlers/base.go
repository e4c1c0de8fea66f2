// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/filter"
	"erpdir/internal/infrastructure/http/v1/middleware"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParamID parses a path parameter as an id.
func (h *BaseHandler) ParamID(c *gin.Context, name string) (id.ID, bool) {
	v, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("param", name))
		return id.Nil(), false
	}
	return v, true
}

// OptionalID parses an optional id, failing the request on bad input.
func (h *BaseHandler) OptionalID(c *gin.Context, name string, raw *string) (*id.ID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	v, err := id.Parse(*raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", name))
		return nil, false
	}
	return &v, true
}

// Company returns the company the request acts on.
func (h *BaseHandler) Company(c *gin.Context) (id.ID, bool) {
	company, ok := middleware.CompanyID(c)
	if !ok {
		h.Error(c, apperror.NewUnauthorized("company is not resolved"))
		return id.Nil(), false
	}
	return company, true
}

// ParseFilter decodes the JSON filter query parameter.
func (h *BaseHandler) ParseFilter(c *gin.Context, raw string) ([]filter.Item, bool) {
	if raw == "" {
		return nil, true
	}
	var items []filter.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		h.Error(c, apperror.NewValidation("invalid filter format (json expected)"))
		return nil, false
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			h.Error(c, apperror.NewValidation(err.Error()).WithDetail("field", item.Field))
			return nil, false
		}
	}
	return items, true
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
