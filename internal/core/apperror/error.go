// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All directory errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation           = "VALIDATION_ERROR"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	CodeFieldRequired        = "FIELD_REQUIRED"
	CodeInvalidMetadata      = "INVALID_METADATA"

	// Business rule violations (422)
	CodeBusinessRule         = "BUSINESS_RULE_VIOLATION"
	CodeInvalidReference     = "INVALID_REFERENCE"
	CodeInvalidSelfReference = "INVALID_SELF_REFERENCE"
	CodeRuleViolation        = "RULE_VIOLATION"

	// Authorization errors (401, 403)
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeModuleDisabled = "MODULE_DISABLED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict            = "CONFLICT"
	CodeDuplicate           = "DUPLICATE_ENTRY"
	CodeDuplicateField      = "DUPLICATE_FIELD"
	CodeCascadeDeleteFailed = "CASCADE_DELETE_FAILED"
	CodeDirectoryReferenced = "DIRECTORY_REFERENCED"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field names, ids, rule text)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidReference is returned when a referenced directory does not exist.
func NewInvalidReference(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeInvalidReference,
		Message:    fmt.Sprintf("referenced %s does not exist", entity),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewDuplicateField is returned when a directory already has a field with the name.
func NewDuplicateField(directoryID any, name string) *AppError {
	return &AppError{
		Code:       CodeDuplicateField,
		Message:    fmt.Sprintf("field %q already exists in directory", name),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"directory_id": directoryID, "field": name},
	}
}

// NewTypeMismatch is returned when a raw value does not fit the field type.
func NewTypeMismatch(field, fieldType string, value any) *AppError {
	return &AppError{
		Code:       CodeTypeMismatch,
		Message:    fmt.Sprintf("value for field %q is not a valid %s", field, fieldType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field, "type": fieldType, "value": value},
	}
}

// NewMissingRequiredField lists required fields absent from a record write.
func NewMissingRequiredField(fields []string) *AppError {
	return &AppError{
		Code:       CodeMissingRequiredField,
		Message:    "required fields are missing",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"fields": fields},
	}
}

// NewInvalidSelfReference is returned when a relation field points at the directory being edited.
func NewInvalidSelfReference(fieldID, directoryID any) *AppError {
	return &AppError{
		Code:       CodeInvalidSelfReference,
		Message:    "relation field cannot reference the directory being edited",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"field_id": fieldID, "directory_id": directoryID},
	}
}

// NewCascadeDeleteFailed wraps a failure while removing a binding and its records.
func NewCascadeDeleteFailed(bindingID any, err error) *AppError {
	return &AppError{
		Code:       CodeCascadeDeleteFailed,
		Message:    "failed to remove company directory and its records",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"company_directory_id": bindingID},
		Err:        err,
	}
}

// NewDirectoryReferenced is returned when deleting a directory other directories still point at.
func NewDirectoryReferenced(directoryID any, referrers any) *AppError {
	return &AppError{
		Code:       CodeDirectoryReferenced,
		Message:    "directory is referenced by relation fields of other directories",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"directory_id": directoryID, "referrers": referrers},
	}
}

// NewFieldRequired lists visible dependent fields that still have no selection.
func NewFieldRequired(fields []string) *AppError {
	return &AppError{
		Code:       CodeFieldRequired,
		Message:    "dependent fields require a selection",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"fields": fields},
	}
}

// NewRuleViolation is returned when a field validation rule evaluates to false.
func NewRuleViolation(field, rule, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("value for field %q violates rule", field)
	}
	return &AppError{
		Code:       CodeRuleViolation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"field": field, "rule": rule},
	}
}

// NewInvalidMetadata is returned when a metadata document fails its typed decode.
func NewInvalidMetadata(kind string, err error) *AppError {
	return &AppError{
		Code:       CodeInvalidMetadata,
		Message:    fmt.Sprintf("invalid %s metadata", kind),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"metadata": kind, "reason": errString(err)},
		Err:        err,
	}
}

// NewModuleDisabled is returned when a binding targets a module the company has not licensed.
func NewModuleDisabled(moduleID any) *AppError {
	return &AppError{
		Code:       CodeModuleDisabled,
		Message:    "module is not enabled for company",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"module_id": moduleID},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries the given AppError code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}
