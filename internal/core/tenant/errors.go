package tenant

import "errors"

var (
	// ErrNoCompanyInContext is returned when a request reached the domain without company scope.
	ErrNoCompanyInContext = errors.New("company not found in context")
)
