package tenant

import (
	"context"

	"erpdir/internal/core/id"
)

type ctxKey int

const (
	companyKey ctxKey = iota
)

// WithCompanyID stores the acting company in context.
func WithCompanyID(ctx context.Context, companyID id.ID) context.Context {
	return context.WithValue(ctx, companyKey, companyID)
}

// GetCompanyID retrieves the acting company from context.
func GetCompanyID(ctx context.Context) (id.ID, error) {
	v, ok := ctx.Value(companyKey).(id.ID)
	if !ok || id.IsNil(v) {
		return id.Nil(), ErrNoCompanyInContext
	}
	return v, nil
}
