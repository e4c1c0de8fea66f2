package middleware

import (
	"github.com/gin-gonic/gin"

	"erpdir/internal/core/apperror"
	appctx "erpdir/internal/core/context"
	"erpdir/internal/core/id"
	"erpdir/internal/core/tenant"
)

const (
	// CompanyQuery narrows a request to a company other than the session's.
	CompanyQuery = "company"
	// CompanyParam is the path form of CompanyQuery.
	CompanyParam = "companyId"
)

// Company resolves the company a request acts on. It is the session
// company unless a path parameter or query narrows it; narrowing to a
// foreign company is reserved to admins. Must run after Auth.
func Company() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			abortUnauthorized(c, "authentication required")
			return
		}

		session, err := id.Parse(user.CompanyID)
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("session has no valid company"))
			c.Abort()
			return
		}

		requested := c.Param(CompanyParam)
		if requested == "" {
			requested = c.Query(CompanyQuery)
		}

		company := session
		if requested != "" {
			company, err = id.Parse(requested)
			if err != nil {
				_ = c.Error(apperror.NewValidation("invalid company id").WithDetail("company", requested))
				c.Abort()
				return
			}
			if company != session && !user.IsAdmin {
				_ = c.Error(apperror.NewForbidden("company is outside the session").
					WithDetail("company", requested))
				c.Abort()
				return
			}
		}

		c.Request = c.Request.WithContext(tenant.WithCompanyID(c.Request.Context(), company))
		c.Next()
	}
}

// CompanyID returns the company resolved by Company.
func CompanyID(c *gin.Context) (id.ID, bool) {
	company, err := tenant.GetCompanyID(c.Request.Context())
	return company, err == nil
}
