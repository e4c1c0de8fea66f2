package middleware

import (
	"github.com/gin-gonic/gin"

	"erpdir/internal/core/apperror"
	appctx "erpdir/internal/core/context"
)

const (
	PermDirectoryRead  = "directory:read"
	PermDirectoryWrite = "directory:write"
	PermRecordRead     = "record:read"
	PermRecordWrite    = "record:write"
	PermBindingWrite   = "binding:write"
)

// RequirePermission middleware checks if user has required permission.
// Admins automatically have all permissions.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if !user.HasPermission(permission) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_permission", permission),
			)
			c.Abort()
			return
		}

		c.Next()
	}
}
