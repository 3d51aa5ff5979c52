package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// RequireRoles gates a route on the real actor's roles. Impersonation changes
// attribution, never privileges: an admin acting as a teacher still passes
// admin routes, and a teacher can never borrow admin access through the
// acting-as header.
func RequireRoles(allowed ...models.StaffRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		acting, ok := ActingFrom(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, role := range allowed {
			if acting.HasRole(role) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
