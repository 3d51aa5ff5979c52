package middleware

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// ContextActingKey is the gin context key storing the acting context.
const ContextActingKey = "actingContext"

// ActingAsHeader names the impersonation request header.
const ActingAsHeader = "X-Acting-As"

type staffDirectory interface {
	FindByUID(ctx context.Context, uid string) (*models.Staff, error)
}

// Actor builds the per-request acting context from the validated claims.
// Admins may impersonate another staff member in their school via the
// X-Acting-As header; the context then carries both identities so audit
// entries attribute the real actor and the effective one.
func Actor(staff staffDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)
		acting := models.ActingAs(claims.UID, claims.SchoolID, claims.Roles)

		if target := c.GetHeader(ActingAsHeader); target != "" && target != claims.UID {
			if !acting.IsAdmin() {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only admins may act as another staff member"))
				c.Abort()
				return
			}
			targetStaff, err := staff.FindByUID(c.Request.Context(), target)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "acting-as staff member not found"))
				} else {
					response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve acting-as staff member"))
				}
				c.Abort()
				return
			}
			if targetStaff.SchoolID != claims.SchoolID {
				response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "acting-as staff member not found"))
				c.Abort()
				return
			}
			acting = acting.Impersonate(targetStaff)
		}

		c.Set(ContextActingKey, acting)
		c.Next()
	}
}

// ActingFrom returns the acting context stored on the request.
func ActingFrom(c *gin.Context) (models.ActingContext, bool) {
	value, exists := c.Get(ContextActingKey)
	if !exists {
		return models.ActingContext{}, false
	}
	acting, ok := value.(models.ActingContext)
	return acting, ok
}
