package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/middleware"
	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actingFromContext aborts with 401 when the acting context is missing, so
// handlers behind the auth chain can rely on a populated identity.
func actingFromContext(c *gin.Context) (models.ActingContext, bool) {
	acting, ok := middleware.ActingFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.ActingContext{}, false
	}
	return acting, true
}

// schoolIDParam cross-checks the path school against the token school. Staff
// tokens are scoped to exactly one school; a mismatch reads as not-found
// rather than forbidden to avoid confirming foreign IDs.
func schoolIDParam(c *gin.Context, acting models.ActingContext) (string, bool) {
	schoolID := c.Param("schoolId")
	if schoolID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "schoolId is required"))
		return "", false
	}
	if schoolID != acting.SchoolID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "school not found"))
		return "", false
	}
	return schoolID, true
}
