package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// AuditHandler exposes the audit trail review endpoint.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List audit entries
// @Description Returns audit entries newest first
// @Tags Audit
// @Produce json
// @Param schoolId path string true "School ID"
// @Param action query string false "Filter by action tag"
// @Param actedBy query string false "Filter by acting staff UID"
// @Param from query string false "Range start (RFC 3339)"
// @Param to query string false "Range end (RFC 3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.AuditListRequest
	req.Action = c.Query("action")
	req.ActedBy = c.Query("actedBy")
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC 3339"))
			return
		}
		req.From = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC 3339"))
			return
		}
		req.To = &parsed
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		req.PageSize = size
	}

	entries, pagination, err := h.audit.List(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
