package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// StaffHandler exposes staff directory endpoints.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs StaffHandler.
func NewStaffHandler(staff *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staff}
}

// List godoc
// @Summary List staff
// @Tags Staff
// @Produce json
// @Param schoolId path string true "School ID"
// @Param role query string false "Filter by role"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/staff [get]
func (h *StaffHandler) List(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.ListStaffRequest
	req.Role = c.Query("role")
	req.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		req.PageSize = size
	}

	staff, pagination, err := h.staff.List(c.Request.Context(), schoolID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, staff, pagination)
}

// Get godoc
// @Summary Get staff member
// @Tags Staff
// @Produce json
// @Param schoolId path string true "School ID"
// @Param uid path string true "Staff UID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/staff/{uid} [get]
func (h *StaffHandler) Get(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	member, err := h.staff.Get(c.Request.Context(), schoolID, c.Param("uid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, member, nil)
}

// Upsert godoc
// @Summary Create or update staff member
// @Description Role or school changes invalidate the member's outstanding tokens
// @Tags Staff
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param uid path string true "Staff UID"
// @Param payload body service.UpsertStaffRequest true "Staff payload"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/staff/{uid} [put]
func (h *StaffHandler) Upsert(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.UpsertStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid staff payload"))
		return
	}
	req.SchoolID = schoolID
	req.UID = c.Param("uid")

	member, err := h.staff.Upsert(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, member, nil)
}
