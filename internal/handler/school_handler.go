package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// SchoolHandler exposes school endpoints.
type SchoolHandler struct {
	schools *service.SchoolService
}

// NewSchoolHandler constructs SchoolHandler.
func NewSchoolHandler(schools *service.SchoolService) *SchoolHandler {
	return &SchoolHandler{schools: schools}
}

// Get godoc
// @Summary Get school
// @Tags Schools
// @Produce json
// @Param schoolId path string true "School ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId} [get]
func (h *SchoolHandler) Get(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	school, err := h.schools.Get(c.Request.Context(), schoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// Create godoc
// @Summary Create school
// @Tags Schools
// @Accept json
// @Produce json
// @Param payload body service.CreateSchoolRequest true "School payload"
// @Success 201 {object} response.Envelope
// @Router /schools [post]
func (h *SchoolHandler) Create(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	var req service.CreateSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid school payload"))
		return
	}

	school, err := h.schools.Create(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, school)
}

// UpdateTheme godoc
// @Summary Update school theme
// @Tags Schools
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param payload body models.Theme true "Theme payload"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/theme [put]
func (h *SchoolHandler) UpdateTheme(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}
	var theme models.Theme
	if err := c.ShouldBindJSON(&theme); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid theme payload"))
		return
	}

	school, err := h.schools.UpdateTheme(c.Request.Context(), acting, schoolID, theme)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}
