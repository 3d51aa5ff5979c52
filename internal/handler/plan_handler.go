package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// PlanHandler exposes point-sheet plan endpoints.
type PlanHandler struct {
	plans *service.PlanService
}

// NewPlanHandler constructs PlanHandler.
func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// Create godoc
// @Summary Create plan for a student
// @Description Creates a plan and activates it for the student
// @Tags Plans
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.CreatePlanRequest true "Plan payload"
// @Success 201 {object} response.Envelope
// @Router /schools/{schoolId}/students/{studentId}/plans [post]
func (h *PlanHandler) Create(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid plan payload"))
		return
	}
	req.SchoolID = schoolID
	req.StudentID = c.Param("studentId")

	plan, err := h.plans.Create(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// ListByStudent godoc
// @Summary List a student's plans
// @Tags Plans
// @Produce json
// @Param schoolId path string true "School ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/students/{studentId}/plans [get]
func (h *PlanHandler) ListByStudent(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	plans, err := h.plans.ListByStudent(c.Request.Context(), schoolID, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// Get godoc
// @Summary Get plan detail
// @Tags Plans
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId} [get]
func (h *PlanHandler) Get(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	plan, err := h.plans.Get(c.Request.Context(), schoolID, c.Param("planId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Update godoc
// @Summary Update plan definition
// @Description Replaces schedule, goals, incentives, and quick buttons. Past days keep the totals they were scored under.
// @Tags Plans
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param payload body service.UpdatePlanRequest true "Plan payload"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId} [put]
func (h *PlanHandler) Update(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid plan payload"))
		return
	}
	req.SchoolID = schoolID
	req.PlanID = c.Param("planId")

	plan, err := h.plans.Update(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Archive godoc
// @Summary Archive plan
// @Description Archived plans stay readable but reject new writes
// @Tags Plans
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Success 204
// @Router /schools/{schoolId}/plans/{planId}/archive [post]
func (h *PlanHandler) Archive(c *gin.Context) {
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	if err := h.plans.Archive(c.Request.Context(), acting, schoolID, c.Param("planId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
