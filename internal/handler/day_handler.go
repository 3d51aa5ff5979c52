package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/middleware"
	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

type dayReader interface {
	GetDay(ctx context.Context, schoolID, planID, dayKey string) (*models.Day, bool, error)
	ListDays(ctx context.Context, schoolID, planID, from, to string) ([]models.Day, error)
}

type scoringPipeline interface {
	RecordCell(ctx context.Context, acting models.ActingContext, req service.RecordCellRequest) (*models.Day, error)
	RecordComment(ctx context.Context, acting models.ActingContext, req service.RecordCommentRequest) error
	LogIncident(ctx context.Context, acting models.ActingContext, req service.LogIncidentRequest) (*models.Incident, error)
}

// DayHandler exposes day document reads and the scoring pipeline writes.
type DayHandler struct {
	days    dayReader
	scoring scoringPipeline
}

// NewDayHandler constructs DayHandler.
func NewDayHandler(days dayReader, scoring scoringPipeline) *DayHandler {
	return &DayHandler{days: days, scoring: scoring}
}

// Get godoc
// @Summary Get one day document
// @Description Days without writes come back as empty documents with zeroed totals
// @Tags Days
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param dayKey path string true "Day key (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId}/days/{dayKey} [get]
func (h *DayHandler) Get(c *gin.Context) {
	if h.days == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	start := time.Now()
	day, cacheHit, err := h.days.GetDay(c.Request.Context(), schoolID, c.Param("planId"), c.Param("dayKey"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, day, nil, meta)
}

// List godoc
// @Summary List scored days in a range
// @Description Returns only days that have writes; callers iterate the range themselves
// @Tags Days
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId}/days [get]
func (h *DayHandler) List(c *gin.Context) {
	if h.days == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	days, err := h.days.ListDays(c.Request.Context(), schoolID, c.Param("planId"), c.Query("from"), c.Query("to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// PutCell godoc
// @Summary Record a matrix cell
// @Description Merges one cell, recomputes totals from the full matrix, and appends an audit entry
// @Tags Days
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param dayKey path string true "Day key (YYYY-MM-DD)"
// @Param payload body service.RecordCellRequest true "Cell payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId}/days/{dayKey}/cells [put]
func (h *DayHandler) PutCell(c *gin.Context) {
	if h.scoring == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.RecordCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cell payload"))
		return
	}
	req.SchoolID = schoolID
	req.PlanID = c.Param("planId")
	req.DayKey = c.Param("dayKey")

	day, err := h.scoring.RecordCell(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, day, nil)
}

// PutComment godoc
// @Summary Save a day comment
// @Description Upserts the comment for one subject on the day document
// @Tags Days
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param dayKey path string true "Day key (YYYY-MM-DD)"
// @Param payload body service.RecordCommentRequest true "Comment payload"
// @Success 204
// @Router /schools/{schoolId}/plans/{planId}/days/{dayKey}/comments [put]
func (h *DayHandler) PutComment(c *gin.Context) {
	if h.scoring == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.RecordCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	req.SchoolID = schoolID
	req.PlanID = c.Param("planId")
	req.DayKey = c.Param("dayKey")

	if err := h.scoring.RecordComment(c.Request.Context(), acting, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PostIncident godoc
// @Summary Log an incident
// @Description Appends a quick-button incident to the day; incidents are never edited or removed
// @Tags Days
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param dayKey path string true "Day key (YYYY-MM-DD)"
// @Param payload body service.LogIncidentRequest true "Incident payload"
// @Success 201 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId}/days/{dayKey}/incidents [post]
func (h *DayHandler) PostIncident(c *gin.Context) {
	if h.scoring == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}
	schoolID, ok := schoolIDParam(c, acting)
	if !ok {
		return
	}

	var req service.LogIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}
	req.SchoolID = schoolID
	req.PlanID = c.Param("planId")
	req.DayKey = c.Param("dayKey")

	incident, err := h.scoring.LogIncident(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, incident)
}
