package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

type exportService interface {
	CreateJob(ctx context.Context, acting models.ActingContext, req service.CreateExportRequest) (*models.ExportJob, error)
	GetStatus(ctx context.Context, acting models.ActingContext, id string) (*models.ExportJobStatus, error)
	ResolveDownload(ctx context.Context, jobID, expires, signature string) (*service.ExportDownload, error)
}

// ExportHandler exposes export job endpoints.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Create godoc
// @Summary Create export job
// @Description Queues a day-sheet PDF or day-range CSV render for a plan
// @Tags Exports
// @Accept json
// @Produce json
// @Param schoolId path string true "School ID"
// @Param planId path string true "Plan ID"
// @Param payload body service.CreateExportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Router /schools/{schoolId}/plans/{planId}/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
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

	var req service.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	req.SchoolID = schoolID
	req.PlanID = c.Param("planId")

	job, err := h.exports.CreateJob(c.Request.Context(), acting, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Get export job status
// @Description Finished jobs carry a freshly signed download link
// @Tags Exports
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	acting, ok := actingFromContext(c)
	if !ok {
		return
	}

	status, err := h.exports.GetStatus(c.Request.Context(), acting, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download export result via signed link
// @Description The signature authorizes the download; no bearer token is required
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Export job ID"
// @Param expires query string true "Link expiry (unix seconds)"
// @Param signature query string true "Signed token"
// @Success 200 {file} binary
// @Router /exports/{id}/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	signature := strings.TrimSpace(c.Query("signature"))
	if signature == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "signature is required"))
		return
	}

	result, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("id"), c.Query("expires"), signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.ContentType, result.File, nil)
}
