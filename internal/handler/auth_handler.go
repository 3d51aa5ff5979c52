package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pointsheet/pointsheet-api/internal/models"
	"github.com/pointsheet/pointsheet-api/internal/service"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
	"github.com/pointsheet/pointsheet-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
	staff   *service.StaffService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, staff *service.StaffService) *AuthHandler {
	return &AuthHandler{service: svc, staff: staff}
}

// Token godoc
// @Summary Issue access token
// @Description Authenticate staff by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid token payload"))
		return
	}

	res, err := h.service.IssueToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Me godoc
// @Summary Get current staff member
// @Description Returns the token owner's staff record
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	staff, err := h.staff.Get(c.Request.Context(), claims.SchoolID, claims.UID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, staff, nil)
}
