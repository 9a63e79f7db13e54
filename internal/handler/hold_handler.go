package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

type holdService interface {
	List(ctx context.Context, studentID string, activeOnly bool) ([]models.Hold, error)
	Place(ctx context.Context, studentID string, req models.PlaceHoldRequest) (*models.Hold, error)
	Clear(ctx context.Context, holdID string, req models.ClearHoldRequest) (*models.Hold, error)
}

// HoldHandler exposes hold administration endpoints.
type HoldHandler struct {
	holds holdService
}

// NewHoldHandler constructs HoldHandler.
func NewHoldHandler(holds holdService) *HoldHandler {
	return &HoldHandler{holds: holds}
}

// List godoc
// @Summary List student holds
// @Tags Holds
// @Produce json
// @Param id path string true "Student ID"
// @Param active query bool false "Only uncleared, unexpired holds"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/holds [get]
func (h *HoldHandler) List(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	holds, err := h.holds.List(c.Request.Context(), c.Param("id"), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, holds, nil)
}

// Place godoc
// @Summary Place hold
// @Tags Holds
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body models.PlaceHoldRequest true "Hold payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/holds [post]
func (h *HoldHandler) Place(c *gin.Context) {
	var req models.PlaceHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hold, err := h.holds.Place(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hold)
}

// Clear godoc
// @Summary Clear hold
// @Tags Holds
// @Accept json
// @Produce json
// @Param id path string true "Hold ID"
// @Param payload body models.ClearHoldRequest true "Clear payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /holds/{id}/clear [post]
func (h *HoldHandler) Clear(c *gin.Context) {
	var req models.ClearHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	hold, err := h.holds.Clear(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hold, nil)
}
