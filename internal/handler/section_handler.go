package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/export"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

type sectionCatalog interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	Availability(ctx context.Context, id string) (*models.SectionAvailability, error)
	UpdateCapacity(ctx context.Context, id string, req models.UpdateCapacityRequest) (*service.CapacityChange, error)
}

type waitlistReader interface {
	Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

type rosterExporter interface {
	Export(ctx context.Context, sectionID string, format export.Format) (*service.RosterDocument, error)
}

// SectionHandler exposes catalog, waitlist and roster endpoints.
type SectionHandler struct {
	catalog   sectionCatalog
	waitlists waitlistReader
	rosters   rosterExporter
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(catalog sectionCatalog, waitlists waitlistReader, rosters rosterExporter) *SectionHandler {
	return &SectionHandler{catalog: catalog, waitlists: waitlists, rosters: rosters}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param termId query string false "Filter by term"
// @Param courseCode query string false "Filter by course code"
// @Param open query bool false "Only sections with an open seat"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	filter := models.SectionFilter{
		TermID:     c.Query("termId"),
		CourseCode: c.Query("courseCode"),
	}
	filter.OpenOnly, _ = strconv.ParseBool(c.DefaultQuery("open", "false"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	sections, pagination, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.catalog.GetSection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Availability godoc
// @Summary Seat availability
// @Description Display view; may lag in-flight registrations.
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/availability [get]
func (h *SectionHandler) Availability(c *gin.Context) {
	availability, err := h.catalog.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// UpdateCapacity godoc
// @Summary Update section capacity
// @Description Increases promote waitlisted students immediately. Capacity cannot fall below seats taken.
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body models.UpdateCapacityRequest true "Capacity payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sections/{id}/capacity [put]
func (h *SectionHandler) UpdateCapacity(c *gin.Context) {
	var req models.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	change, err := h.catalog.UpdateCapacity(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, change, nil)
}

// Waitlist godoc
// @Summary Section waitlist
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *SectionHandler) Waitlist(c *gin.Context) {
	waitlist, err := h.waitlists.Waitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, waitlist, nil, map[string]interface{}{"length": len(waitlist)})
}

// Roster godoc
// @Summary Export section roster
// @Tags Sections
// @Produce octet-stream
// @Param id path string true "Section ID"
// @Param format query string false "csv (default), pdf or xlsx"
// @Success 200 {file} binary
// @Router /sections/{id}/roster [get]
func (h *SectionHandler) Roster(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}
	doc, err := h.rosters.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", doc.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}
