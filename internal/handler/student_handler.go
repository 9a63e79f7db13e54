package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/pkg/response"
)

type studentRegistrationReader interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	StudentLoad(ctx context.Context, studentID string) (*models.StudentLoad, error)
}

// StudentHandler exposes a student's registration state.
type StudentHandler struct {
	registrations studentRegistrationReader
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(registrations studentRegistrationReader) *StudentHandler {
	return &StudentHandler{registrations: registrations}
}

// Enrollments godoc
// @Summary List student enrollments
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *StudentHandler) Enrollments(c *gin.Context) {
	enrollments, err := h.registrations.ListForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Load godoc
// @Summary Student credit load
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/load [get]
func (h *StudentHandler) Load(c *gin.Context) {
	load, err := h.registrations.StudentLoad(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, load, nil, map[string]interface{}{"remaining_credits": load.Remaining()})
}
