package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/export"
)

type sectionCatalogMock struct {
	lastFilter   models.SectionFilter
	lastCapacity int
	capacityErr  error
}

func (m *sectionCatalogMock) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Section{{ID: "sec-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *sectionCatalogMock) GetSection(ctx context.Context, id string) (*models.Section, error) {
	return &models.Section{ID: id}, nil
}

func (m *sectionCatalogMock) Availability(ctx context.Context, id string) (*models.SectionAvailability, error) {
	return &models.SectionAvailability{SectionID: id, Capacity: 10, SeatsTaken: 10}, nil
}

func (m *sectionCatalogMock) UpdateCapacity(ctx context.Context, id string, req models.UpdateCapacityRequest) (*service.CapacityChange, error) {
	m.lastCapacity = req.Capacity
	if m.capacityErr != nil {
		return nil, m.capacityErr
	}
	return &service.CapacityChange{Section: &models.Section{ID: id, Capacity: req.Capacity}, Promoted: []models.Enrollment{{ID: "enr-9"}}}, nil
}

type waitlistMock struct{}

func (waitlistMock) Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	return []models.Enrollment{{ID: "w1"}, {ID: "w2"}}, nil
}

type rosterMock struct {
	lastFormat export.Format
}

func (m *rosterMock) Export(ctx context.Context, sectionID string, format export.Format) (*service.RosterDocument, error) {
	m.lastFormat = format
	return &service.RosterDocument{Filename: "roster-" + sectionID + "." + string(format), ContentType: format.ContentType(), Content: []byte("#,Student ID\n")}, nil
}

func TestSectionHandlerListParsesFilter(t *testing.T) {
	catalog := &sectionCatalogMock{}
	handler := NewSectionHandler(catalog, waitlistMock{}, &rosterMock{})

	c, w := newJSONContext(http.MethodGet, "/sections?termId=2026FA&open=true&page=2&limit=5", "")
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026FA", catalog.lastFilter.TermID)
	assert.True(t, catalog.lastFilter.OpenOnly)
	assert.Equal(t, 2, catalog.lastFilter.Page)
	assert.Equal(t, 5, catalog.lastFilter.PageSize)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestSectionHandlerUpdateCapacity(t *testing.T) {
	catalog := &sectionCatalogMock{}
	handler := NewSectionHandler(catalog, waitlistMock{}, &rosterMock{})

	c, w := newJSONContext(http.MethodPut, "/sections/sec-1/capacity", `{"capacity":12}`)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}
	handler.UpdateCapacity(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, catalog.lastCapacity)
	assert.Contains(t, w.Body.String(), "enr-9")

	catalog.capacityErr = appErrors.Clone(appErrors.ErrConflict, "capacity cannot be lower than seats already taken")
	c, w = newJSONContext(http.MethodPut, "/sections/sec-1/capacity", `{"capacity":1}`)
	handler.UpdateCapacity(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSectionHandlerWaitlist(t *testing.T) {
	handler := NewSectionHandler(&sectionCatalogMock{}, waitlistMock{}, &rosterMock{})

	c, w := newJSONContext(http.MethodGet, "/sections/sec-1/waitlist", "")
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}
	handler.Waitlist(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"length":2`)
}

func TestSectionHandlerRoster(t *testing.T) {
	rosters := &rosterMock{}
	handler := NewSectionHandler(&sectionCatalogMock{}, waitlistMock{}, rosters)

	c, w := newJSONContext(http.MethodGet, "/sections/sec-1/roster?format=XLSX", "")
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}
	handler.Roster(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatXLSX, rosters.lastFormat)
	assert.Equal(t, `attachment; filename="roster-sec-1.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, export.FormatXLSX.ContentType(), w.Header().Get("Content-Type"))

	c, w = newJSONContext(http.MethodGet, "/sections/sec-1/roster?format=docx", "")
	handler.Roster(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
