package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
	"github.com/noah-isme/sis-registrar-api/pkg/export"
)

type sectionEnrollmentLister interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

// RosterDocument is a rendered class roster.
type RosterDocument struct {
	Filename    string
	ContentType string
	Content     []byte
}

// RosterService renders a section's confirmed students followed by its
// waitlist in line order.
type RosterService struct {
	sections    sectionReader
	enrollments sectionEnrollmentLister
	students    studentLoadReader
	logger      *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(sections sectionReader, enrollments sectionEnrollmentLister, students studentLoadReader, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{sections: sections, enrollments: enrollments, students: students, logger: logger}
}

var rosterHeaders = []string{"#", "Student ID", "Name", "Email", "Status", "Credits", "Requested At", "Confirmed At"}

// Export renders the roster in the given format.
func (s *RosterService) Export(ctx context.Context, sectionID string, format export.Format) (*RosterDocument, error) {
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported roster format")
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	var confirmed, waitlisted []models.Enrollment
	for _, e := range enrollments {
		switch e.Status {
		case models.EnrollmentStatusConfirmed:
			confirmed = append(confirmed, e)
		case models.EnrollmentStatusWaitlisted:
			waitlisted = append(waitlisted, e)
		}
	}
	sort.SliceStable(waitlisted, func(i, j int) bool { return waitlisted[i].WaitlistBefore(waitlisted[j]) })

	data := export.Dataset{
		Title:   fmt.Sprintf("%s %s (%s) %d/%d seats", section.CourseCode, section.CourseTitle, section.TermID, section.SeatsTaken, section.Capacity),
		Headers: rosterHeaders,
		Rows:    make([][]string, 0, len(confirmed)+len(waitlisted)),
	}
	for i, e := range confirmed {
		row, err := s.row(ctx, strconv.Itoa(i+1), e)
		if err != nil {
			return nil, err
		}
		data.Rows = append(data.Rows, row)
	}
	for i, e := range waitlisted {
		row, err := s.row(ctx, "W"+strconv.Itoa(i+1), e)
		if err != nil {
			return nil, err
		}
		data.Rows = append(data.Rows, row)
	}

	content, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}
	s.logger.Debug("roster rendered", zap.String("section_id", sectionID), zap.String("format", string(format)), zap.Int("rows", len(data.Rows)))
	return &RosterDocument{
		Filename:    fmt.Sprintf("roster-%s-%s.%s", section.CourseCode, section.ID, format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

func (s *RosterService) row(ctx context.Context, position string, e models.Enrollment) ([]string, error) {
	var name, email string
	load, err := s.students.FindLoad(ctx, e.StudentID)
	switch {
	case err == nil:
		name, email = load.FullName, load.Email
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	confirmedAt := ""
	if e.ConfirmedAt != nil {
		confirmedAt = e.ConfirmedAt.Format(time.RFC3339)
	}
	return []string{position, e.StudentID, name, email, string(e.Status), strconv.Itoa(e.Credits), e.RequestedAt.Format(time.RFC3339), confirmedAt}, nil
}
