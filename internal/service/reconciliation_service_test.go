package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

func TestReconciliationReportsDriftWithoutCorrecting(t *testing.T) {
	f := newRegistrarFixture(t)
	f.section("sec-1", 3, 3)
	f.student("A", 18)
	f.enroll(t, "A", "sec-1")

	f.store.PutSection(models.Section{ID: "sec-2", CourseCode: "C-sec-2", Credits: 3, Capacity: 3, SeatsTaken: 2})
	f.store.PutStudent(models.StudentLoad{StudentID: "B", MaxCredits: 18, CreditsEnrolled: 6})

	svc := NewReconciliationService(f.store.Sections(), f.store.Students(), f.store.Enrollments(), f.locks, f.metrics, nil)
	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.SectionsChecked)
	assert.Equal(t, 2, report.StudentsChecked)
	require.Len(t, report.SeatDrift, 1)
	assert.Equal(t, SeatDrift{SectionID: "sec-2", SeatsTaken: 2, Confirmed: 0, Capacity: 3}, report.SeatDrift[0])
	require.Len(t, report.CreditDrift, 1)
	assert.Equal(t, CreditDrift{StudentID: "B", CreditsEnrolled: 6, Committed: 0}, report.CreditDrift[0])
	assert.Equal(t, uint64(2), f.metrics.Snapshot().InvariantViolations)

	assert.Equal(t, 2, f.seats(t, "sec-2"))
	assert.Equal(t, 6, f.credits(t, "B"))
	require.NoError(t, svc.Task(context.Background()))
}
