package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

func seededMemoryStore() *MemoryStore {
	store := NewMemoryStore()
	store.PutSection(models.Section{ID: "sec-1", CourseCode: "CS201", Credits: 3, Capacity: 1})
	store.PutStudent(models.StudentLoad{StudentID: "stu-1", MaxCredits: 6})
	store.PutStudent(models.StudentLoad{StudentID: "stu-2", MaxCredits: 6})
	return store
}

func confirmBatch(id, studentID string, at time.Time) *models.LedgerBatch {
	batch := models.NewLedgerBatch()
	batch.Inserts = append(batch.Inserts, &models.Enrollment{
		ID: id, StudentID: studentID, SectionID: "sec-1", Status: models.EnrollmentStatusConfirmed, Credits: 3, RequestedAt: at, ConfirmedAt: &at,
	})
	batch.AddSeats("sec-1", 1)
	batch.AddCredits(studentID, 3)
	batch.Events = append(batch.Events, models.EnrollmentEvent{EnrollmentID: id, StudentID: studentID, SectionID: "sec-1",
		OldState: models.EnrollmentStatusPending, NewState: models.EnrollmentStatusConfirmed, OccurredAt: at})
	return batch
}

func TestMemoryStoreCommitAppliesCounters(t *testing.T) {
	store := seededMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-1", "stu-1", now)))

	section, err := store.Sections().FindByID(ctx, "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, section.SeatsTaken)

	load, err := store.Students().FindLoad(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 3, load.CreditsEnrolled)

	enrollment, err := store.Enrollments().FindByID(ctx, "enr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), enrollment.Seq)

	events, err := store.Enrollments().ListUnpublishedEvents(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NoError(t, store.Enrollments().MarkEventPublished(ctx, events[0].ID, now))
	events, err = store.Enrollments().ListUnpublishedEvents(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStoreRejectedBatchLeavesNoTrace(t *testing.T) {
	store := seededMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-1", "stu-1", now)))
	err := store.Enrollments().Commit(ctx, confirmBatch("enr-2", "stu-2", now))
	require.ErrorIs(t, err, models.ErrSeatBounds)

	_, err = store.Enrollments().FindByID(ctx, "enr-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	load, err := store.Students().FindLoad(ctx, "stu-2")
	require.NoError(t, err)
	assert.Zero(t, load.CreditsEnrolled)
}

func TestMemoryStoreDuplicateActivePair(t *testing.T) {
	store := seededMemoryStore()
	store.PutSection(models.Section{ID: "sec-1", CourseCode: "CS201", Credits: 3, Capacity: 5})
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-1", "stu-1", now)))
	err := store.Enrollments().Commit(ctx, confirmBatch("enr-2", "stu-1", now))
	require.ErrorIs(t, err, models.ErrDuplicateActiveEnrollment)

	reason := models.DropReasonStudent
	drop := models.NewLedgerBatch()
	drop.Transitions = append(drop.Transitions, models.StateTransition{
		EnrollmentID: "enr-1", From: models.EnrollmentStatusConfirmed, To: models.EnrollmentStatusDropped, At: now, DropReason: &reason,
	})
	drop.AddSeats("sec-1", -1)
	drop.AddCredits("stu-1", -3)
	require.NoError(t, store.Enrollments().Commit(ctx, drop))

	active, err := store.Enrollments().FindActive(ctx, "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Nil(t, active)
	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-3", "stu-1", now)))
}

func TestMemoryStoreStaleTransition(t *testing.T) {
	store := seededMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-1", "stu-1", now)))

	batch := models.NewLedgerBatch()
	batch.Transitions = append(batch.Transitions, models.StateTransition{
		EnrollmentID: "enr-1", From: models.EnrollmentStatusWaitlisted, To: models.EnrollmentStatusConfirmed, At: now,
	})
	require.ErrorIs(t, store.Enrollments().Commit(ctx, batch), models.ErrStaleTransition)
}

func TestMemoryStoreWaitlistOrder(t *testing.T) {
	store := seededMemoryStore()
	store.PutStudent(models.StudentLoad{StudentID: "stu-3", MaxCredits: 6})
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	batch := models.NewLedgerBatch()
	for _, e := range []struct {
		id, student string
		at          time.Time
	}{
		{"enr-b", "stu-2", base.Add(time.Minute)},
		{"enr-a", "stu-1", base},
		{"enr-c", "stu-3", base.Add(time.Minute)},
	} {
		batch.Inserts = append(batch.Inserts, &models.Enrollment{ID: e.id, StudentID: e.student, SectionID: "sec-1",
			Status: models.EnrollmentStatusWaitlisted, Credits: 3, RequestedAt: e.at})
	}
	require.NoError(t, store.Enrollments().Commit(ctx, batch))

	waitlist, err := store.Enrollments().Waitlist(ctx, "sec-1")
	require.NoError(t, err)
	require.Len(t, waitlist, 3)
	assert.Equal(t, []string{"enr-a", "enr-b", "enr-c"}, []string{waitlist[0].ID, waitlist[1].ID, waitlist[2].ID})

	head, err := store.Enrollments().EarliestWaitlisted(ctx, "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "enr-a", head.ID)
}

func TestMemorySectionRepositoryUpdateCapacity(t *testing.T) {
	store := seededMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Enrollments().Commit(ctx, confirmBatch("enr-1", "stu-1", time.Now())))

	require.ErrorIs(t, store.Sections().UpdateCapacity(ctx, "sec-1", 0), models.ErrSeatBounds)
	require.NoError(t, store.Sections().UpdateCapacity(ctx, "sec-1", 4))
	require.ErrorIs(t, store.Sections().UpdateCapacity(ctx, "missing", 4), sql.ErrNoRows)

	sections, total, err := store.Sections().List(ctx, models.SectionFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 3, sections[0].OpenSeats())
}

func TestMemoryHoldRepositoryClearIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	hold := &models.Hold{StudentID: "stu-1", Type: models.HoldTypeFinancial, PreventsRegistration: true}
	require.NoError(t, store.Holds().Create(ctx, hold))

	first := time.Now().UTC()
	require.NoError(t, store.Holds().Clear(ctx, hold.ID, "bursar", first))
	require.NoError(t, store.Holds().Clear(ctx, hold.ID, "registrar", first.Add(time.Hour)))

	stored, err := store.Holds().FindByID(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, "bursar", *stored.ClearedBy)
	assert.True(t, stored.ClearedAt.Equal(first))
}
