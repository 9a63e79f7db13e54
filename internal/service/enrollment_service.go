package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/pkg/logger"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

const (
	opEnroll = "enroll"
	opDrop   = "drop"
	opFill   = "fill"

	// lockRounds bounds how often a drop re-locks when the waitlist grew
	// between the snapshot and lock acquisition.
	lockRounds = 3
)

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type holdChecker interface {
	HasBlockingHold(ctx context.Context, studentID string) (bool, error)
}

type academicHistory interface {
	HasCompleted(ctx context.Context, studentID, courseCode string) (bool, error)
}

type enrollmentLedger interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	ConfirmedCountForSection(ctx context.Context, sectionID string) (int, error)
	CommittedCredits(ctx context.Context, studentID string) (int, error)
	Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error)
	Commit(ctx context.Context, batch *models.LedgerBatch) error
}

// EventPublisher receives the events of a committed ledger batch.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.EnrollmentEvent)
}

// EnrollmentService is the registration engine. Every enroll, drop and
// promotion decision is taken while holding the section and student locks it
// touches, and is written as one ledger batch.
type EnrollmentService struct {
	sections  sectionReader
	holds     holdChecker
	students  studentLoadReader
	history   academicHistory
	ledger    enrollmentLedger
	locks     *LockManager
	events    EventPublisher
	cache     *CacheService
	metrics   *MetricsService
	retry     RetryPolicy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService wires the engine.
func NewEnrollmentService(
	sections sectionReader,
	holds holdChecker,
	students studentLoadReader,
	history academicHistory,
	ledger enrollmentLedger,
	locks *LockManager,
	events EventPublisher,
	cache *CacheService,
	metrics *MetricsService,
	retry RetryPolicy,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if locks == nil {
		locks = NewLockManager(0)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		sections:  sections,
		holds:     holds,
		students:  students,
		history:   history,
		ledger:    ledger,
		locks:     locks,
		events:    events,
		cache:     cache,
		metrics:   metrics,
		retry:     retry,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enroll requests a seat. The result is CONFIRMED when a seat was claimed and
// WAITLISTED when the section was full; both are successful outcomes.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	enrollment, err := retryContention(ctx, s.retry, s.logger, opEnroll, func() (*models.Enrollment, error) {
		return s.enroll(ctx, req)
	})
	s.recordOutcome(opEnroll, enrollment, err)
	return enrollment, err
}

func (s *EnrollmentService) enroll(ctx context.Context, req models.EnrollRequest) (*models.Enrollment, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String("student_id", req.StudentID), zap.String("section_id", req.SectionID))

	blocked, err := s.holds.HasBlockingHold(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	if blocked {
		return nil, appErrors.Clone(appErrors.ErrHoldBlocked, "")
	}

	if _, err := s.loadSection(ctx, req.SectionID); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, opEnroll, lockTargets(req.SectionID, req.StudentID))
	if err != nil {
		return nil, err
	}
	defer release()

	// Stamped per attempt under the locks so a contended request queues
	// behind whatever was waitlisted while it backed off.
	requestedAt := req.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = s.now()
	}

	load, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.ledger.FindActive(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	// Re-read under the lock: capacity may have changed since the snapshot.
	section, err := s.loadSection(ctx, req.SectionID)
	if err != nil {
		return nil, err
	}

	if err := s.checkPrerequisites(ctx, req.StudentID, section); err != nil {
		return nil, err
	}

	if !load.Fits(section.Credits) {
		return nil, appErrors.Clone(appErrors.ErrCreditLimitExceeded,
			fmt.Sprintf("enrollment would raise load to %d of %d credits", load.CreditsEnrolled+section.Credits, load.MaxCredits))
	}

	if err := s.verifySection(ctx, opEnroll, section); err != nil {
		return nil, err
	}
	if err := s.verifyStudent(ctx, opEnroll, load); err != nil {
		return nil, err
	}

	now := s.now()
	enrollment := &models.Enrollment{
		ID:          uuid.NewString(),
		StudentID:   req.StudentID,
		SectionID:   section.ID,
		Credits:     section.Credits,
		RequestedAt: requestedAt,
	}

	batch := models.NewLedgerBatch()
	if section.HasOpenSeat() {
		enrollment.Status = models.EnrollmentStatusConfirmed
		enrollment.ConfirmedAt = &now
		batch.AddSeats(section.ID, 1)
		batch.AddCredits(req.StudentID, section.Credits)
	} else {
		enrollment.Status = models.EnrollmentStatusWaitlisted
	}
	batch.Inserts = append(batch.Inserts, enrollment)
	batch.Events = append(batch.Events, transitionEvent(*enrollment, models.EnrollmentStatusPending, enrollment.Status, now))

	if err := s.commit(ctx, opEnroll, batch); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, batch, section.ID)

	log.Info("enrollment recorded", zap.String("enrollment_id", enrollment.ID), zap.String("status", string(enrollment.Status)))
	return enrollment, nil
}

// Drop ends an enrollment. Holds never block a drop. Dropping a confirmed
// enrollment releases its seat and credits and promotes, in line order, the
// waitlisted students whose credit limit still allows the section.
func (s *EnrollmentService) Drop(ctx context.Context, req models.DropRequest) (*models.DropResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}
	if req.Reason == "" {
		req.Reason = models.DropReasonStudent
	}
	result, err := retryContention(ctx, s.retry, s.logger, opDrop, func() (*models.DropResult, error) {
		return s.drop(ctx, req)
	})
	if err != nil {
		s.metrics.RecordOutcome(opDrop, outcomeLabel(err))
		return nil, err
	}
	s.metrics.RecordOutcome(opDrop, string(models.EnrollmentStatusDropped))
	s.metrics.RecordPromotions(len(result.Promoted))
	return result, nil
}

func (s *EnrollmentService) drop(ctx context.Context, req models.DropRequest) (*models.DropResult, error) {
	snapshot, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status == models.EnrollmentStatusDropped {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment already dropped")
	}

	release, waitlist, err := s.lockSectionWithWaitlist(ctx, opDrop, snapshot.SectionID, snapshot.StudentID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.EnrollmentStatusDropped {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment already dropped")
	}

	now := s.now()
	reason := req.Reason
	batch := models.NewLedgerBatch()
	batch.Transitions = append(batch.Transitions, models.StateTransition{
		EnrollmentID: current.ID,
		From:         current.Status,
		To:           models.EnrollmentStatusDropped,
		At:           now,
		DropReason:   &reason,
	})
	batch.Events = append(batch.Events, transitionEvent(*current, current.Status, models.EnrollmentStatusDropped, now))

	dropped := *current
	dropped.Status = models.EnrollmentStatusDropped
	dropped.DroppedAt = &now
	dropped.DropReason = &reason
	result := &models.DropResult{Dropped: dropped}

	if current.Status.CountsTowardLoad() {
		batch.AddCredits(current.StudentID, -current.Credits)
	}
	if current.Status == models.EnrollmentStatusConfirmed {
		section, err := s.loadSection(ctx, current.SectionID)
		if err != nil {
			return nil, err
		}
		if err := s.verifySection(ctx, opDrop, section); err != nil {
			return nil, err
		}
		batch.AddSeats(section.ID, -1)
		result.Promoted, err = s.planPromotions(ctx, section, waitlist, batch, now)
		if err != nil {
			return nil, err
		}
	}

	if err := s.commit(ctx, opDrop, batch); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, batch, current.SectionID)

	logger.FromContext(ctx, s.logger).Info("enrollment dropped",
		zap.String("enrollment_id", current.ID),
		zap.String("previous_status", string(current.Status)),
		zap.String("reason", string(reason)),
		zap.Int("promoted", len(result.Promoted)),
	)
	return result, nil
}

// FillOpenSeats promotes waitlisted students into any open seats, e.g. after
// a capacity increase. It returns the promoted enrollments.
func (s *EnrollmentService) FillOpenSeats(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	promoted, err := retryContention(ctx, s.retry, s.logger, opFill, func() ([]models.Enrollment, error) {
		return s.fillOpenSeats(ctx, sectionID)
	})
	if err != nil {
		s.metrics.RecordOutcome(opFill, outcomeLabel(err))
		return nil, err
	}
	s.metrics.RecordPromotions(len(promoted))
	return promoted, nil
}

func (s *EnrollmentService) fillOpenSeats(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	release, waitlist, err := s.lockSectionWithWaitlist(ctx, opFill, sectionID)
	if err != nil {
		return nil, err
	}
	defer release()

	section, err := s.loadSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.verifySection(ctx, opFill, section); err != nil {
		return nil, err
	}

	batch := models.NewLedgerBatch()
	promoted, err := s.planPromotions(ctx, section, waitlist, batch, s.now())
	if err != nil {
		return nil, err
	}
	if batch.Empty() {
		return []models.Enrollment{}, nil
	}
	if err := s.commit(ctx, opFill, batch); err != nil {
		return nil, err
	}
	s.afterCommit(ctx, batch, sectionID)
	return promoted, nil
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	return s.loadEnrollment(ctx, id)
}

// ListForStudent returns every enrollment a student ever held.
func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	enrollments, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// Waitlist returns a section's waitlist in line order. Display only.
func (s *EnrollmentService) Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	if _, err := s.loadSection(ctx, sectionID); err != nil {
		return nil, err
	}
	waitlist, err := s.ledger.Waitlist(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist")
	}
	return waitlist, nil
}

// WaitlistPosition returns the 1-based place of a waitlisted enrollment.
func (s *EnrollmentService) WaitlistPosition(ctx context.Context, enrollmentID string) (*models.WaitlistPosition, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusWaitlisted {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("enrollment is %s, not waitlisted", enrollment.Status))
	}
	waitlist, err := s.ledger.Waitlist(ctx, enrollment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist")
	}
	for i, entry := range waitlist {
		if entry.ID == enrollment.ID {
			return &models.WaitlistPosition{
				EnrollmentID: enrollment.ID,
				SectionID:    enrollment.SectionID,
				Position:     i + 1,
				Length:       len(waitlist),
			}, nil
		}
	}
	// Promoted or dropped between the two reads.
	return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment left the waitlist")
}

// StudentLoad returns a student's current credit load.
func (s *EnrollmentService) StudentLoad(ctx context.Context, studentID string) (*models.StudentLoad, error) {
	return s.loadStudent(ctx, studentID)
}

// planPromotions walks the waitlist in line order and adds a promotion to
// batch for each entry that fits its owner's credit limit, until the section
// has no open seat left. Entries that do not fit keep their place.
func (s *EnrollmentService) planPromotions(ctx context.Context, section *models.Section, waitlist []models.Enrollment, batch *models.LedgerBatch, now time.Time) ([]models.Enrollment, error) {
	open := section.Capacity - (section.SeatsTaken + batch.SeatDeltas[section.ID])
	promoted := make([]models.Enrollment, 0)
	loads := make(map[string]*models.StudentLoad)

	for _, candidate := range waitlist {
		if open <= 0 {
			break
		}
		load, ok := loads[candidate.StudentID]
		if !ok {
			var err error
			load, err = s.loadStudent(ctx, candidate.StudentID)
			if err != nil {
				return nil, err
			}
			loads[candidate.StudentID] = load
		}
		projected := load.CreditsEnrolled + batch.CreditDeltas[candidate.StudentID]
		if projected+candidate.Credits > load.MaxCredits {
			s.logger.Debug("waitlist entry skipped over credit limit",
				zap.String("enrollment_id", candidate.ID),
				zap.String("student_id", candidate.StudentID),
				zap.Int("projected_credits", projected+candidate.Credits),
				zap.Int("max_credits", load.MaxCredits),
			)
			continue
		}

		batch.Transitions = append(batch.Transitions, models.StateTransition{
			EnrollmentID: candidate.ID,
			From:         models.EnrollmentStatusWaitlisted,
			To:           models.EnrollmentStatusConfirmed,
			At:           now,
		})
		batch.AddSeats(section.ID, 1)
		batch.AddCredits(candidate.StudentID, candidate.Credits)
		batch.Events = append(batch.Events, transitionEvent(candidate, models.EnrollmentStatusWaitlisted, models.EnrollmentStatusConfirmed, now))

		confirmed := candidate
		confirmed.Status = models.EnrollmentStatusConfirmed
		confirmed.ConfirmedAt = &now
		promoted = append(promoted, confirmed)
		open--
	}
	return promoted, nil
}

// lockSectionWithWaitlist locks a section together with the given students
// and every student currently waitlisted in it. If the waitlist gains a
// student between the snapshot and acquisition, it re-locks with the larger set.
func (s *EnrollmentService) lockSectionWithWaitlist(ctx context.Context, op, sectionID string, students ...string) (func(), []models.Enrollment, error) {
	waitlist, err := s.ledger.Waitlist(ctx, sectionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist")
	}

	for round := 0; round < lockRounds; round++ {
		locked := make(map[string]struct{}, len(students)+len(waitlist))
		set := lockTargets(sectionID, students...)
		for _, id := range students {
			locked[id] = struct{}{}
		}
		for _, entry := range waitlist {
			if _, ok := locked[entry.StudentID]; !ok {
				locked[entry.StudentID] = struct{}{}
				set.Students = append(set.Students, entry.StudentID)
			}
		}

		release, err := s.acquire(ctx, op, set)
		if err != nil {
			return nil, nil, err
		}

		waitlist, err = s.ledger.Waitlist(ctx, sectionID)
		if err != nil {
			release()
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist")
		}
		covered := true
		for _, entry := range waitlist {
			if _, ok := locked[entry.StudentID]; !ok {
				covered = false
				break
			}
		}
		if covered {
			return release, waitlist, nil
		}
		release()
	}

	s.metrics.RecordContention(op)
	return nil, nil, appErrors.Clone(appErrors.ErrContention, "waitlist changed while locking, retry shortly")
}

func (s *EnrollmentService) acquire(ctx context.Context, op string, set LockSet) (func(), error) {
	start := time.Now()
	release, err := s.locks.Acquire(ctx, set)
	s.metrics.ObserveLockWait(op, time.Since(start))
	if err != nil {
		s.metrics.RecordContention(op)
		return nil, appErrors.WrapKind(err, appErrors.ErrContention, "")
	}
	return release, nil
}

// commit writes batch and translates ledger integrity errors. A bound
// violation on a batch that only releases seats or credits means the
// counters had already drifted, which is never retried.
func (s *EnrollmentService) commit(ctx context.Context, op string, batch *models.LedgerBatch) error {
	err := s.ledger.Commit(ctx, batch)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, models.ErrDuplicateActiveEnrollment):
		return appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	case errors.Is(err, models.ErrStaleTransition):
		s.metrics.RecordContention(op)
		return appErrors.WrapKind(err, appErrors.ErrContention, "")
	case errors.Is(err, models.ErrSeatBounds):
		if hasPositive(batch.SeatDeltas) {
			s.metrics.RecordContention(op)
			return appErrors.WrapKind(err, appErrors.ErrContention, "section capacity changed, retry shortly")
		}
		return s.invariantViolation(op, "seats", err, zap.Any("batch", batch))
	case errors.Is(err, models.ErrCreditBounds):
		if hasPositive(batch.CreditDeltas) {
			s.metrics.RecordContention(op)
			return appErrors.WrapKind(err, appErrors.ErrContention, "credit limit changed, retry shortly")
		}
		return s.invariantViolation(op, "credits", err, zap.Any("batch", batch))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return appErrors.WrapKind(err, appErrors.ErrContention, "")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record enrollment change")
	}
}

func (s *EnrollmentService) afterCommit(ctx context.Context, batch *models.LedgerBatch, sectionID string) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, availabilityCacheKey(sectionID))
	}
	if s.events != nil && len(batch.Events) > 0 {
		s.events.Publish(ctx, batch.Events)
	}
}

// verifySection checks seat conservation for a locked section.
func (s *EnrollmentService) verifySection(ctx context.Context, op string, section *models.Section) error {
	confirmed, err := s.ledger.ConfirmedCountForSection(ctx, section.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count confirmed enrollments")
	}
	if confirmed == section.SeatsTaken && section.SeatsTaken >= 0 && section.SeatsTaken <= section.Capacity {
		return nil
	}
	return s.invariantViolation(op, "seats", fmt.Errorf("section %s seats_taken %d, confirmed %d, capacity %d",
		section.ID, section.SeatsTaken, confirmed, section.Capacity),
		zap.String("section_id", section.ID),
		zap.Int("seats_taken", section.SeatsTaken),
		zap.Int("confirmed", confirmed),
		zap.Int("capacity", section.Capacity),
	)
}

// verifyStudent checks credit conservation for a locked student.
func (s *EnrollmentService) verifyStudent(ctx context.Context, op string, load *models.StudentLoad) error {
	committed, err := s.ledger.CommittedCredits(ctx, load.StudentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum committed credits")
	}
	if committed == load.CreditsEnrolled && load.CreditsEnrolled >= 0 {
		return nil
	}
	return s.invariantViolation(op, "credits", fmt.Errorf("student %s credits_enrolled %d, committed %d",
		load.StudentID, load.CreditsEnrolled, committed),
		zap.String("student_id", load.StudentID),
		zap.Int("credits_enrolled", load.CreditsEnrolled),
		zap.Int("committed", committed),
		zap.Int("max_credits", load.MaxCredits),
	)
}

func (s *EnrollmentService) invariantViolation(op, check string, cause error, fields ...zap.Field) error {
	s.metrics.RecordInvariantViolation(check)
	fields = append(fields, zap.String("operation", op), zap.String("check", check), zap.Error(cause))
	s.logger.Error("enrollment invariant violated", fields...)
	return appErrors.WrapKind(cause, appErrors.ErrInvariantViolation, "")
}

func (s *EnrollmentService) checkPrerequisites(ctx context.Context, studentID string, section *models.Section) error {
	var missing []string
	for _, code := range section.Prerequisites {
		done, err := s.history.HasCompleted(ctx, studentID, code)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check academic history")
		}
		if !done {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrPrerequisiteNotMet, "missing prerequisites: "+strings.Join(missing, ", "))
	}
	return nil
}

func (s *EnrollmentService) loadSection(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.sections.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

func (s *EnrollmentService) loadStudent(ctx context.Context, id string) (*models.StudentLoad, error) {
	load, err := s.students.FindLoad(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return load, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) recordOutcome(op string, enrollment *models.Enrollment, err error) {
	if err != nil {
		s.metrics.RecordOutcome(op, outcomeLabel(err))
		return
	}
	s.metrics.RecordOutcome(op, string(enrollment.Status))
}

func outcomeLabel(err error) string {
	return appErrors.FromError(err).Code
}

func transitionEvent(e models.Enrollment, from, to models.EnrollmentStatus, at time.Time) models.EnrollmentEvent {
	return models.EnrollmentEvent{
		ID:           uuid.NewString(),
		EnrollmentID: e.ID,
		StudentID:    e.StudentID,
		SectionID:    e.SectionID,
		OldState:     from,
		NewState:     to,
		OccurredAt:   at,
	}
}

func hasPositive(deltas map[string]int) bool {
	for _, delta := range deltas {
		if delta > 0 {
			return true
		}
	}
	return false
}
