package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type sectionLister interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type studentLister interface {
	ListLoads(ctx context.Context) ([]models.StudentLoad, error)
	FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error)
}

type conservationCounter interface {
	ConfirmedCountForSection(ctx context.Context, sectionID string) (int, error)
	CommittedCredits(ctx context.Context, studentID string) (int, error)
}

// SeatDrift is a section whose counter disagrees with its confirmed enrollments.
type SeatDrift struct {
	SectionID  string `json:"section_id"`
	SeatsTaken int    `json:"seats_taken"`
	Confirmed  int    `json:"confirmed"`
	Capacity   int    `json:"capacity"`
}

// CreditDrift is a student whose credit total disagrees with committed enrollments.
type CreditDrift struct {
	StudentID       string `json:"student_id"`
	CreditsEnrolled int    `json:"credits_enrolled"`
	Committed       int    `json:"committed"`
}

// ReconcileReport summarises one audit run.
type ReconcileReport struct {
	SectionsChecked int           `json:"sections_checked"`
	StudentsChecked int           `json:"students_checked"`
	SeatDrift       []SeatDrift   `json:"seat_drift"`
	CreditDrift     []CreditDrift `json:"credit_drift"`
	RanAt           time.Time     `json:"ran_at"`
}

// Clean reports whether the run found no drift.
func (r ReconcileReport) Clean() bool {
	return len(r.SeatDrift) == 0 && len(r.CreditDrift) == 0
}

// ReconciliationService audits seat and credit conservation across the whole
// ledger. It only reports; drift is never corrected automatically.
type ReconciliationService struct {
	sections sectionLister
	students studentLister
	counts   conservationCounter
	locks    *LockManager
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciliationService constructs the auditor. Each entity is checked
// under its engine lock so in-flight registrations never show as drift.
func NewReconciliationService(sections sectionLister, students studentLister, counts conservationCounter, locks *LockManager, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if locks == nil {
		locks = NewLockManager(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		sections: sections,
		students: students,
		counts:   counts,
		locks:    locks,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run audits every section and student.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{SeatDrift: []SeatDrift{}, CreditDrift: []CreditDrift{}, RanAt: s.now()}

	const pageSize = 100
	for page := 1; ; page++ {
		sections, total, err := s.sections.List(ctx, models.SectionFilter{Page: page, PageSize: pageSize})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
		}
		for _, section := range sections {
			drift, err := s.checkSection(ctx, section.ID)
			if err != nil {
				return nil, err
			}
			report.SectionsChecked++
			if drift != nil {
				report.SeatDrift = append(report.SeatDrift, *drift)
			}
		}
		if len(sections) == 0 || page*pageSize >= total {
			break
		}
	}

	loads, err := s.students.ListLoads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	for _, load := range loads {
		drift, err := s.checkStudent(ctx, load.StudentID)
		if err != nil {
			return nil, err
		}
		report.StudentsChecked++
		if drift != nil {
			report.CreditDrift = append(report.CreditDrift, *drift)
		}
	}

	s.metrics.SetReconcileDrift(len(report.SeatDrift), len(report.CreditDrift))
	for _, d := range report.SeatDrift {
		s.metrics.RecordInvariantViolation("reconcile_seats")
		s.logger.Error("seat conservation drift", zap.String("section_id", d.SectionID),
			zap.Int("seats_taken", d.SeatsTaken), zap.Int("confirmed", d.Confirmed), zap.Int("capacity", d.Capacity))
	}
	for _, d := range report.CreditDrift {
		s.metrics.RecordInvariantViolation("reconcile_credits")
		s.logger.Error("credit conservation drift", zap.String("student_id", d.StudentID),
			zap.Int("credits_enrolled", d.CreditsEnrolled), zap.Int("committed", d.Committed))
	}
	s.logger.Info("reconciliation finished",
		zap.Int("sections", report.SectionsChecked),
		zap.Int("students", report.StudentsChecked),
		zap.Bool("clean", report.Clean()),
	)
	return report, nil
}

// Task adapts Run to the scheduler.
func (s *ReconciliationService) Task(ctx context.Context) error {
	_, err := s.Run(ctx)
	return err
}

func (s *ReconciliationService) checkSection(ctx context.Context, sectionID string) (*SeatDrift, error) {
	release, err := s.locks.Acquire(ctx, LockSet{Sections: []string{sectionID}})
	if err != nil {
		return nil, appErrors.WrapKind(err, appErrors.ErrContention, "")
	}
	defer release()

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	confirmed, err := s.counts.ConfirmedCountForSection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count confirmed enrollments")
	}
	if confirmed == section.SeatsTaken && section.SeatsTaken <= section.Capacity {
		return nil, nil
	}
	return &SeatDrift{SectionID: sectionID, SeatsTaken: section.SeatsTaken, Confirmed: confirmed, Capacity: section.Capacity}, nil
}

func (s *ReconciliationService) checkStudent(ctx context.Context, studentID string) (*CreditDrift, error) {
	release, err := s.locks.Acquire(ctx, LockSet{Students: []string{studentID}})
	if err != nil {
		return nil, appErrors.WrapKind(err, appErrors.ErrContention, "")
	}
	defer release()

	load, err := s.students.FindLoad(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	committed, err := s.counts.CommittedCredits(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum committed credits")
	}
	if committed == load.CreditsEnrolled {
		return nil, nil
	}
	return &CreditDrift{StudentID: studentID, CreditsEnrolled: load.CreditsEnrolled, Committed: committed}, nil
}
