package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/repository"
	"github.com/noah-isme/sis-registrar-api/pkg/config"
	"github.com/noah-isme/sis-registrar-api/pkg/database"
)

type sectionBackend interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	UpdateCapacity(ctx context.Context, id string, capacity int) error
}

type holdBackend interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Hold, error)
	FindByID(ctx context.Context, id string) (*models.Hold, error)
	Create(ctx context.Context, hold *models.Hold) error
	Clear(ctx context.Context, id, clearedBy string, at time.Time) error
}

type studentBackend interface {
	FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error)
	ListLoads(ctx context.Context) ([]models.StudentLoad, error)
}

type historyBackend interface {
	HasCompleted(ctx context.Context, studentID, courseCode string) (bool, error)
}

type enrollmentBackend interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error)
	FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	ConfirmedCountForSection(ctx context.Context, sectionID string) (int, error)
	CommittedCredits(ctx context.Context, studentID string) (int, error)
	Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error)
	ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]models.EnrollmentEvent, error)
	MarkEventPublished(ctx context.Context, id string, at time.Time) error
	Commit(ctx context.Context, batch *models.LedgerBatch) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type backend struct {
	sections    sectionBackend
	holds       holdBackend
	students    studentBackend
	history     historyBackend
	enrollments enrollmentBackend
	ping        pingFunc
}

// openBackend selects the ledger backend. The memory backend serves a single
// process and loses its state on exit.
func openBackend(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*backend, func(), error) {
	if cfg.Enrollment.Store == config.StorePostgres {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return &backend{
			sections:    repository.NewSectionRepository(db),
			holds:       repository.NewHoldRepository(db),
			students:    repository.NewStudentRepository(db),
			history:     repository.NewAcademicHistoryRepository(db),
			enrollments: repository.NewEnrollmentRepository(db),
			ping:        db.PingContext,
		}, func() { _ = db.Close() }, nil
	}

	store := repository.NewMemoryStore()
	if cfg.Enrollment.SeedFile != "" {
		sections, students, err := repository.LoadSeedFile(store, cfg.Enrollment.SeedFile, cfg.Enrollment.DefaultMaxCredits)
		if err != nil {
			return nil, nil, err
		}
		logr.Info("memory store seeded", zap.String("file", cfg.Enrollment.SeedFile), zap.Int("sections", sections), zap.Int("students", students))
	} else {
		logr.Warn("memory store started empty; set ENROLLMENT_SEED_FILE to load sections and students")
	}
	return &backend{
		sections:    store.Sections(),
		holds:       store.Holds(),
		students:    store.Students(),
		history:     store.History(),
		enrollments: store.Enrollments(),
	}, func() {}, nil
}
