package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type holdStore interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Hold, error)
	FindByID(ctx context.Context, id string) (*models.Hold, error)
	Create(ctx context.Context, hold *models.Hold) error
	Clear(ctx context.Context, id, clearedBy string, at time.Time) error
}

type studentLoadReader interface {
	FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error)
}

// HoldService is the hold registry: it answers whether a student may
// register and records holds placed and cleared by administrative offices.
type HoldService struct {
	repo      holdStore
	students  studentLoadReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewHoldService constructs a HoldService.
func NewHoldService(repo holdStore, students studentLoadReader, validate *validator.Validate, logger *zap.Logger) *HoldService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoldService{
		repo:      repo,
		students:  students,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HasBlockingHold reports whether the student has any active hold that
// prevents registration. An unknown student has no holds. Lookup failures are
// returned so the caller aborts instead of registering past a hold it could
// not read.
func (s *HoldService) HasBlockingHold(ctx context.Context, studentID string) (bool, error) {
	holds, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read holds")
	}
	now := s.now()
	for _, hold := range holds {
		if hold.BlocksRegistration(now) {
			return true, nil
		}
	}
	return false, nil
}

// List returns a student's holds; activeOnly filters out cleared and expired ones.
func (s *HoldService) List(ctx context.Context, studentID string, activeOnly bool) ([]models.Hold, error) {
	holds, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list holds")
	}
	if !activeOnly {
		return holds, nil
	}
	now := s.now()
	active := make([]models.Hold, 0, len(holds))
	for _, hold := range holds {
		if hold.Active(now) {
			active = append(active, hold)
		}
	}
	return active, nil
}

// Place records a new hold for a known student.
func (s *HoldService) Place(ctx context.Context, studentID string, req models.PlaceHoldRequest) (*models.Hold, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid hold payload")
	}
	if _, err := s.students.FindLoad(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	severity := req.Severity
	if severity == "" {
		severity = models.HoldSeverityMedium
	}
	hold := &models.Hold{
		ID:                   uuid.NewString(),
		StudentID:            studentID,
		Type:                 req.Type,
		Severity:             severity,
		PreventsRegistration: req.PreventsRegistration,
		Reason:               req.Reason,
		PlacedBy:             req.PlacedBy,
		PlacedAt:             s.now(),
		ExpiresAt:            req.ExpiresAt,
	}
	if err := s.repo.Create(ctx, hold); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place hold")
	}
	s.logger.Info("hold placed",
		zap.String("hold_id", hold.ID),
		zap.String("student_id", studentID),
		zap.String("type", string(hold.Type)),
		zap.Bool("prevents_registration", hold.PreventsRegistration),
	)
	return hold, nil
}

// Clear lifts a hold. Clearing an already cleared hold returns it unchanged.
func (s *HoldService) Clear(ctx context.Context, holdID string, req models.ClearHoldRequest) (*models.Hold, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clear payload")
	}
	if err := s.repo.Clear(ctx, holdID, req.ClearedBy, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "hold not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear hold")
	}
	hold, err := s.repo.FindByID(ctx, holdID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load hold")
	}
	s.logger.Info("hold cleared", zap.String("hold_id", holdID), zap.String("cleared_by", req.ClearedBy))
	return hold, nil
}
