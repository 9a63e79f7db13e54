package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type sectionStore interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	UpdateCapacity(ctx context.Context, id string, capacity int) error
}

type waitlistReader interface {
	Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

type seatFiller interface {
	FillOpenSeats(ctx context.Context, sectionID string) ([]models.Enrollment, error)
}

func availabilityCacheKey(sectionID string) string {
	return "registrar:availability:" + sectionID
}

// CapacityChange reports a capacity edit and the promotions it released.
type CapacityChange struct {
	Section  *models.Section     `json:"section"`
	Promoted []models.Enrollment `json:"promoted"`
}

// CatalogService serves the section catalog and its display views.
type CatalogService struct {
	repo      sectionStore
	waitlists waitlistReader
	filler    seatFiller
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCatalogService constructs a CatalogService. filler may be nil, in which
// case capacity increases leave the waitlist for the next drop to drain.
func NewCatalogService(repo sectionStore, waitlists waitlistReader, filler seatFiller, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		repo:      repo,
		waitlists: waitlists,
		filler:    filler,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetSection returns a section or NOT_FOUND.
func (s *CatalogService) GetSection(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// HasOpenSeat reports seats_taken < capacity from a snapshot read.
func (s *CatalogService) HasOpenSeat(ctx context.Context, id string) (bool, error) {
	section, err := s.GetSection(ctx, id)
	if err != nil {
		return false, err
	}
	return section.HasOpenSeat(), nil
}

// List returns a page of sections.
func (s *CatalogService) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Availability returns seat and waitlist counts for display. Results may be
// served from cache and lag in-flight registrations.
func (s *CatalogService) Availability(ctx context.Context, id string) (*models.SectionAvailability, error) {
	key := availabilityCacheKey(id)
	var cached models.SectionAvailability
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	section, err := s.GetSection(ctx, id)
	if err != nil {
		return nil, err
	}
	waitlist, err := s.waitlists.Waitlist(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist")
	}
	availability := &models.SectionAvailability{
		SectionID:      section.ID,
		Capacity:       section.Capacity,
		SeatsTaken:     section.SeatsTaken,
		OpenSeats:      section.OpenSeats(),
		WaitlistLength: len(waitlist),
		GeneratedAt:    s.now(),
	}
	_ = s.cache.Set(ctx, key, availability, s.cacheTTL)
	return availability, nil
}

// UpdateCapacity changes a section's capacity. Capacity cannot fall below the
// seats already taken; an increase immediately promotes from the waitlist.
func (s *CatalogService) UpdateCapacity(ctx context.Context, id string, req models.UpdateCapacityRequest) (*CapacityChange, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}
	if err := s.repo.UpdateCapacity(ctx, id, req.Capacity); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		case errors.Is(err, models.ErrSeatBounds):
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "capacity cannot be lower than seats already taken")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update capacity")
		}
	}
	_ = s.cache.Invalidate(ctx, availabilityCacheKey(id))
	s.logger.Info("section capacity updated", zap.String("section_id", id), zap.Int("capacity", req.Capacity))

	change := &CapacityChange{Promoted: []models.Enrollment{}}
	if s.filler != nil {
		promoted, err := s.filler.FillOpenSeats(ctx, id)
		if err != nil {
			return nil, err
		}
		change.Promoted = promoted
	}
	section, err := s.GetSection(ctx, id)
	if err != nil {
		return nil, err
	}
	change.Section = section
	return change, nil
}
