package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type holdStoreStub struct {
	holds   map[string]*models.Hold
	listErr error
}

func newHoldStoreStub() *holdStoreStub {
	return &holdStoreStub{holds: map[string]*models.Hold{}}
}

func (s *holdStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Hold
	for _, h := range s.holds {
		if h.StudentID == studentID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *holdStoreStub) FindByID(ctx context.Context, id string) (*models.Hold, error) {
	h, ok := s.holds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *h
	return &clone, nil
}

func (s *holdStoreStub) Create(ctx context.Context, hold *models.Hold) error {
	clone := *hold
	s.holds[hold.ID] = &clone
	return nil
}

func (s *holdStoreStub) Clear(ctx context.Context, id, clearedBy string, at time.Time) error {
	h, ok := s.holds[id]
	if !ok {
		return sql.ErrNoRows
	}
	if h.ClearedAt == nil {
		h.ClearedAt = &at
		h.ClearedBy = &clearedBy
	}
	return nil
}

type studentLoadStub map[string]models.StudentLoad

func (s studentLoadStub) FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error) {
	load, ok := s[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &load, nil
}

func newTestHoldService(store *holdStoreStub) *HoldService {
	svc := NewHoldService(store, studentLoadStub{"stu": {StudentID: "stu", MaxCredits: 18}}, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestHoldServiceHasBlockingHold(t *testing.T) {
	store := newHoldStoreStub()
	svc := newTestHoldService(store)
	past := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	by := "registrar"

	store.holds["expired"] = &models.Hold{ID: "expired", StudentID: "stu", PreventsRegistration: true, ExpiresAt: &past}
	store.holds["cleared"] = &models.Hold{ID: "cleared", StudentID: "stu", PreventsRegistration: true, ClearedAt: &past, ClearedBy: &by}
	store.holds["info"] = &models.Hold{ID: "info", StudentID: "stu", PreventsRegistration: false}

	blocked, err := svc.HasBlockingHold(context.Background(), "stu")
	require.NoError(t, err)
	assert.False(t, blocked)

	store.holds["bursar"] = &models.Hold{ID: "bursar", StudentID: "stu", PreventsRegistration: true, ExpiresAt: &future}
	blocked, err = svc.HasBlockingHold(context.Background(), "stu")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = svc.HasBlockingHold(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestHoldServiceLookupFailureIsReported(t *testing.T) {
	store := newHoldStoreStub()
	store.listErr = errors.New("connection reset")
	svc := newTestHoldService(store)

	_, err := svc.HasBlockingHold(context.Background(), "stu")
	require.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestHoldServicePlaceAndClear(t *testing.T) {
	store := newHoldStoreStub()
	svc := newTestHoldService(store)

	hold, err := svc.Place(context.Background(), "stu", models.PlaceHoldRequest{
		Type: models.HoldTypeAcademic, PreventsRegistration: true, Reason: "probation", PlacedBy: "dean",
	})
	require.NoError(t, err)
	assert.Equal(t, models.HoldSeverityMedium, hold.Severity)
	assert.Equal(t, svc.now(), hold.PlacedAt)

	active, err := svc.List(context.Background(), "stu", true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	cleared, err := svc.Clear(context.Background(), hold.ID, models.ClearHoldRequest{ClearedBy: "dean"})
	require.NoError(t, err)
	require.NotNil(t, cleared.ClearedAt)
	assert.Equal(t, "dean", *cleared.ClearedBy)

	again, err := svc.Clear(context.Background(), hold.ID, models.ClearHoldRequest{ClearedBy: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "dean", *again.ClearedBy)

	active, err = svc.List(context.Background(), "stu", true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.List(context.Background(), "stu", false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestHoldServicePlaceValidation(t *testing.T) {
	svc := newTestHoldService(newHoldStoreStub())

	_, err := svc.Place(context.Background(), "stu", models.PlaceHoldRequest{Type: "PARKING", PlacedBy: "x"})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Place(context.Background(), "ghost", models.PlaceHoldRequest{Type: models.HoldTypeFinancial, PlacedBy: "bursar"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Clear(context.Background(), "missing", models.ClearHoldRequest{ClearedBy: "x"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
