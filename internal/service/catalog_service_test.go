package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/sis-registrar-api/pkg/errors"
)

type mapCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{items: map[string][]byte{}}
}

func (r *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = raw
	return nil
}

func (r *mapCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.items, key)
	}
	return nil
}

func TestCatalogAvailabilityIsCachedAndInvalidatedByEngine(t *testing.T) {
	f := newRegistrarFixture(t)
	f.section("sec-1", 1, 3)
	f.student("A", 18)
	f.student("B", 18)

	metrics := NewMetricsService()
	cache := NewCacheService(newMapCacheRepo(), metrics, time.Minute, nil, true)
	f.engine.cache = cache
	catalog := NewCatalogService(f.store.Sections(), f.store.Enrollments(), f.engine, cache, time.Minute, nil, nil)

	first, err := catalog.Availability(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.OpenSeats)

	second, err := catalog.Availability(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt.Unix(), second.GeneratedAt.Unix())
	assert.Greater(t, metrics.Snapshot().CacheHitRatio, 0.0)

	f.enroll(t, "A", "sec-1")
	f.enroll(t, "B", "sec-1")

	third, err := catalog.Availability(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Zero(t, third.OpenSeats)
	assert.Equal(t, 1, third.SeatsTaken)
	assert.Equal(t, 1, third.WaitlistLength)
}

func TestCatalogListAndLookup(t *testing.T) {
	store := repository.NewMemoryStore()
	store.PutSection(models.Section{ID: "s1", CourseCode: "CS101", TermID: "2026FA", Capacity: 1, SeatsTaken: 1})
	store.PutSection(models.Section{ID: "s2", CourseCode: "CS102", TermID: "2026FA", Capacity: 5})
	store.PutSection(models.Section{ID: "s3", CourseCode: "CS103", TermID: "2027SP", Capacity: 5})
	catalog := NewCatalogService(store.Sections(), store.Enrollments(), nil, nil, 0, nil, nil)

	sections, page, err := catalog.List(context.Background(), models.SectionFilter{TermID: "2026FA", OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "s2", sections[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.Page)

	open, err := catalog.HasOpenSeat(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, open)

	_, err = catalog.GetSection(context.Background(), "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = catalog.UpdateCapacity(context.Background(), "missing", models.UpdateCapacityRequest{Capacity: 3})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = catalog.UpdateCapacity(context.Background(), "s2", models.UpdateCapacityRequest{Capacity: -1})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}
