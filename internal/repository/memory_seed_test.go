package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedAppliesDefaultsAndIgnoresCounters(t *testing.T) {
	store := NewMemoryStore()
	raw := `{
		"sections": [{"id": "sec-1", "course_code": "CS201", "credits": 4, "capacity": 30, "seats_taken": 12, "prerequisites": ["CS101"]}],
		"students": [
			{"id": "stu-1", "full_name": "Ada", "email": "ada@example.edu", "completed_courses": ["cs101"]},
			{"id": "stu-2", "max_credits": 12}
		]
	}`

	sections, students, err := LoadSeed(store, strings.NewReader(raw), 18)
	require.NoError(t, err)
	assert.Equal(t, 1, sections)
	assert.Equal(t, 2, students)

	ctx := context.Background()
	section, err := store.Sections().FindByID(ctx, "sec-1")
	require.NoError(t, err)
	assert.Zero(t, section.SeatsTaken)
	assert.Equal(t, []string{"CS101"}, []string(section.Prerequisites))

	load, err := store.Students().FindLoad(ctx, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 18, load.MaxCredits)
	other, err := store.Students().FindLoad(ctx, "stu-2")
	require.NoError(t, err)
	assert.Equal(t, 12, other.MaxCredits)

	done, err := store.History().HasCompleted(ctx, "stu-1", "CS101")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestLoadSeedRejectsIncompleteRecords(t *testing.T) {
	_, _, err := LoadSeed(NewMemoryStore(), strings.NewReader(`{"students":[{"full_name":"nobody"}]}`), 18)
	require.Error(t, err)

	_, _, err = LoadSeed(NewMemoryStore(), strings.NewReader(`{`), 18)
	require.Error(t, err)
}
