package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

var holdRowColumns = []string{"id", "student_id", "type", "severity", "prevents_registration", "reason", "placed_by", "placed_at", "expires_at", "cleared_at", "cleared_by"}

func TestHoldRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHoldRepository(db)

	placed := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	cleared := placed.Add(24 * time.Hour)
	rows := sqlmock.NewRows(holdRowColumns).
		AddRow("hold-2", "stu-1", "ACADEMIC", "LOW", false, "advising", "advisor", placed.Add(time.Hour), nil, nil, nil).
		AddRow("hold-1", "stu-1", "FINANCIAL", "HIGH", true, "unpaid tuition", "bursar", placed, nil, cleared, "bursar")
	mock.ExpectQuery(regexp.QuoteMeta("FROM holds WHERE student_id = $1 ORDER BY placed_at DESC")).
		WithArgs("stu-1").
		WillReturnRows(rows)

	holds, err := repo.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, models.HoldTypeAcademic, holds[0].Type)
	assert.Nil(t, holds[0].ClearedAt)
	require.NotNil(t, holds[1].ClearedBy)
	assert.Equal(t, "bursar", *holds[1].ClearedBy)
	assert.False(t, holds[1].Active(cleared.Add(time.Minute)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHoldRepository(db)

	mock.ExpectExec("INSERT INTO holds").WillReturnResult(sqlmock.NewResult(0, 1))

	hold := &models.Hold{StudentID: "stu-1", Type: models.HoldTypeFinancial, Severity: models.HoldSeverityHigh, PreventsRegistration: true, Reason: "unpaid", PlacedBy: "bursar"}
	require.NoError(t, repo.Create(context.Background(), hold))
	assert.NotEmpty(t, hold.ID)
	assert.False(t, hold.PlacedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHoldRepositoryClearMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewHoldRepository(db)

	at := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE holds SET cleared_at = COALESCE(cleared_at, $2)")).
		WithArgs("hold-x", at, "registrar").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Clear(context.Background(), "hold-x", "registrar", at)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
