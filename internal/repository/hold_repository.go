package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const holdColumns = `id, student_id, type, severity, prevents_registration, reason, placed_by, placed_at, expires_at, cleared_at, cleared_by`

// HoldRepository persists registration holds.
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository constructs the repository.
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// ListByStudent returns every hold for a student, newest first.
func (r *HoldRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE student_id = $1 ORDER BY placed_at DESC`
	var holds []models.Hold
	if err := r.db.SelectContext(ctx, &holds, query, studentID); err != nil {
		return nil, fmt.Errorf("list student holds: %w", err)
	}
	return holds, nil
}

// FindByID returns a hold by ID.
func (r *HoldRepository) FindByID(ctx context.Context, id string) (*models.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`
	var hold models.Hold
	if err := r.db.GetContext(ctx, &hold, query, id); err != nil {
		return nil, err
	}
	return &hold, nil
}

// Create persists a new hold.
func (r *HoldRepository) Create(ctx context.Context, hold *models.Hold) error {
	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	if hold.PlacedAt.IsZero() {
		hold.PlacedAt = time.Now().UTC()
	}
	const query = `INSERT INTO holds (` + holdColumns + `)
        VALUES (:id, :student_id, :type, :severity, :prevents_registration, :reason, :placed_by, :placed_at, :expires_at, :cleared_at, :cleared_by)`
	if _, err := r.db.NamedExecContext(ctx, query, hold); err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

// Clear marks a hold as cleared. Clearing twice keeps the first timestamp.
func (r *HoldRepository) Clear(ctx context.Context, id, clearedBy string, at time.Time) error {
	const query = `UPDATE holds SET cleared_at = COALESCE(cleared_at, $2), cleared_by = COALESCE(cleared_by, $3) WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, at, clearedBy)
	if err != nil {
		return fmt.Errorf("clear hold: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
