package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const sectionColumns = `id, course_code, course_title, term_id, credits, schedule, room, prerequisites, capacity, seats_taken, created_at, updated_at`

// SectionRepository reads the section catalog from Postgres.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.CourseCode != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(course_code) = UPPER($%d)", len(args)+1))
		args = append(args, filter.CourseCode)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "seats_taken < capacity")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM sections%s ORDER BY course_code ASC, id ASC LIMIT %d OFFSET %d`, sectionColumns, clause, size, offset)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sections"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// UpdateCapacity changes a section's capacity, refusing values below the seats already taken.
func (r *SectionRepository) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	const query = `UPDATE sections SET capacity = $2, updated_at = NOW() WHERE id = $1 AND seats_taken <= $2`
	res, err := r.db.ExecContext(ctx, query, id, capacity)
	if err != nil {
		return fmt.Errorf("update section capacity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update section capacity: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM sections WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("check section: %w", err)
	}
	return fmt.Errorf("update capacity %s: %w", id, models.ErrSeatBounds)
}
