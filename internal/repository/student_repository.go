package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// StudentRepository reads student credit loads. Credit totals are only
// written through ledger commits.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindLoad returns the student's credit load.
func (r *StudentRepository) FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error) {
	const query = `SELECT id, full_name, email, max_credits, credits_enrolled FROM students WHERE id = $1`
	var load models.StudentLoad
	if err := r.db.GetContext(ctx, &load, query, studentID); err != nil {
		return nil, err
	}
	return &load, nil
}

// ListLoads returns every student's credit load.
func (r *StudentRepository) ListLoads(ctx context.Context) ([]models.StudentLoad, error) {
	const query = `SELECT id, full_name, email, max_credits, credits_enrolled FROM students ORDER BY id`
	var loads []models.StudentLoad
	if err := r.db.SelectContext(ctx, &loads, query); err != nil {
		return nil, fmt.Errorf("list student loads: %w", err)
	}
	return loads, nil
}

// AcademicHistoryRepository answers prerequisite queries.
type AcademicHistoryRepository struct {
	db *sqlx.DB
}

// NewAcademicHistoryRepository instantiates the repository.
func NewAcademicHistoryRepository(db *sqlx.DB) *AcademicHistoryRepository {
	return &AcademicHistoryRepository{db: db}
}

// HasCompleted reports whether the student completed the course in any term.
func (r *AcademicHistoryRepository) HasCompleted(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM completed_courses WHERE student_id = $1 AND UPPER(course_code) = UPPER($2))`
	var completed bool
	if err := r.db.GetContext(ctx, &completed, query, studentID, courseCode); err != nil {
		return false, fmt.Errorf("check completed course: %w", err)
	}
	return completed, nil
}
