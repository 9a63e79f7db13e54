package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

const enrollmentColumns = `id, seq, student_id, section_id, status, credits, requested_at, confirmed_at, dropped_at, drop_reason`

// Postgres error codes the ledger translates into integrity errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// EnrollmentRepository is the Postgres enrollment ledger. It enforces
// referential and counter integrity only; business rules live in the engine.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns a student's enrollments in ledger order.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY seq`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListBySection returns a section's enrollments in ledger order.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE section_id = $1 ORDER BY seq`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// FindActive returns the non-dropped enrollment for a student+section pair, or nil.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status <> $3 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, sectionID, models.EnrollmentStatusDropped); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active enrollment: %w", err)
	}
	return &enrollment, nil
}

// ConfirmedCountForSection counts confirmed enrollments for a section.
func (r *EnrollmentRepository) ConfirmedCountForSection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusConfirmed); err != nil {
		return 0, fmt.Errorf("count confirmed enrollments: %w", err)
	}
	return count, nil
}

// CommittedCredits sums credits of a student's confirmed and pending enrollments.
func (r *EnrollmentRepository) CommittedCredits(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COALESCE(SUM(credits), 0) FROM enrollments WHERE student_id = $1 AND status IN ($2, $3)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID, models.EnrollmentStatusConfirmed, models.EnrollmentStatusPending); err != nil {
		return 0, fmt.Errorf("sum committed credits: %w", err)
	}
	return total, nil
}

// Waitlist returns a section's waitlisted enrollments in line order.
func (r *EnrollmentRepository) Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE section_id = $1 AND status = $2 ORDER BY requested_at ASC, seq ASC`
	var waitlist []models.Enrollment
	if err := r.db.SelectContext(ctx, &waitlist, query, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return waitlist, nil
}

// EarliestWaitlisted returns the head of a section's waitlist, or nil.
func (r *EnrollmentRepository) EarliestWaitlisted(ctx context.Context, sectionID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE section_id = $1 AND status = $2 ORDER BY requested_at ASC, seq ASC LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("earliest waitlisted: %w", err)
	}
	return &enrollment, nil
}

// ListUnpublishedEvents returns outbox events older than the cutoff that were never published.
func (r *EnrollmentRepository) ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]models.EnrollmentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id, enrollment_id, student_id, section_id, old_state, new_state, occurred_at, published_at
        FROM enrollment_events WHERE published_at IS NULL AND occurred_at < $1 ORDER BY occurred_at ASC LIMIT $2`
	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, before, limit); err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return events, nil
}

// MarkEventPublished stamps an outbox event as delivered.
func (r *EnrollmentRepository) MarkEventPublished(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE enrollment_events SET published_at = COALESCE(published_at, $2) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// Commit applies a ledger batch in a single transaction: state transitions,
// inserts, seat and credit counters, then outbox events.
func (r *EnrollmentRepository) Commit(ctx context.Context, batch *models.LedgerBatch) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, tr := range batch.Transitions {
		if err = applyTransition(ctx, tx, tr); err != nil {
			return err
		}
	}

	for _, e := range batch.Inserts {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		const insert = `INSERT INTO enrollments (id, student_id, section_id, status, credits, requested_at, confirmed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`
		if err = tx.QueryRowxContext(ctx, insert, e.ID, e.StudentID, e.SectionID, e.Status, e.Credits, e.RequestedAt, e.ConfirmedAt).Scan(&e.Seq); err != nil {
			err = translatePQError(fmt.Sprintf("insert enrollment %s/%s", e.StudentID, e.SectionID), err)
			return err
		}
	}

	for _, sectionID := range sortedKeys(batch.SeatDeltas) {
		delta := batch.SeatDeltas[sectionID]
		if delta == 0 {
			continue
		}
		const seats = `UPDATE sections SET seats_taken = seats_taken + $2, updated_at = NOW()
        WHERE id = $1 AND seats_taken + $2 >= 0 AND seats_taken + $2 <= capacity`
		if err = expectOneRow(tx.ExecContext(ctx, seats, sectionID, delta)); err != nil {
			err = boundsError(fmt.Sprintf("section %s seats %+d", sectionID, delta), err, models.ErrSeatBounds)
			return err
		}
	}

	for _, studentID := range sortedKeys(batch.CreditDeltas) {
		delta := batch.CreditDeltas[studentID]
		if delta == 0 {
			continue
		}
		const credits = `UPDATE students SET credits_enrolled = credits_enrolled + $2
        WHERE id = $1 AND credits_enrolled + $2 >= 0 AND ($2 <= 0 OR credits_enrolled + $2 <= max_credits)`
		if err = expectOneRow(tx.ExecContext(ctx, credits, studentID, delta)); err != nil {
			err = boundsError(fmt.Sprintf("student %s credits %+d", studentID, delta), err, models.ErrCreditBounds)
			return err
		}
	}

	for i := range batch.Events {
		if batch.Events[i].ID == "" {
			batch.Events[i].ID = uuid.NewString()
		}
		const event = `INSERT INTO enrollment_events (id, enrollment_id, student_id, section_id, old_state, new_state, occurred_at)
        VALUES (:id, :enrollment_id, :student_id, :section_id, :old_state, :new_state, :occurred_at)`
		if _, err = tx.NamedExecContext(ctx, event, batch.Events[i]); err != nil {
			err = fmt.Errorf("insert enrollment event: %w", err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func applyTransition(ctx context.Context, tx *sqlx.Tx, tr models.StateTransition) error {
	var (
		res sql.Result
		err error
	)
	switch tr.To {
	case models.EnrollmentStatusConfirmed:
		res, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $3, confirmed_at = $4 WHERE id = $1 AND status = $2`,
			tr.EnrollmentID, tr.From, tr.To, tr.At)
	case models.EnrollmentStatusDropped:
		res, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $3, dropped_at = $4, drop_reason = $5 WHERE id = $1 AND status = $2`,
			tr.EnrollmentID, tr.From, tr.To, tr.At, tr.DropReason)
	default:
		res, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $3 WHERE id = $1 AND status = $2`,
			tr.EnrollmentID, tr.From, tr.To)
	}
	if err := expectOneRow(res, err); err != nil {
		if errors.Is(err, errNoRowAffected) {
			return fmt.Errorf("transition %s %s->%s: %w", tr.EnrollmentID, tr.From, tr.To, models.ErrStaleTransition)
		}
		return translatePQError("transition enrollment "+tr.EnrollmentID, err)
	}
	return nil
}

var errNoRowAffected = errors.New("no row affected")

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return errNoRowAffected
	}
	return nil
}

func boundsError(op string, err, bounds error) error {
	if errors.Is(err, errNoRowAffected) {
		return fmt.Errorf("%s: %w", op, bounds)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func translatePQError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateActiveEnrollment)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, models.ErrUnknownReference)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w", op, models.ErrSeatBounds)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
