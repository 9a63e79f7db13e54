package models

import (
	"errors"
	"time"
)

// Ledger integrity errors. The ledger performs no business validation; these
// signal that a commit would break referential or counter integrity.
var (
	ErrDuplicateActiveEnrollment = errors.New("student already has a non-dropped enrollment in section")
	ErrSeatBounds                = errors.New("seat counter out of bounds")
	ErrCreditBounds              = errors.New("credit total out of bounds")
	ErrStaleTransition           = errors.New("enrollment changed state concurrently")
	ErrUnknownReference          = errors.New("referenced section or student does not exist")
)

// StateTransition moves an existing enrollment from one status to another.
// The commit fails with ErrStaleTransition if the stored status is not From.
type StateTransition struct {
	EnrollmentID string
	From         EnrollmentStatus
	To           EnrollmentStatus
	At           time.Time
	DropReason   *DropReason
}

// LedgerBatch is the complete set of writes for one atomic engine step.
// A commit applies all of it or none of it.
type LedgerBatch struct {
	Inserts      []*Enrollment
	Transitions  []StateTransition
	SeatDeltas   map[string]int
	CreditDeltas map[string]int
	Events       []EnrollmentEvent
}

// NewLedgerBatch returns an empty batch.
func NewLedgerBatch() *LedgerBatch {
	return &LedgerBatch{SeatDeltas: map[string]int{}, CreditDeltas: map[string]int{}}
}

// AddSeats records a seat counter change for a section.
func (b *LedgerBatch) AddSeats(sectionID string, delta int) {
	b.SeatDeltas[sectionID] += delta
}

// AddCredits records a credit total change for a student.
func (b *LedgerBatch) AddCredits(studentID string, delta int) {
	b.CreditDeltas[studentID] += delta
}

// Empty reports whether the batch carries no writes.
func (b *LedgerBatch) Empty() bool {
	return len(b.Inserts) == 0 && len(b.Transitions) == 0 && len(b.Events) == 0
}
