package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. DROPPED is terminal.
const (
	EnrollmentStatusPending    EnrollmentStatus = "PENDING"
	EnrollmentStatusConfirmed  EnrollmentStatus = "CONFIRMED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
)

// CountsTowardLoad reports whether the status contributes to a student's credit total.
func (s EnrollmentStatus) CountsTowardLoad() bool {
	return s == EnrollmentStatusConfirmed || s == EnrollmentStatusPending
}

// DropReason records who ended an enrollment.
type DropReason string

// Drop reasons.
const (
	DropReasonStudent        DropReason = "STUDENT"
	DropReasonAdministrative DropReason = "ADMINISTRATIVE"
)

// Enrollment relates one student to one section.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	Seq         int64            `db:"seq" json:"seq"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Credits     int              `db:"credits" json:"credits"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	ConfirmedAt *time.Time       `db:"confirmed_at" json:"confirmed_at,omitempty"`
	DroppedAt   *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	DropReason  *DropReason      `db:"drop_reason" json:"drop_reason,omitempty"`
}

// Active reports whether the enrollment still occupies the student+section pair.
func (e Enrollment) Active() bool {
	return e.Status != EnrollmentStatusDropped
}

// WaitlistBefore orders waitlist entries first-come-first-served; ties on
// requested_at fall back to the ledger sequence, never to student identity.
func (e Enrollment) WaitlistBefore(other Enrollment) bool {
	if !e.RequestedAt.Equal(other.RequestedAt) {
		return e.RequestedAt.Before(other.RequestedAt)
	}
	return e.Seq < other.Seq
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	// RequestedAt is assigned by the engine clock when zero. Only trusted
	// callers (imports, tests) set it explicitly.
	RequestedAt time.Time `json:"-"`
}

// DropRequest describes a drop or administrative withdrawal.
type DropRequest struct {
	EnrollmentID string     `json:"enrollment_id" validate:"required"`
	Reason       DropReason `json:"reason" validate:"omitempty,oneof=STUDENT ADMINISTRATIVE"`
}

// DropResult reports a drop together with any waitlist promotions it caused.
type DropResult struct {
	Dropped  Enrollment   `json:"dropped"`
	Promoted []Enrollment `json:"promoted,omitempty"`
}

// WaitlistPosition is the display view of a waitlisted enrollment's place in line.
type WaitlistPosition struct {
	EnrollmentID string `json:"enrollment_id"`
	SectionID    string `json:"section_id"`
	Position     int    `json:"position"`
	Length       int    `json:"length"`
}
