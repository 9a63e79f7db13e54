package models

import "time"

// EnrollmentEvent is emitted on every enrollment state transition. Delivery
// is at-least-once; consumers de-duplicate on DedupKey.
type EnrollmentEvent struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	SectionID    string           `db:"section_id" json:"section_id"`
	OldState     EnrollmentStatus `db:"old_state" json:"old_state"`
	NewState     EnrollmentStatus `db:"new_state" json:"new_state"`
	OccurredAt   time.Time        `db:"occurred_at" json:"timestamp"`
	PublishedAt  *time.Time       `db:"published_at" json:"-"`
}

// DedupKey identifies the transition for consumer-side de-duplication.
func (e EnrollmentEvent) DedupKey() string {
	return e.EnrollmentID + ":" + string(e.NewState)
}
