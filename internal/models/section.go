package models

import (
	"time"

	"github.com/lib/pq"
)

// Section is one scheduled offering of a course with a seat capacity.
// Descriptor fields are immutable; Capacity and SeatsTaken are the only
// mutable columns.
type Section struct {
	ID            string         `db:"id" json:"id"`
	CourseCode    string         `db:"course_code" json:"course_code"`
	CourseTitle   string         `db:"course_title" json:"course_title"`
	TermID        string         `db:"term_id" json:"term_id"`
	Credits       int            `db:"credits" json:"credits"`
	Schedule      string         `db:"schedule" json:"schedule"`
	Room          string         `db:"room" json:"room"`
	Prerequisites pq.StringArray `db:"prerequisites" json:"prerequisites"`
	Capacity      int            `db:"capacity" json:"capacity"`
	SeatsTaken    int            `db:"seats_taken" json:"seats_taken"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// HasOpenSeat reports whether a seat can be claimed right now.
func (s Section) HasOpenSeat() bool {
	return s.SeatsTaken < s.Capacity
}

// OpenSeats returns the number of unclaimed seats, never negative.
func (s Section) OpenSeats() int {
	if s.SeatsTaken >= s.Capacity {
		return 0
	}
	return s.Capacity - s.SeatsTaken
}

// SectionFilter narrows catalog listings.
type SectionFilter struct {
	TermID     string
	CourseCode string
	OpenOnly   bool
	Page       int
	PageSize   int
}

// SectionAvailability is the display view of a section's seats and waitlist.
// It is not linearizable with in-flight registrations.
type SectionAvailability struct {
	SectionID      string    `json:"section_id"`
	Capacity       int       `json:"capacity"`
	SeatsTaken     int       `json:"seats_taken"`
	OpenSeats      int       `json:"open_seats"`
	WaitlistLength int       `json:"waitlist_length"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// UpdateCapacityRequest adjusts a section's seat capacity.
type UpdateCapacityRequest struct {
	Capacity int `json:"capacity" validate:"gte=0"`
}
