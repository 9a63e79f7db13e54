package models

// StudentLoad is the registration-relevant slice of a student profile.
type StudentLoad struct {
	StudentID       string `db:"id" json:"student_id"`
	FullName        string `db:"full_name" json:"full_name"`
	Email           string `db:"email" json:"email"`
	MaxCredits      int    `db:"max_credits" json:"max_credits"`
	CreditsEnrolled int    `db:"credits_enrolled" json:"credits_enrolled"`
}

// Remaining returns how many credits the student may still add.
func (l StudentLoad) Remaining() int {
	if l.CreditsEnrolled >= l.MaxCredits {
		return 0
	}
	return l.MaxCredits - l.CreditsEnrolled
}

// Fits reports whether adding credits keeps the student within the limit.
func (l StudentLoad) Fits(credits int) bool {
	return l.CreditsEnrolled+credits <= l.MaxCredits
}

// CompletedCourse is one entry of a student's academic history.
type CompletedCourse struct {
	StudentID  string `db:"student_id" json:"student_id"`
	CourseCode string `db:"course_code" json:"course_code"`
	TermID     string `db:"term_id" json:"term_id"`
	Grade      string `db:"grade" json:"grade"`
}
