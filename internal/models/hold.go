package models

import "time"

// HoldType classifies the office that placed a hold.
type HoldType string

// Known hold types.
const (
	HoldTypeFinancial      HoldType = "FINANCIAL"
	HoldTypeAcademic       HoldType = "ACADEMIC"
	HoldTypeAdministrative HoldType = "ADMINISTRATIVE"
	HoldTypeHealth         HoldType = "HEALTH"
	HoldTypeDisciplinary   HoldType = "DISCIPLINARY"
)

// HoldSeverity ranks holds for display.
type HoldSeverity string

// Known hold severities.
const (
	HoldSeverityLow    HoldSeverity = "LOW"
	HoldSeverityMedium HoldSeverity = "MEDIUM"
	HoldSeverityHigh   HoldSeverity = "HIGH"
)

// Hold is an administrative flag restricting a student's actions.
type Hold struct {
	ID                   string       `db:"id" json:"id"`
	StudentID            string       `db:"student_id" json:"student_id"`
	Type                 HoldType     `db:"type" json:"type"`
	Severity             HoldSeverity `db:"severity" json:"severity"`
	PreventsRegistration bool         `db:"prevents_registration" json:"prevents_registration"`
	Reason               string       `db:"reason" json:"reason"`
	PlacedBy             string       `db:"placed_by" json:"placed_by"`
	PlacedAt             time.Time    `db:"placed_at" json:"placed_at"`
	ExpiresAt            *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	ClearedAt            *time.Time   `db:"cleared_at" json:"cleared_at,omitempty"`
	ClearedBy            *string      `db:"cleared_by" json:"cleared_by,omitempty"`
}

// Active reports whether the hold is uncleared and unexpired at now.
func (h Hold) Active(now time.Time) bool {
	if h.ClearedAt != nil {
		return false
	}
	return h.ExpiresAt == nil || h.ExpiresAt.After(now)
}

// BlocksRegistration reports whether the hold prevents new enrollments at now.
func (h Hold) BlocksRegistration(now time.Time) bool {
	return h.PreventsRegistration && h.Active(now)
}

// PlaceHoldRequest describes a new hold.
type PlaceHoldRequest struct {
	Type                 HoldType     `json:"type" validate:"required,oneof=FINANCIAL ACADEMIC ADMINISTRATIVE HEALTH DISCIPLINARY"`
	Severity             HoldSeverity `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	PreventsRegistration bool         `json:"prevents_registration"`
	Reason               string       `json:"reason" validate:"max=500"`
	PlacedBy             string       `json:"placed_by" validate:"required"`
	ExpiresAt            *time.Time   `json:"expires_at"`
}

// ClearHoldRequest records who lifted a hold.
type ClearHoldRequest struct {
	ClearedBy string `json:"cleared_by" validate:"required"`
}
