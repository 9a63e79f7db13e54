package models

import "time"

// RegistrarMetrics is a lightweight snapshot of engine and HTTP counters.
type RegistrarMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	EnrollmentOutcomes       map[string]uint64 `json:"enrollment_outcomes"`
	Promotions               uint64            `json:"promotions"`
	ContentionTotal          uint64            `json:"contention_total"`
	InvariantViolations      uint64            `json:"invariant_violations"`
	EventsDelivered          uint64            `json:"events_delivered"`
	EventsFailed             uint64            `json:"events_failed"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
