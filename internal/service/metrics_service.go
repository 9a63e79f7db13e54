package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	outcomes        *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	contention      *prometheus.CounterVec
	invariants      *prometheus.CounterVec
	promotions      prometheus.Counter
	deliveries      *prometheus.CounterVec
	seatDrift       prometheus.Gauge
	creditDrift     prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	promotionCount       uint64
	contentionCount      uint64
	invariantCount       uint64
	deliveredCount       uint64
	failedCount          uint64

	outcomeMu     sync.Mutex
	outcomeCounts map[string]uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_cache_latency_seconds",
		Help:    "Latency for availability cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_cache_hits_total",
		Help: "Total availability cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_cache_misses_total",
		Help: "Total availability cache misses",
	})

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_operations_total",
		Help: "Engine operations by operation and outcome",
	}, []string{"operation", "outcome"})

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "registrar_lock_wait_seconds",
		Help:    "Time spent acquiring section and student locks",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2},
	}, []string{"operation"})

	contention := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_contention_total",
		Help: "Operations rejected as retryable contention",
	}, []string{"operation"})

	invariants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_invariant_violations_total",
		Help: "Detected seat or credit conservation violations",
	}, []string{"check"})

	promotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrar_waitlist_promotions_total",
		Help: "Waitlisted enrollments promoted to confirmed",
	})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_event_deliveries_total",
		Help: "Enrollment event deliveries by sink and result",
	}, []string{"sink", "result"})

	seatDrift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registrar_reconcile_seat_drift_sections",
		Help: "Sections whose seat counter disagrees with confirmed enrollments at the last reconciliation",
	})

	creditDrift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registrar_reconcile_credit_drift_students",
		Help: "Students whose credit total disagrees with committed enrollments at the last reconciliation",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		outcomes, lockWait, contention, invariants, promotions, deliveries, seatDrift, creditDrift, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		outcomes:        outcomes,
		lockWait:        lockWait,
		contention:      contention,
		invariants:      invariants,
		promotions:      promotions,
		deliveries:      deliveries,
		seatDrift:       seatDrift,
		creditDrift:     creditDrift,
		outcomeCounts:   make(map[string]uint64),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records availability cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// RecordOutcome counts an engine operation result, e.g. ("enroll", "CONFIRMED")
// or ("enroll", "HOLD_BLOCKED").
func (m *MetricsService) RecordOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
	m.outcomeMu.Lock()
	m.outcomeCounts[operation+":"+outcome]++
	m.outcomeMu.Unlock()
}

// ObserveLockWait records how long an operation waited for its locks.
func (m *MetricsService) ObserveLockWait(operation string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(operation).Observe(wait.Seconds())
}

// RecordContention counts a retryable contention rejection.
func (m *MetricsService) RecordContention(operation string) {
	if m == nil {
		return
	}
	m.contention.WithLabelValues(operation).Inc()
	atomic.AddUint64(&m.contentionCount, 1)
}

// RecordInvariantViolation counts a failed conservation check.
func (m *MetricsService) RecordInvariantViolation(check string) {
	if m == nil {
		return
	}
	m.invariants.WithLabelValues(check).Inc()
	atomic.AddUint64(&m.invariantCount, 1)
}

// RecordPromotions counts waitlist promotions.
func (m *MetricsService) RecordPromotions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.promotions.Add(float64(n))
	atomic.AddUint64(&m.promotionCount, uint64(n))
}

// RecordDelivery counts one event delivery attempt for a sink.
func (m *MetricsService) RecordDelivery(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.deliveries.WithLabelValues(sink, "error").Inc()
		atomic.AddUint64(&m.failedCount, 1)
		return
	}
	m.deliveries.WithLabelValues(sink, "ok").Inc()
	atomic.AddUint64(&m.deliveredCount, 1)
}

// SetReconcileDrift publishes the result of the last reconciliation run.
func (m *MetricsService) SetReconcileDrift(sections, students int) {
	if m == nil {
		return
	}
	m.seatDrift.Set(float64(sections))
	m.creditDrift.Set(float64(students))
}

// Snapshot returns aggregated metrics suitable for the admin endpoint.
func (m *MetricsService) Snapshot() models.RegistrarMetrics {
	if m == nil {
		return models.RegistrarMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.outcomeMu.Lock()
	outcomes := make(map[string]uint64, len(m.outcomeCounts))
	for k, v := range m.outcomeCounts {
		outcomes[k] = v
	}
	m.outcomeMu.Unlock()

	return models.RegistrarMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		EnrollmentOutcomes:       outcomes,
		Promotions:               atomic.LoadUint64(&m.promotionCount),
		ContentionTotal:          atomic.LoadUint64(&m.contentionCount),
		InvariantViolations:      atomic.LoadUint64(&m.invariantCount),
		EventsDelivered:          atomic.LoadUint64(&m.deliveredCount),
		EventsFailed:             atomic.LoadUint64(&m.failedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
