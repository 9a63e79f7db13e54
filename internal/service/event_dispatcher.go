package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/pkg/jobs"
)

const enrollmentEventJob = "enrollment_event"

type outboxStore interface {
	ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]models.EnrollmentEvent, error)
	MarkEventPublished(ctx context.Context, id string, at time.Time) error
}

// EventDispatcher fans committed enrollment events out to notification sinks
// through a worker queue. Events stay in the outbox until every sink accepted
// them; the relay re-enqueues anything left behind.
type EventDispatcher struct {
	queue    *jobs.Queue
	sinks    []NotificationSink
	outbox   outboxStore
	metrics  *MetricsService
	logger   *zap.Logger
	relayAge time.Duration
	now      func() time.Time
}

// NewEventDispatcher builds a dispatcher. relayAge is how old an unpublished
// event must be before the relay assumes its first delivery was lost.
func NewEventDispatcher(outbox outboxStore, sinks []NotificationSink, queueCfg jobs.QueueConfig, relayAge time.Duration, metrics *MetricsService, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if relayAge <= 0 {
		relayAge = 30 * time.Second
	}
	d := &EventDispatcher{
		sinks:    sinks,
		outbox:   outbox,
		metrics:  metrics,
		logger:   logger,
		relayAge: relayAge,
		now:      func() time.Time { return time.Now().UTC() },
	}
	queueCfg.Logger = logger
	queueCfg.DeadLetter = func(job jobs.Job, err error) {
		d.logger.Error("enrollment event undeliverable, left for relay", zap.String("event_id", job.ID), zap.Error(err))
	}
	d.queue = jobs.NewQueue("enrollment-events", d.handle, queueCfg)
	return d
}

// Start launches the delivery workers.
func (d *EventDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains nothing; undelivered events remain in the outbox.
func (d *EventDispatcher) Stop() {
	d.queue.Stop()
}

// Publish enqueues events for delivery without blocking the caller.
func (d *EventDispatcher) Publish(ctx context.Context, events []models.EnrollmentEvent) {
	for _, event := range events {
		job := jobs.Job{ID: event.ID, Type: enrollmentEventJob, Payload: event}
		if err := d.queue.TryEnqueue(job); err != nil {
			d.logger.Warn("enrollment event not enqueued, relay will retry",
				zap.String("event_id", event.ID),
				zap.String("dedup_key", event.DedupKey()),
				zap.Error(err),
			)
		}
	}
}

// Relay re-enqueues outbox events older than the relay age. It returns the
// number of events handed back to the queue.
func (d *EventDispatcher) Relay(ctx context.Context, limit int) (int, error) {
	events, err := d.outbox.ListUnpublishedEvents(ctx, d.now().Add(-d.relayAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	d.Publish(ctx, events)
	if len(events) > 0 {
		d.logger.Info("outbox relay re-enqueued events", zap.Int("count", len(events)))
	}
	return len(events), nil
}

// Deliver sends one event to every sink and marks it published when all
// accepted it. Sinks must tolerate redelivery.
func (d *EventDispatcher) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	var errs []error
	for _, sink := range d.sinks {
		err := sink.Deliver(ctx, event)
		d.metrics.RecordDelivery(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := d.outbox.MarkEventPublished(ctx, event.ID, d.now()); err != nil {
		return fmt.Errorf("mark event %s published: %w", event.ID, err)
	}
	return nil
}

func (d *EventDispatcher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.EnrollmentEvent)
	if !ok {
		d.logger.Error("unexpected job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return d.Deliver(ctx, event)
}
