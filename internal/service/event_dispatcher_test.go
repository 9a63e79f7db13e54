package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/pkg/jobs"
)

type outboxStub struct {
	mu        sync.Mutex
	pending   []models.EnrollmentEvent
	published map[string]time.Time
	before    time.Time
}

func (o *outboxStub) ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]models.EnrollmentEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.before = before
	var out []models.EnrollmentEvent
	for _, e := range o.pending {
		if _, done := o.published[e.ID]; !done && e.OccurredAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (o *outboxStub) MarkEventPublished(ctx context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.published == nil {
		o.published = map[string]time.Time{}
	}
	o.published[id] = at
	return nil
}

func (o *outboxStub) isPublished(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.published[id]
	return ok
}

type sinkStub struct {
	name     string
	mu       sync.Mutex
	received []models.EnrollmentEvent
	failures int
}

func (s *sinkStub) Name() string { return s.name }

func (s *sinkStub) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("downstream unavailable")
	}
	s.received = append(s.received, event)
	return nil
}

func (s *sinkStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func sampleEvent(id string, state models.EnrollmentStatus) models.EnrollmentEvent {
	return models.EnrollmentEvent{
		ID:           id,
		EnrollmentID: "enr-" + id,
		StudentID:    "stu",
		SectionID:    "sec-1",
		OldState:     models.EnrollmentStatusPending,
		NewState:     state,
		OccurredAt:   time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestEventDispatcherDeliversThroughQueue(t *testing.T) {
	outbox := &outboxStub{}
	sink := &sinkStub{name: "stub", failures: 1}
	metrics := NewMetricsService()
	d := NewEventDispatcher(outbox, []NotificationSink{sink}, jobs.QueueConfig{Workers: 2, MaxRetries: 3, RetryDelay: 5 * time.Millisecond}, time.Minute, metrics, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Publish(ctx, []models.EnrollmentEvent{sampleEvent("e1", models.EnrollmentStatusConfirmed)})

	require.Eventually(t, func() bool { return outbox.isPublished("e1") }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.count())
	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.EventsDelivered)
	assert.Equal(t, uint64(1), snapshot.EventsFailed)
}

func TestEventDispatcherDeliverKeepsEventOnSinkFailure(t *testing.T) {
	outbox := &outboxStub{}
	ok := &sinkStub{name: "ok"}
	broken := &sinkStub{name: "broken", failures: 1}
	d := NewEventDispatcher(outbox, []NotificationSink{ok, broken}, jobs.QueueConfig{}, time.Minute, nil, nil)

	err := d.Deliver(context.Background(), sampleEvent("e1", models.EnrollmentStatusWaitlisted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.False(t, outbox.isPublished("e1"))

	require.NoError(t, d.Deliver(context.Background(), sampleEvent("e1", models.EnrollmentStatusWaitlisted)))
	assert.True(t, outbox.isPublished("e1"))
	assert.Equal(t, 2, ok.count())
}

func TestEventDispatcherRelayPicksUpOldEvents(t *testing.T) {
	now := time.Date(2026, 8, 3, 9, 10, 0, 0, time.UTC)
	fresh := sampleEvent("fresh", models.EnrollmentStatusConfirmed)
	fresh.OccurredAt = now.Add(-5 * time.Second)
	outbox := &outboxStub{pending: []models.EnrollmentEvent{sampleEvent("old", models.EnrollmentStatusConfirmed), fresh}}
	sink := &sinkStub{name: "stub"}
	d := NewEventDispatcher(outbox, []NotificationSink{sink}, jobs.QueueConfig{RetryDelay: time.Millisecond}, 30*time.Second, nil, nil)
	d.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	n, err := d.Relay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(-30*time.Second), outbox.before)
	require.Eventually(t, func() bool { return outbox.isPublished("old") }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, outbox.isPublished("fresh"))
}

type dedupStoreStub struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (s *dedupStoreStub) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]struct{}{}
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *dedupStoreStub) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func TestDedupSinkSuppressesRedelivery(t *testing.T) {
	inner := &sinkStub{name: "email", failures: 1}
	store := &dedupStoreStub{}
	sink := NewDedupSink(inner, store, time.Hour)
	event := sampleEvent("e1", models.EnrollmentStatusConfirmed)

	require.Error(t, sink.Deliver(context.Background(), event))
	require.NoError(t, sink.Deliver(context.Background(), event))
	require.NoError(t, sink.Deliver(context.Background(), event))
	assert.Equal(t, 1, inner.count())
	assert.Contains(t, store.keys, "registrar:delivered:email:enr-e1:CONFIRMED")

	promoted := event
	promoted.ID = "e2"
	promoted.NewState = models.EnrollmentStatusDropped
	require.NoError(t, sink.Deliver(context.Background(), promoted))
	assert.Equal(t, 2, inner.count())
}

type mailSenderStub struct {
	sent   []*sgmail.SGMailV3
	status int
}

func (m *mailSenderStub) SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error) {
	m.sent = append(m.sent, email)
	return &rest.Response{StatusCode: m.status}, nil
}

type sectionReaderStub map[string]models.Section

func (s sectionReaderStub) FindByID(ctx context.Context, id string) (*models.Section, error) {
	section, ok := s[id]
	if !ok {
		return nil, errors.New("section not found")
	}
	return &section, nil
}

func TestEmailSinkSendsPromotionNotice(t *testing.T) {
	sender := &mailSenderStub{status: http.StatusAccepted}
	students := studentLoadStub{"stu": {StudentID: "stu", FullName: "Ada Lovelace", Email: "ada@example.edu"}}
	sections := sectionReaderStub{"sec-1": {ID: "sec-1", CourseCode: "CS101", CourseTitle: "Intro", TermID: "2026FA"}}
	sink := NewEmailSink(sender, "Registrar", "registrar@example.edu", students, sections)

	event := sampleEvent("e1", models.EnrollmentStatusConfirmed)
	event.OldState = models.EnrollmentStatusWaitlisted
	require.NoError(t, sink.Deliver(context.Background(), event))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "[Registrar] Promoted from waitlist: CS101", msg.Subject)
	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "ada@example.edu", msg.Personalizations[0].To[0].Address)
	assert.Contains(t, msg.Content[0].Value, "CS101 Intro (2026FA)")
}

func TestEmailSinkSkipsStudentsWithoutEmailAndReportsFailures(t *testing.T) {
	sender := &mailSenderStub{status: http.StatusTooManyRequests}
	students := studentLoadStub{
		"quiet": {StudentID: "quiet"},
		"stu":   {StudentID: "stu", Email: "stu@example.edu"},
	}
	sections := sectionReaderStub{"sec-1": {ID: "sec-1", CourseCode: "CS101"}}
	sink := NewEmailSink(sender, "Registrar", "registrar@example.edu", students, sections)

	quiet := sampleEvent("e1", models.EnrollmentStatusWaitlisted)
	quiet.StudentID = "quiet"
	require.NoError(t, sink.Deliver(context.Background(), quiet))
	assert.Empty(t, sender.sent)

	err := sink.Deliver(context.Background(), sampleEvent("e2", models.EnrollmentStatusWaitlisted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
