package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// NotificationSink delivers enrollment events to one downstream collaborator.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, event models.EnrollmentEvent) error
}

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	s.logger.Info("enrollment transition",
		zap.String("event_id", event.ID),
		zap.String("enrollment_id", event.EnrollmentID),
		zap.String("student_id", event.StudentID),
		zap.String("section_id", event.SectionID),
		zap.String("old_state", string(event.OldState)),
		zap.String("new_state", string(event.NewState)),
		zap.Time("timestamp", event.OccurredAt),
	)
	return nil
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, value interface{}) error
}

// PubSubSink publishes events as JSON on a Redis channel for dashboards.
type PubSubSink struct {
	publisher channelPublisher
	channel   string
}

// NewPubSubSink constructs a PubSubSink.
func NewPubSubSink(publisher channelPublisher, channel string) *PubSubSink {
	return &PubSubSink{publisher: publisher, channel: channel}
}

func (s *PubSubSink) Name() string { return "pubsub" }

func (s *PubSubSink) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	return s.publisher.Publish(ctx, s.channel, event)
}

type mailSender interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// EmailSink emails the student about confirmations, waitlisting, promotions
// and drops through SendGrid.
type EmailSink struct {
	sender     mailSender
	from       *sgmail.Email
	subjPrefix string
	students   studentLoadReader
	sections   sectionReader
}

// NewEmailSink constructs an EmailSink.
func NewEmailSink(sender mailSender, appName, fromEmail string, students studentLoadReader, sections sectionReader) *EmailSink {
	return &EmailSink{
		sender:     sender,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		students:   students,
		sections:   sections,
	}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	subject, body := emailCopy(event)
	if subject == "" {
		return nil
	}
	student, err := s.students.FindLoad(ctx, event.StudentID)
	if err != nil {
		return fmt.Errorf("load student %s: %w", event.StudentID, err)
	}
	if student.Email == "" {
		return nil
	}
	section, err := s.sections.FindByID(ctx, event.SectionID)
	if err != nil {
		return fmt.Errorf("load section %s: %w", event.SectionID, err)
	}

	course := section.CourseCode
	if section.CourseTitle != "" {
		course += " " + section.CourseTitle
	}
	text := fmt.Sprintf(body, course, section.TermID)
	msg := sgmail.NewSingleEmail(s.from, s.subjPrefix+subject+": "+section.CourseCode,
		sgmail.NewEmail(student.FullName, student.Email), text, "<p>"+text+"</p>")

	res, err := s.sender.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d", res.StatusCode)
	}
	return nil
}

func emailCopy(event models.EnrollmentEvent) (string, string) {
	switch {
	case event.NewState == models.EnrollmentStatusConfirmed && event.OldState == models.EnrollmentStatusWaitlisted:
		return "Promoted from waitlist", "A seat opened and you are now enrolled in %s (%s)."
	case event.NewState == models.EnrollmentStatusConfirmed:
		return "Enrollment confirmed", "You are enrolled in %s (%s)."
	case event.NewState == models.EnrollmentStatusWaitlisted:
		return "Waitlisted", "%s (%s) is full. You have been placed on the waitlist."
	case event.NewState == models.EnrollmentStatusDropped:
		return "Enrollment dropped", "Your enrollment in %s (%s) has been dropped."
	}
	return "", ""
}

type dedupStore interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// DedupSink suppresses redelivery of an event to the wrapped sink, keyed by
// (enrollment ID, new state). A failed delivery releases its claim.
type DedupSink struct {
	inner NotificationSink
	store dedupStore
	ttl   time.Duration
}

// NewDedupSink wraps inner with de-duplication.
func NewDedupSink(inner NotificationSink, store dedupStore, ttl time.Duration) *DedupSink {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &DedupSink{inner: inner, store: store, ttl: ttl}
}

func (s *DedupSink) Name() string { return s.inner.Name() }

func (s *DedupSink) Deliver(ctx context.Context, event models.EnrollmentEvent) error {
	key := "registrar:delivered:" + s.inner.Name() + ":" + event.DedupKey()
	claimed, err := s.store.SetNX(ctx, key, s.ttl)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := s.inner.Deliver(ctx, event); err != nil {
		_ = s.store.Delete(ctx, key)
		return err
	}
	return nil
}
