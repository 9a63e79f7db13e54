package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sis-registrar-api/internal/models"
)

// MemoryStore is a process-local registrar backend. All views share one lock,
// so a ledger commit is atomic with respect to every read.
type MemoryStore struct {
	mu sync.RWMutex

	sections    map[string]*models.Section
	students    map[string]*models.StudentLoad
	completed   map[string]map[string]struct{}
	holds       map[string]*models.Hold
	enrollments map[string]*models.Enrollment
	active      map[pairKey]string
	events      []*models.EnrollmentEvent
	seq         int64
}

type pairKey struct {
	studentID string
	sectionID string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sections:    make(map[string]*models.Section),
		students:    make(map[string]*models.StudentLoad),
		completed:   make(map[string]map[string]struct{}),
		holds:       make(map[string]*models.Hold),
		enrollments: make(map[string]*models.Enrollment),
		active:      make(map[pairKey]string),
	}
}

// PutSection inserts or replaces a section descriptor.
func (s *MemoryStore) PutSection(section models.Section) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	s.sections[section.ID] = &section
}

// PutStudent inserts or replaces a student load record.
func (s *MemoryStore) PutStudent(load models.StudentLoad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[load.StudentID] = &load
}

// AddCompletedCourse records a completed course for prerequisite checks.
func (s *MemoryStore) AddCompletedCourse(studentID, courseCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	courses, ok := s.completed[studentID]
	if !ok {
		courses = make(map[string]struct{})
		s.completed[studentID] = courses
	}
	courses[strings.ToUpper(courseCode)] = struct{}{}
}

// Sections returns the catalog view.
func (s *MemoryStore) Sections() *MemorySectionRepository { return &MemorySectionRepository{s: s} }

// Holds returns the hold registry view.
func (s *MemoryStore) Holds() *MemoryHoldRepository { return &MemoryHoldRepository{s: s} }

// Students returns the student profile view.
func (s *MemoryStore) Students() *MemoryStudentRepository { return &MemoryStudentRepository{s: s} }

// History returns the academic history view.
func (s *MemoryStore) History() *MemoryHistoryRepository { return &MemoryHistoryRepository{s: s} }

// Enrollments returns the ledger view.
func (s *MemoryStore) Enrollments() *MemoryEnrollmentRepository {
	return &MemoryEnrollmentRepository{s: s}
}

// MemorySectionRepository serves the section catalog from memory.
type MemorySectionRepository struct{ s *MemoryStore }

// FindByID returns a section or sql.ErrNoRows.
func (r *MemorySectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	section, ok := r.s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *section
	out.Prerequisites = append([]string(nil), section.Prerequisites...)
	return &out, nil
}

// List returns sections matching the filter ordered by course code then ID.
func (r *MemorySectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	r.s.mu.RLock()
	matched := make([]models.Section, 0, len(r.s.sections))
	for _, section := range r.s.sections {
		if filter.TermID != "" && section.TermID != filter.TermID {
			continue
		}
		if filter.CourseCode != "" && !strings.EqualFold(section.CourseCode, filter.CourseCode) {
			continue
		}
		if filter.OpenOnly && !section.HasOpenSeat() {
			continue
		}
		matched = append(matched, *section)
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CourseCode != matched[j].CourseCode {
			return matched[i].CourseCode < matched[j].CourseCode
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	page, size := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return []models.Section{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateCapacity changes a section's capacity. Capacity may not drop below
// the seats already taken.
func (r *MemorySectionRepository) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	section, ok := r.s.sections[id]
	if !ok {
		return sql.ErrNoRows
	}
	if capacity < section.SeatsTaken {
		return fmt.Errorf("update capacity %s: %w", id, models.ErrSeatBounds)
	}
	section.Capacity = capacity
	section.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryHoldRepository serves the hold registry from memory.
type MemoryHoldRepository struct{ s *MemoryStore }

// ListByStudent returns every hold for a student, newest first.
func (r *MemoryHoldRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	holds := make([]models.Hold, 0)
	for _, hold := range r.s.holds {
		if hold.StudentID == studentID {
			holds = append(holds, *hold)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].PlacedAt.After(holds[j].PlacedAt) })
	return holds, nil
}

// FindByID returns a hold or sql.ErrNoRows.
func (r *MemoryHoldRepository) FindByID(ctx context.Context, id string) (*models.Hold, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	hold, ok := r.s.holds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *hold
	return &out, nil
}

// Create stores a new hold.
func (r *MemoryHoldRepository) Create(ctx context.Context, hold *models.Hold) error {
	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	if hold.PlacedAt.IsZero() {
		hold.PlacedAt = time.Now().UTC()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *hold
	r.s.holds[hold.ID] = &stored
	return nil
}

// Clear marks a hold cleared. Clearing an already cleared hold is a no-op.
func (r *MemoryHoldRepository) Clear(ctx context.Context, id, clearedBy string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	hold, ok := r.s.holds[id]
	if !ok {
		return sql.ErrNoRows
	}
	if hold.ClearedAt != nil {
		return nil
	}
	hold.ClearedAt = &at
	hold.ClearedBy = &clearedBy
	return nil
}

// MemoryStudentRepository serves student loads from memory.
type MemoryStudentRepository struct{ s *MemoryStore }

// FindLoad returns the student's credit load or sql.ErrNoRows.
func (r *MemoryStudentRepository) FindLoad(ctx context.Context, studentID string) (*models.StudentLoad, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	load, ok := r.s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *load
	return &out, nil
}

// ListLoads returns every student load ordered by ID.
func (r *MemoryStudentRepository) ListLoads(ctx context.Context) ([]models.StudentLoad, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	loads := make([]models.StudentLoad, 0, len(r.s.students))
	for _, load := range r.s.students {
		loads = append(loads, *load)
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].StudentID < loads[j].StudentID })
	return loads, nil
}

// MemoryHistoryRepository answers prerequisite queries from memory.
type MemoryHistoryRepository struct{ s *MemoryStore }

// HasCompleted reports whether the student completed the course.
func (r *MemoryHistoryRepository) HasCompleted(ctx context.Context, studentID, courseCode string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.completed[studentID][strings.ToUpper(courseCode)]
	return ok, nil
}

// MemoryEnrollmentRepository is the in-memory enrollment ledger.
type MemoryEnrollmentRepository struct{ s *MemoryStore }

// FindByID returns an enrollment or sql.ErrNoRows.
func (r *MemoryEnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	enrollment, ok := r.s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *enrollment
	return &out, nil
}

// ListByStudent returns all of a student's enrollments in ledger order.
func (r *MemoryEnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error) {
	return r.collect(func(e *models.Enrollment) bool { return e.StudentID == studentID }), nil
}

// ListBySection returns all of a section's enrollments in ledger order.
func (r *MemoryEnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	return r.collect(func(e *models.Enrollment) bool { return e.SectionID == sectionID }), nil
}

// FindActive returns the non-dropped enrollment for the pair, or nil.
func (r *MemoryEnrollmentRepository) FindActive(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.active[pairKey{studentID: studentID, sectionID: sectionID}]
	if !ok {
		return nil, nil
	}
	out := *r.s.enrollments[id]
	return &out, nil
}

// ConfirmedCountForSection counts confirmed enrollments for a section.
func (r *MemoryEnrollmentRepository) ConfirmedCountForSection(ctx context.Context, sectionID string) (int, error) {
	confirmed := r.collect(func(e *models.Enrollment) bool {
		return e.SectionID == sectionID && e.Status == models.EnrollmentStatusConfirmed
	})
	return len(confirmed), nil
}

// CommittedCredits sums the credits of a student's confirmed and pending enrollments.
func (r *MemoryEnrollmentRepository) CommittedCredits(ctx context.Context, studentID string) (int, error) {
	total := 0
	for _, e := range r.collect(func(e *models.Enrollment) bool {
		return e.StudentID == studentID && e.Status.CountsTowardLoad()
	}) {
		total += e.Credits
	}
	return total, nil
}

// Waitlist returns a section's waitlisted enrollments in line order.
func (r *MemoryEnrollmentRepository) Waitlist(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	waitlist := r.collect(func(e *models.Enrollment) bool {
		return e.SectionID == sectionID && e.Status == models.EnrollmentStatusWaitlisted
	})
	sort.SliceStable(waitlist, func(i, j int) bool { return waitlist[i].WaitlistBefore(waitlist[j]) })
	return waitlist, nil
}

// EarliestWaitlisted returns the head of a section's waitlist, or nil.
func (r *MemoryEnrollmentRepository) EarliestWaitlisted(ctx context.Context, sectionID string) (*models.Enrollment, error) {
	waitlist, _ := r.Waitlist(ctx, sectionID)
	if len(waitlist) == 0 {
		return nil, nil
	}
	return &waitlist[0], nil
}

// ListUnpublishedEvents returns outbox events that occurred before the cutoff
// and were never marked published, oldest first.
func (r *MemoryEnrollmentRepository) ListUnpublishedEvents(ctx context.Context, before time.Time, limit int) ([]models.EnrollmentEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	events := make([]models.EnrollmentEvent, 0)
	for _, event := range r.s.events {
		if event.PublishedAt != nil || !event.OccurredAt.Before(before) {
			continue
		}
		events = append(events, *event)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkEventPublished stamps an outbox event as delivered.
func (r *MemoryEnrollmentRepository) MarkEventPublished(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, event := range r.s.events {
		if event.ID == id {
			if event.PublishedAt == nil {
				event.PublishedAt = &at
			}
			return nil
		}
	}
	return sql.ErrNoRows
}

// Commit applies a batch atomically. Every check runs before any write so a
// rejected batch leaves the store untouched.
func (r *MemoryEnrollmentRepository) Commit(ctx context.Context, batch *models.LedgerBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	released := make(map[pairKey]bool)
	for _, tr := range batch.Transitions {
		current, ok := s.enrollments[tr.EnrollmentID]
		if !ok {
			return fmt.Errorf("transition %s: %w", tr.EnrollmentID, sql.ErrNoRows)
		}
		if current.Status != tr.From {
			return fmt.Errorf("transition %s %s->%s (stored %s): %w", tr.EnrollmentID, tr.From, tr.To, current.Status, models.ErrStaleTransition)
		}
		if tr.To == models.EnrollmentStatusDropped {
			released[pairKey{studentID: current.StudentID, sectionID: current.SectionID}] = true
		}
	}

	claimed := make(map[pairKey]bool)
	for _, e := range batch.Inserts {
		if _, ok := s.sections[e.SectionID]; !ok {
			return fmt.Errorf("insert enrollment section %s: %w", e.SectionID, models.ErrUnknownReference)
		}
		if _, ok := s.students[e.StudentID]; !ok {
			return fmt.Errorf("insert enrollment student %s: %w", e.StudentID, models.ErrUnknownReference)
		}
		if !e.Active() {
			continue
		}
		key := pairKey{studentID: e.StudentID, sectionID: e.SectionID}
		if _, exists := s.active[key]; (exists && !released[key]) || claimed[key] {
			return fmt.Errorf("insert enrollment %s/%s: %w", e.StudentID, e.SectionID, models.ErrDuplicateActiveEnrollment)
		}
		claimed[key] = true
	}

	for sectionID, delta := range batch.SeatDeltas {
		section, ok := s.sections[sectionID]
		if !ok {
			return fmt.Errorf("seat delta section %s: %w", sectionID, models.ErrUnknownReference)
		}
		next := section.SeatsTaken + delta
		if next < 0 || next > section.Capacity {
			return fmt.Errorf("section %s seats %d%+d of %d: %w", sectionID, section.SeatsTaken, delta, section.Capacity, models.ErrSeatBounds)
		}
	}
	for studentID, delta := range batch.CreditDeltas {
		load, ok := s.students[studentID]
		if !ok {
			return fmt.Errorf("credit delta student %s: %w", studentID, models.ErrUnknownReference)
		}
		next := load.CreditsEnrolled + delta
		if next < 0 || (delta > 0 && next > load.MaxCredits) {
			return fmt.Errorf("student %s credits %d%+d of %d: %w", studentID, load.CreditsEnrolled, delta, load.MaxCredits, models.ErrCreditBounds)
		}
	}

	for _, tr := range batch.Transitions {
		e := s.enrollments[tr.EnrollmentID]
		at := tr.At
		e.Status = tr.To
		switch tr.To {
		case models.EnrollmentStatusConfirmed:
			e.ConfirmedAt = &at
		case models.EnrollmentStatusDropped:
			e.DroppedAt = &at
			e.DropReason = tr.DropReason
			delete(s.active, pairKey{studentID: e.StudentID, sectionID: e.SectionID})
		}
	}
	for _, e := range batch.Inserts {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		s.seq++
		e.Seq = s.seq
		stored := *e
		s.enrollments[e.ID] = &stored
		if stored.Active() {
			s.active[pairKey{studentID: e.StudentID, sectionID: e.SectionID}] = e.ID
		}
	}
	for sectionID, delta := range batch.SeatDeltas {
		s.sections[sectionID].SeatsTaken += delta
	}
	for studentID, delta := range batch.CreditDeltas {
		s.students[studentID].CreditsEnrolled += delta
	}
	for i := range batch.Events {
		event := batch.Events[i]
		if event.ID == "" {
			event.ID = uuid.NewString()
			batch.Events[i].ID = event.ID
		}
		s.events = append(s.events, &event)
	}
	return nil
}

func (r *MemoryEnrollmentRepository) collect(match func(*models.Enrollment) bool) []models.Enrollment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.Enrollment, 0)
	for _, e := range r.s.enrollments {
		if match(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
