package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlane/scheduler/internal/model"
)

// In-memory реализации портов хранилища для тестов сервисов.
// memSlotStore повторяет семантику условных UPDATE: все переходы
// статуса выполняются под одним мьютексом.

type slotKey struct {
	tutor int64
	date  string
	hour  int
}

func keyFor(tutorID int64, date time.Time, hour int) slotKey {
	return slotKey{tutor: tutorID, date: date.Format("2006-01-02"), hour: hour}
}

type memSlotStore struct {
	mu         sync.Mutex
	slots      map[slotKey]*model.TimeSlot
	everBooked map[slotKey]bool
	ledger     *memBookingLedger
	nextID     int64

	// failReleases заставляет ближайшие N вызовов Release вернуть ошибку
	failReleases int

	// beforeRemoveAct вклинивается между чтением и мутацией в Remove,
	// имитируя конкурента между SELECT и guarded DELETE
	beforeRemoveAct func()
}

func newMemSlotStore(ledger *memBookingLedger) *memSlotStore {
	return &memSlotStore{
		slots:      make(map[slotKey]*model.TimeSlot),
		everBooked: make(map[slotKey]bool),
		ledger:     ledger,
	}
}

func copySlot(s *model.TimeSlot) *model.TimeSlot {
	out := *s
	if s.BookingID != nil {
		id := *s.BookingID
		out.BookingID = &id
	}
	return &out
}

func (m *memSlotStore) Get(_ context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[keyFor(tutorID, date, hour)]
	if !ok {
		return nil, fmt.Errorf("get slot: %w", model.ErrNotFound)
	}
	return copySlot(slot), nil
}

func (m *memSlotStore) UpsertAvailable(_ context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(tutorID, date, hour)
	if slot, ok := m.slots[key]; ok {
		switch slot.Status {
		case model.SlotStatusAvailable:
			return copySlot(slot), false, nil
		case model.SlotStatusUnavailable:
			slot.Status = model.SlotStatusAvailable
			slot.BookingID = nil
			return copySlot(slot), true, nil
		default:
			return nil, false, fmt.Errorf("upsert slot: %w", model.ErrSlotBooked)
		}
	}

	m.nextID++
	slot := &model.TimeSlot{
		ID:      m.nextID,
		TutorID: tutorID,
		Date:    date,
		Hour:    hour,
		Status:  model.SlotStatusAvailable,
	}
	m.slots[key] = slot

	return copySlot(slot), true, nil
}

func (m *memSlotStore) Remove(_ context.Context, tutorID int64, date time.Time, hour int) error {
	key := keyFor(tutorID, date, hour)

	m.mu.Lock()
	slot, ok := m.slots[key]
	var status model.SlotStatus
	if ok {
		status = slot.Status
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if status == model.SlotStatusPending || status == model.SlotStatusBooked {
		return fmt.Errorf("remove slot: %w", model.ErrSlotBooked)
	}

	if m.beforeRemoveAct != nil {
		m.beforeRemoveAct()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Статус мог измениться после чтения: мутация защищена повторной проверкой
	slot, ok = m.slots[key]
	if !ok {
		return nil
	}
	if slot.Status == model.SlotStatusPending || slot.Status == model.SlotStatusBooked {
		return fmt.Errorf("remove slot: %w", model.ErrSlotBooked)
	}

	if m.everBooked[key] {
		slot.Status = model.SlotStatusUnavailable
		return nil
	}

	delete(m.slots, key)
	return nil
}

func (m *memSlotStore) Claim(_ context.Context, tutorID int64, date time.Time, hour int, bookingID uuid.UUID) (*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(tutorID, date, hour)
	slot, ok := m.slots[key]
	if !ok || slot.Status != model.SlotStatusAvailable {
		return nil, fmt.Errorf("claim slot: %w", model.ErrSlotUnavailable)
	}

	slot.Status = model.SlotStatusPending
	slot.BookingID = &bookingID
	m.everBooked[key] = true

	return copySlot(slot), nil
}

func (m *memSlotStore) Release(_ context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReleases > 0 {
		m.failReleases--
		return nil, fmt.Errorf("release slot: connection reset")
	}

	slot, ok := m.slots[keyFor(tutorID, date, hour)]
	if !ok || (slot.Status != model.SlotStatusPending && slot.Status != model.SlotStatusBooked) {
		return nil, fmt.Errorf("release slot: %w", model.ErrInvalidTransition)
	}

	slot.Status = model.SlotStatusAvailable
	slot.BookingID = nil

	return copySlot(slot), nil
}

func (m *memSlotStore) Confirm(_ context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[keyFor(tutorID, date, hour)]
	if !ok || slot.Status != model.SlotStatusPending {
		return nil, fmt.Errorf("confirm slot: %w", model.ErrInvalidTransition)
	}

	slot.Status = model.SlotStatusBooked

	return copySlot(slot), nil
}

func (m *memSlotStore) ListByTutor(_ context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.TimeSlot
	for _, slot := range m.slots {
		if slot.TutorID != tutorID {
			continue
		}
		if slot.Date.Before(from) || !slot.Date.Before(to) {
			continue
		}
		out = append(out, copySlot(slot))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Hour < out[j].Hour
	})

	return out, nil
}

func (m *memSlotStore) AvailableHours(_ context.Context, tutorID int64, date time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := date.Format("2006-01-02")

	var hours []int
	for key, slot := range m.slots {
		if key.tutor == tutorID && key.date == day && slot.Status == model.SlotStatusAvailable {
			hours = append(hours, key.hour)
		}
	}
	sort.Ints(hours)

	return hours, nil
}

func (m *memSlotStore) ClearFutureAvailable(_ context.Context, tutorID int64, after time.Time) ([]*model.TimeSlot, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []*model.TimeSlot
	skipped := 0

	for key, slot := range m.slots {
		if slot.TutorID != tutorID || !slot.StartTime().After(after) {
			continue
		}

		switch slot.Status {
		case model.SlotStatusAvailable:
			removed = append(removed, copySlot(slot))
			if m.everBooked[key] {
				slot.Status = model.SlotStatusUnavailable
			} else {
				delete(m.slots, key)
			}
		case model.SlotStatusPending, model.SlotStatusBooked:
			skipped++
		}
	}

	return removed, skipped, nil
}

func (m *memSlotStore) ListOrphaned(_ context.Context, _ time.Duration) ([]*model.TimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*model.TimeSlot
	for _, slot := range m.slots {
		switch slot.Status {
		case model.SlotStatusPending:
		case model.SlotStatusBooked:
			// Сирота только если удерживающее бронирование отменено
			if slot.BookingID == nil || m.ledger == nil || !m.ledger.isCancelled(*slot.BookingID) {
				continue
			}
		default:
			continue
		}
		if m.ledger != nil && m.ledger.hasActiveBySlot(slot.TutorID, slot.Date, slot.Hour) {
			continue
		}
		stale = append(stale, copySlot(slot))
	}

	return stale, nil
}

func (m *memSlotStore) CountByStatus(_ context.Context, tutorID int64, from, to time.Time) (map[model.SlotStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[model.SlotStatus]int)
	for _, slot := range m.slots {
		if slot.TutorID != tutorID {
			continue
		}
		start := slot.StartTime()
		if start.Before(from) || !start.Before(to) {
			continue
		}
		counts[slot.Status]++
	}

	return counts, nil
}

type memBookingLedger struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*model.Booking
	createErr error
}

func newMemBookingLedger() *memBookingLedger {
	return &memBookingLedger{bookings: make(map[uuid.UUID]*model.Booking)}
}

func copyBooking(b *model.Booking) *model.Booking {
	out := *b
	out.Slot = nil
	out.Session = nil
	return &out
}

func (m *memBookingLedger) Create(_ context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}

	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	m.bookings[booking.ID] = copyBooking(booking)

	return nil
}

func (m *memBookingLedger) GetByID(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("get booking: %w", model.ErrNotFound)
	}

	return copyBooking(booking), nil
}

func (m *memBookingLedger) isCancelled(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	return ok && b.Status == model.BookingStatusCancelled
}

func (m *memBookingLedger) hasActiveBySlot(tutorID int64, date time.Time, hour int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := date.Format("2006-01-02")
	for _, b := range m.bookings {
		if b.TutorID == tutorID && b.Hour == hour && b.Date.Format("2006-01-02") == day && b.Status.IsActive() {
			return true
		}
	}
	return false
}

func (m *memBookingLedger) ActiveBySlot(_ context.Context, tutorID int64, date time.Time, hour int) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := date.Format("2006-01-02")
	for _, b := range m.bookings {
		if b.TutorID == tutorID && b.Hour == hour && b.Date.Format("2006-01-02") == day && b.Status.IsActive() {
			return copyBooking(b), nil
		}
	}

	return nil, fmt.Errorf("get active booking by slot: %w", model.ErrNotFound)
}

func (m *memBookingLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to model.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[id]
	if !ok || booking.Status != from {
		return fmt.Errorf("update booking status: %w", model.ErrInvalidTransition)
	}

	booking.Status = to
	booking.UpdatedAt = time.Now()

	return nil
}

func (m *memBookingLedger) ListByTutor(_ context.Context, tutorID int64) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Booking
	for _, b := range m.bookings {
		if b.TutorID == tutorID {
			out = append(out, copyBooking(b))
		}
	}

	return out, nil
}

func (m *memBookingLedger) ListByLearner(_ context.Context, learnerID int64) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Booking
	for _, b := range m.bookings {
		if b.LearnerID == learnerID {
			out = append(out, copyBooking(b))
		}
	}

	return out, nil
}

func (m *memBookingLedger) CountCompletedSince(_ context.Context, tutorID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, b := range m.bookings {
		if b.TutorID == tutorID && b.Status == model.BookingStatusCompleted && !b.UpdatedAt.Before(since) {
			n++
		}
	}

	return n, nil
}

type memTemplateStore struct {
	mu   sync.Mutex
	days map[int64]map[time.Weekday][]int
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{days: make(map[int64]map[time.Weekday][]int)}
}

func (m *memTemplateStore) ReplaceDay(_ context.Context, tutorID int64, weekday time.Weekday, hours []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.days[tutorID] == nil {
		m.days[tutorID] = make(map[time.Weekday][]int)
	}
	m.days[tutorID][weekday] = append([]int(nil), hours...)

	return nil
}

func (m *memTemplateStore) Pattern(_ context.Context, tutorID int64) (*model.WeeklyTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	template := &model.WeeklyTemplate{
		TutorID: tutorID,
		Days:    make(map[time.Weekday][]int),
	}
	for wd, hours := range m.days[tutorID] {
		template.Days[wd] = append([]int(nil), hours...)
	}

	return template, nil
}

func (m *memTemplateStore) ListTutorIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id := range m.days {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
	failing bool
}

func newMemAuditStore() *memAuditStore {
	return &memAuditStore{}
}

func (m *memAuditStore) Append(_ context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return fmt.Errorf("audit store unavailable")
	}

	e := *entry
	e.ID = int64(len(m.entries) + 1)
	e.CreatedAt = time.Now()
	m.entries = append(m.entries, &e)

	return nil
}

func (m *memAuditStore) History(_ context.Context, tutorID int64, since time.Time) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.AuditEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.TutorID == tutorID && !e.CreatedAt.Before(since) {
			copied := *e
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (m *memAuditStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// captureRecorder собирает записи аудита синхронно
type captureRecorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (r *captureRecorder) Record(entry model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *captureRecorder) byReason(reason string) []model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.AuditEntry
	for _, e := range r.entries {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

type memSessionCatalog struct {
	sessions map[int64]*model.Session
}

func newMemSessionCatalog(sessions ...*model.Session) *memSessionCatalog {
	m := &memSessionCatalog{sessions: make(map[int64]*model.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memSessionCatalog) Create(_ context.Context, session *model.Session) error {
	session.ID = int64(len(m.sessions) + 1)
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSessionCatalog) GetByID(_ context.Context, id int64) (*model.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session: %w", model.ErrNotFound)
	}
	out := *s
	return &out, nil
}

func (m *memSessionCatalog) ListByTutor(_ context.Context, tutorID int64) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range m.sessions {
		if s.TutorID == tutorID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

// captureNotifier считает события по типам
type captureNotifier struct {
	mu        sync.Mutex
	confirmed int
	completed int
	cancelled int
}

func (n *captureNotifier) BookingConfirmed(context.Context, *model.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
}

func (n *captureNotifier) BookingCompleted(context.Context, *model.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *captureNotifier) BookingCancelled(context.Context, *model.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}
