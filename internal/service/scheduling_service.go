package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/tutorlane/scheduler/internal/clock"
	"github.com/tutorlane/scheduler/internal/model"
	"github.com/tutorlane/scheduler/internal/repository"
	"go.uber.org/zap"
)

// SchedulingService — оркестратор бронирований: валидация запросов,
// машина статусов и связка слот<->бронирование.
type SchedulingService struct {
	slots    repository.SlotStore
	bookings repository.BookingLedger
	sessions repository.SessionCatalog
	audit    Recorder
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewSchedulingService(
	slots repository.SlotStore,
	bookings repository.BookingLedger,
	sessions repository.SessionCatalog,
	audit Recorder,
	notifier Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *SchedulingService {
	return &SchedulingService{
		slots:    slots,
		bookings: bookings,
		sessions: sessions,
		audit:    audit,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// TutorStats — сводка по репетитору: слоты на ближайшие 7 дней
// и завершённые занятия за прошедшие 7 дней
type TutorStats struct {
	Available         int `json:"available"`
	Pending           int `json:"pending"`
	Booked            int `json:"booked"`
	CompletedLastWeek int `json:"completed_last_week"`
}

// validateSlotTime проверяет час и границу прошлого.
// Момент ровно "сейчас" считается прошлым: start <= now.
func validateSlotTime(now, date time.Time, hour int) error {
	if !model.IsBookableHour(hour) {
		return fmt.Errorf("hour %d: %w", hour, model.ErrInvalidHour)
	}
	if !model.SlotStartTime(date, hour).After(now) {
		return model.ErrPastDate
	}
	return nil
}

// Book бронирует слот для ученика.
// Эксклюзивность обеспечивает Claim: проигравший гонку получает
// ErrSlotUnavailable и выбирает другое время — это штатный исход.
func (s *SchedulingService) Book(ctx context.Context, learnerID, tutorID, sessionID int64, date time.Time, hour int, contact model.ContactInfo) (*model.Booking, error) {
	now := s.clock.Now()

	if err := validateSlotTime(now, date, hour); err != nil {
		return nil, err
	}

	if sessionID == 0 {
		return nil, fmt.Errorf("session id is required: %w", model.ErrSessionUnavailable)
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.TutorID != tutorID {
		return nil, fmt.Errorf("session belongs to another tutor: %w", model.ErrSessionUnavailable)
	}

	if !session.IsActive {
		return nil, fmt.Errorf("session is not active: %w", model.ErrSessionUnavailable)
	}

	bookingID := uuid.New()

	// Точка эксклюзивности
	slot, err := s.slots.Claim(ctx, tutorID, date, hour, bookingID)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ID:        bookingID,
		TutorID:   tutorID,
		LearnerID: learnerID,
		SessionID: sessionID,
		Date:      slot.Date,
		Hour:      slot.Hour,
		Status:    model.BookingStatusPending,
		Price:     session.Price,
		Contact:   contact,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		// Claim прошёл, а запись бронирования — нет: слот обязан вернуться
		// в available, иначе он зависнет в pending без бронирования
		s.releaseSlot(tutorID, slot.Date, slot.Hour, bookingID)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info("Slot booked",
		zap.String("booking_id", bookingID.String()),
		zap.Int64("learner_id", learnerID),
		zap.Int64("tutor_id", tutorID),
		zap.Time("date", slot.Date),
		zap.Int("hour", slot.Hour),
		zap.Int("price", booking.Price),
	)

	booking.Slot = slot
	booking.Session = session

	return booking, nil
}

// releaseSlot — компенсирующее освобождение слота после неудавшегося Book
// или вслед за отменой бронирования. Повторяется с экспоненциальной паузой;
// исчерпание попыток — сигнал для фоновой выверки, вызывающая операция
// при этом уже завершилась.
func (s *SchedulingService) releaseSlot(tutorID int64, date time.Time, hour int, bookingID uuid.UUID) {
	// Контекст запроса мог уже умереть, release добиваем на своём
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := s.slots.Release(ctx, tutorID, date, hour); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				// Слот уже свободен — компенсировать нечего
				return nil
			}
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		s.logger.Error("Compensating release failed, slot needs reconciliation",
			zap.Error(err),
			zap.Int64("tutor_id", tutorID),
			zap.Time("date", date),
			zap.Int("hour", hour),
			zap.String("booking_id", bookingID.String()),
		)
	}
}

// Confirm подтверждает бронирование (только репетитор, только из pending)
func (s *SchedulingService) Confirm(ctx context.Context, bookingID uuid.UUID, actorTutorID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.TutorID != actorTutorID {
		return nil, fmt.Errorf("confirm booking: %w", model.ErrAccessDenied)
	}

	if booking.Status != model.BookingStatusPending {
		return nil, fmt.Errorf("confirm booking: %w", model.ErrInvalidTransition)
	}

	// Условный переход в журнале — точка сериализации: из состязающихся
	// Confirm/Cancel журнал пропустит только одного
	if err := s.bookings.UpdateStatus(ctx, bookingID, model.BookingStatusPending, model.BookingStatusConfirmed); err != nil {
		return nil, err
	}

	if _, err := s.slots.Confirm(ctx, booking.TutorID, booking.Date, booking.Hour); err != nil {
		s.logger.Warn("Slot confirm after booking confirm failed",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
	}

	booking.Status = model.BookingStatusConfirmed

	s.logger.Info("Booking confirmed",
		zap.String("booking_id", bookingID.String()),
		zap.Int64("tutor_id", actorTutorID),
	)

	s.notifier.BookingConfirmed(ctx, booking)

	return booking, nil
}

// Complete отмечает занятие прошедшим. Допустимо только из confirmed
// и только после начала слота. Слот остаётся booked как история.
func (s *SchedulingService) Complete(ctx context.Context, bookingID uuid.UUID, actorTutorID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.TutorID != actorTutorID {
		return nil, fmt.Errorf("complete booking: %w", model.ErrAccessDenied)
	}

	if booking.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("complete booking: %w", model.ErrInvalidTransition)
	}

	if s.clock.Now().Before(model.SlotStartTime(booking.Date, booking.Hour)) {
		return nil, fmt.Errorf("complete booking: %w", model.ErrTooEarly)
	}

	if err := s.bookings.UpdateStatus(ctx, bookingID, model.BookingStatusConfirmed, model.BookingStatusCompleted); err != nil {
		return nil, err
	}

	booking.Status = model.BookingStatusCompleted

	s.logger.Info("Booking completed",
		zap.String("booking_id", bookingID.String()),
		zap.Int64("tutor_id", actorTutorID),
	)

	s.notifier.BookingCompleted(ctx, booking)

	return booking, nil
}

// Cancel отменяет бронирование. Доступно владеющему репетитору и ученику.
// Слот возвращается в available, повторная отмена — ErrInvalidTransition.
func (s *SchedulingService) Cancel(ctx context.Context, bookingID uuid.UUID, actorID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.TutorID != actorID && booking.LearnerID != actorID {
		return nil, fmt.Errorf("cancel booking: %w", model.ErrAccessDenied)
	}

	if !booking.Status.IsActive() {
		return nil, fmt.Errorf("cancel booking: %w", model.ErrInvalidTransition)
	}

	if err := s.bookings.UpdateStatus(ctx, bookingID, booking.Status, model.BookingStatusCancelled); err != nil {
		return nil, err
	}

	// Отмена обязана вернуть слот в оборот. Транзиентный сбой здесь
	// добивается повторами, исчерпание попыток подбирает фоновая выверка.
	s.releaseSlot(booking.TutorID, booking.Date, booking.Hour, bookingID)

	booking.Status = model.BookingStatusCancelled

	s.audit.Record(model.AuditEntry{
		TutorID: booking.TutorID,
		Date:    booking.Date,
		Hour:    booking.Hour,
		Action:  model.AuditActionRemoved,
		Reason:  model.AuditReasonBookingCancelled,
		Actor:   actorID,
	})

	s.logger.Info("Booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.Int64("actor_id", actorID),
	)

	s.notifier.BookingCancelled(ctx, booking)

	return booking, nil
}

// AddSlot открывает одиночный слот репетитора
func (s *SchedulingService) AddSlot(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	now := s.clock.Now()

	if err := validateSlotTime(now, date, hour); err != nil {
		return nil, err
	}

	slot, created, err := s.slots.UpsertAvailable(ctx, tutorID, date, hour)
	if err != nil {
		return nil, err
	}

	if created {
		s.audit.Record(model.AuditEntry{
			TutorID: tutorID,
			Date:    slot.Date,
			Hour:    slot.Hour,
			Action:  model.AuditActionAdded,
			Reason:  model.AuditReasonSlotAdded,
			Actor:   tutorID,
		})
	}

	return slot, nil
}

// RemoveSlot закрывает одиночный слот. Прошлое неизменяемо,
// занятый слот не удаляется.
func (s *SchedulingService) RemoveSlot(ctx context.Context, tutorID int64, date time.Time, hour int) error {
	now := s.clock.Now()

	if !model.SlotStartTime(date, hour).After(now) {
		return model.ErrPastDate
	}

	if err := s.slots.Remove(ctx, tutorID, date, hour); err != nil {
		return err
	}

	s.audit.Record(model.AuditEntry{
		TutorID: tutorID,
		Date:    date,
		Hour:    hour,
		Action:  model.AuditActionRemoved,
		Reason:  model.AuditReasonSlotRemoved,
		Actor:   tutorID,
	})

	return nil
}

// TutorSchedule возвращает слоты репетитора за период
func (s *SchedulingService) TutorSchedule(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	return s.slots.ListByTutor(ctx, tutorID, from, to)
}

// TutorBookings возвращает все бронирования репетитора
func (s *SchedulingService) TutorBookings(ctx context.Context, tutorID int64) ([]*model.Booking, error) {
	return s.bookings.ListByTutor(ctx, tutorID)
}

// LearnerBookings возвращает все бронирования ученика
func (s *SchedulingService) LearnerBookings(ctx context.Context, learnerID int64) ([]*model.Booking, error) {
	return s.bookings.ListByLearner(ctx, learnerID)
}

// Stats собирает сводку репетитора. Окно отчётности скользящее:
// 7 дней вперёд для слотов, 7 дней назад для завершённых занятий.
func (s *SchedulingService) Stats(ctx context.Context, tutorID int64) (*TutorStats, error) {
	now := s.clock.Now()

	counts, err := s.slots.CountByStatus(ctx, tutorID, now, now.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}

	completed, err := s.bookings.CountCompletedSince(ctx, tutorID, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	return &TutorStats{
		Available:         counts[model.SlotStatusAvailable],
		Pending:           counts[model.SlotStatusPending],
		Booked:            counts[model.SlotStatusBooked],
		CompletedLastWeek: completed,
	}, nil
}

// ReconcileOrphaned освобождает слоты, застрявшие в занятом статусе
// без живого бронирования: pending после неудавшегося Book и booked
// после отмены, чей release исчерпал попытки.
func (s *SchedulingService) ReconcileOrphaned(ctx context.Context, grace time.Duration) (int, error) {
	stale, err := s.slots.ListOrphaned(ctx, grace)
	if err != nil {
		return 0, fmt.Errorf("list orphaned slots: %w", err)
	}

	released := 0
	for _, slot := range stale {
		// Перепроверка: бронирование могло закоммититься после выборки
		if _, err := s.bookings.ActiveBySlot(ctx, slot.TutorID, slot.Date, slot.Hour); err == nil {
			continue
		} else if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("Failed to check active booking for stale slot", zap.Error(err))
			continue
		}

		if _, err := s.slots.Release(ctx, slot.TutorID, slot.Date, slot.Hour); err != nil {
			// Слот могли успеть забрать или освободить между списком и release
			if !errors.Is(err, model.ErrInvalidTransition) {
				s.logger.Warn("Failed to release orphaned slot",
					zap.Error(err),
					zap.Int64("tutor_id", slot.TutorID),
					zap.Time("date", slot.Date),
					zap.Int("hour", slot.Hour),
				)
			}
			continue
		}

		s.audit.Record(model.AuditEntry{
			TutorID: slot.TutorID,
			Date:    slot.Date,
			Hour:    slot.Hour,
			Action:  model.AuditActionRemoved,
			Reason:  model.AuditReasonReconciled,
		})

		released++
	}

	if released > 0 {
		s.logger.Info("Released orphaned slots", zap.Int("count", released))
	}

	return released, nil
}
