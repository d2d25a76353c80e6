package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tutorlane/scheduler/internal/clock"
	"github.com/tutorlane/scheduler/internal/model"
	"github.com/tutorlane/scheduler/internal/repository"
	"go.uber.org/zap"
)

// TemplateService разворачивает недельные шаблоны в конкретные слоты
// и выполняет массовые правки расписания. Все мутации идут через SlotStore,
// тем же условным путём, что и бронирования — отдельного кода записи нет.
type TemplateService struct {
	slots     repository.SlotStore
	templates repository.TemplateStore
	audit     Recorder
	clock     clock.Clock
	logger    *zap.Logger
}

func NewTemplateService(
	slots repository.SlotStore,
	templates repository.TemplateStore,
	audit Recorder,
	clk clock.Clock,
	logger *zap.Logger,
) *TemplateService {
	return &TemplateService{
		slots:     slots,
		templates: templates,
		audit:     audit,
		clock:     clk,
		logger:    logger,
	}
}

// dateOnly отбрасывает время, оставляя полночь дня
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOf возвращает понедельник недели, в которую попадает дата.
// Правки расписания считают неделю с понедельника; скользящее окно
// остаётся за отчётностью.
func mondayOf(t time.Time) time.Time {
	d := dateOnly(t)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// SetPattern сохраняет набор часов дня недели в шаблоне.
// Шаблон сам по себе ничего не бронирует — только материализованные слоты.
func (s *TemplateService) SetPattern(ctx context.Context, tutorID int64, weekday time.Weekday, hours []int) error {
	uniq := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		if !model.IsBookableHour(h) {
			return fmt.Errorf("hour %d: %w", h, model.ErrInvalidHour)
		}
		uniq[h] = struct{}{}
	}

	cleaned := make([]int, 0, len(uniq))
	for h := range uniq {
		cleaned = append(cleaned, h)
	}
	sort.Ints(cleaned)

	if err := s.templates.ReplaceDay(ctx, tutorID, weekday, cleaned); err != nil {
		return err
	}

	s.logger.Info("Template pattern updated",
		zap.Int64("tutor_id", tutorID),
		zap.String("weekday", weekday.String()),
		zap.Ints("hours", cleaned),
	)

	return nil
}

// Pattern возвращает сохранённый шаблон репетитора
func (s *TemplateService) Pattern(ctx context.Context, tutorID int64) (*model.WeeklyTemplate, error) {
	return s.templates.Pattern(ctx, tutorID)
}

// Materialize разворачивает шаблон в слоты недели, содержащей weekStart.
// "now" фиксируется один раз на операцию, уже прошедшие часы молча
// пропускаются — правка "этой недели" не трогает истекшие часы.
// Возвращает созданные слоты; существующие не дублируются.
func (s *TemplateService) Materialize(ctx context.Context, tutorID int64, weekStart time.Time) ([]*model.TimeSlot, error) {
	now := s.clock.Now()
	monday := mondayOf(weekStart)

	pattern, err := s.templates.Pattern(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	var created []*model.TimeSlot

	for day := 0; day < 7; day++ {
		date := monday.AddDate(0, 0, day)

		for _, hour := range pattern.HoursFor(date.Weekday()) {
			if !model.SlotStartTime(date, hour).After(now) {
				continue
			}

			slot, fresh, err := s.slots.UpsertAvailable(ctx, tutorID, date, hour)
			if err != nil {
				if errors.Is(err, model.ErrSlotBooked) {
					// Час занят бронированием — шаблон его не трогает
					continue
				}
				return nil, err
			}

			if !fresh {
				continue
			}

			created = append(created, slot)

			s.audit.Record(model.AuditEntry{
				TutorID: tutorID,
				Date:    date,
				Hour:    hour,
				Action:  model.AuditActionAdded,
				Reason:  model.AuditReasonTemplateApplied,
				Actor:   tutorID,
			})
		}
	}

	s.logger.Info("Template materialized",
		zap.Int64("tutor_id", tutorID),
		zap.Time("week_start", monday),
		zap.Int("created", len(created)),
	)

	return created, nil
}

// CopyDay переносит свободные часы одного дня на другой.
// Занятые и закрытые часы источника не копируются.
func (s *TemplateService) CopyDay(ctx context.Context, tutorID int64, sourceDate, targetDate time.Time) ([]*model.TimeSlot, error) {
	now := s.clock.Now()

	hours, err := s.slots.AvailableHours(ctx, tutorID, sourceDate)
	if err != nil {
		return nil, err
	}

	if len(hours) == 0 {
		return nil, fmt.Errorf("copy day: %w", model.ErrEmptySource)
	}

	target := dateOnly(targetDate)

	var applied []*model.TimeSlot

	for _, hour := range hours {
		if !model.SlotStartTime(target, hour).After(now) {
			continue
		}

		slot, fresh, err := s.slots.UpsertAvailable(ctx, tutorID, target, hour)
		if err != nil {
			if errors.Is(err, model.ErrSlotBooked) {
				continue
			}
			return nil, err
		}

		applied = append(applied, slot)

		if fresh {
			s.audit.Record(model.AuditEntry{
				TutorID: tutorID,
				Date:    target,
				Hour:    hour,
				Action:  model.AuditActionAdded,
				Reason:  model.AuditReasonCopyDay,
				Actor:   tutorID,
			})
		}
	}

	s.logger.Info("Day copied",
		zap.Int64("tutor_id", tutorID),
		zap.Time("source", dateOnly(sourceDate)),
		zap.Time("target", target),
		zap.Int("hours", len(applied)),
	)

	return applied, nil
}

// BulkCreate открывает слот (weekday, hour) на weekCount недель вперёд,
// начиная со следующего вхождения дня недели. Существующие слоты
// пропускаются, не дублируются и не считаются ошибкой.
func (s *TemplateService) BulkCreate(ctx context.Context, tutorID int64, weekday time.Weekday, hour, weekCount int) ([]*model.TimeSlot, error) {
	if !model.IsBookableHour(hour) {
		return nil, fmt.Errorf("hour %d: %w", hour, model.ErrInvalidHour)
	}
	if weekCount <= 0 {
		return nil, fmt.Errorf("week count must be positive")
	}

	now := s.clock.Now()

	// Первое вхождение — строго после сегодняшнего дня
	first := dateOnly(now).AddDate(0, 0, 1)
	for first.Weekday() != weekday {
		first = first.AddDate(0, 0, 1)
	}

	var created []*model.TimeSlot

	for week := 0; week < weekCount; week++ {
		date := first.AddDate(0, 0, 7*week)

		slot, fresh, err := s.slots.UpsertAvailable(ctx, tutorID, date, hour)
		if err != nil {
			if errors.Is(err, model.ErrSlotBooked) {
				continue
			}
			return nil, err
		}

		if !fresh {
			continue
		}

		created = append(created, slot)

		s.audit.Record(model.AuditEntry{
			TutorID: tutorID,
			Date:    date,
			Hour:    hour,
			Action:  model.AuditActionAdded,
			Reason:  model.AuditReasonBulkCreate,
			Actor:   tutorID,
		})
	}

	s.logger.Info("Bulk slots created",
		zap.Int64("tutor_id", tutorID),
		zap.String("weekday", weekday.String()),
		zap.Int("hour", hour),
		zap.Int("weeks", weekCount),
		zap.Int("created", len(created)),
	)

	return created, nil
}

// ClearFuture закрывает все будущие свободные слоты репетитора.
// Занятые слоты остаются и возвращаются как счётчик пропущенных.
func (s *TemplateService) ClearFuture(ctx context.Context, tutorID int64) (removed, skippedBooked int, err error) {
	now := s.clock.Now()

	cleared, skipped, err := s.slots.ClearFutureAvailable(ctx, tutorID, now)
	if err != nil {
		return 0, 0, err
	}

	for _, slot := range cleared {
		s.audit.Record(model.AuditEntry{
			TutorID: tutorID,
			Date:    slot.Date,
			Hour:    slot.Hour,
			Action:  model.AuditActionRemoved,
			Reason:  model.AuditReasonClearFuture,
			Actor:   tutorID,
		})
	}

	s.logger.Info("Future slots cleared",
		zap.Int64("tutor_id", tutorID),
		zap.Int("removed", len(cleared)),
		zap.Int("skipped_booked", skipped),
	)

	return len(cleared), skipped, nil
}

// MaterializeAll разворачивает шаблоны всех репетиторов на weeksAhead
// недель вперёд. Вызывается фоновой задачей, чтобы регулярная
// доступность не кончалась.
func (s *TemplateService) MaterializeAll(ctx context.Context, weeksAhead int) error {
	tutorIDs, err := s.templates.ListTutorIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tutors with templates: %w", err)
	}

	now := s.clock.Now()
	total := 0

	for _, tutorID := range tutorIDs {
		for week := 0; week < weeksAhead; week++ {
			created, err := s.Materialize(ctx, tutorID, mondayOf(now).AddDate(0, 0, 7*week))
			if err != nil {
				s.logger.Error("Failed to materialize template",
					zap.Error(err),
					zap.Int64("tutor_id", tutorID),
				)
				break
			}
			total += len(created)
		}
	}

	s.logger.Info("Materialized all templates",
		zap.Int("tutors", len(tutorIDs)),
		zap.Int("slots_created", total),
	)

	return nil
}
