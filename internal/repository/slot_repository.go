package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlane/scheduler/internal/model"
)

const slotColumns = `id, tutor_id, slot_date, slot_hour, status, booking_id, created_at, updated_at`

type SlotRepository struct {
	pool *pgxpool.Pool
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// dateOf нормализует дату для DATE-колонки
func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func scanSlot(row pgx.Row) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := row.Scan(
		&slot.ID,
		&slot.TutorID,
		&slot.Date,
		&slot.Hour,
		&slot.Status,
		&slot.BookingID,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// Get получает слот по тройке (tutor_id, slot_date, slot_hour)
func (r *SlotRepository) Get(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3
	`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, tutorID, dateOf(date), hour))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get slot: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}

	return slot, nil
}

// UpsertAvailable открывает слот (идемпотентно)
func (r *SlotRepository) UpsertAvailable(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, bool, error) {
	insert := `
		INSERT INTO time_slots (tutor_id, slot_date, slot_hour, status)
		VALUES ($1, $2, $3, 'available')
		ON CONFLICT (tutor_id, slot_date, slot_hour) DO NOTHING
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.pool.QueryRow(ctx, insert, tutorID, dateOf(date), hour))
	if err == nil {
		return slot, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("upsert slot: %w", err)
	}

	// Строка уже есть. Закрытый (unavailable) слот открываем заново.
	reopen := `
		UPDATE time_slots
		SET status = 'available', booking_id = NULL, updated_at = now()
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3 AND status = 'unavailable'
		RETURNING ` + slotColumns + `
	`

	slot, err = scanSlot(r.pool.QueryRow(ctx, reopen, tutorID, dateOf(date), hour))
	if err == nil {
		return slot, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("reopen slot: %w", err)
	}

	existing, err := r.Get(ctx, tutorID, date, hour)
	if err != nil {
		return nil, false, err
	}
	if existing.Status != model.SlotStatusAvailable {
		return nil, false, fmt.Errorf("upsert slot: %w", model.ErrSlotBooked)
	}

	return existing, false, nil
}

// Remove закрывает слот. Строка с историей бронирований не удаляется,
// а переводится в unavailable — бронирования должны продолжать ссылаться
// на существующий слот.
func (r *SlotRepository) Remove(ctx context.Context, tutorID int64, date time.Time, hour int) error {
	slot, err := r.Get(ctx, tutorID, date, hour)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Идемпотентность: отсутствующий слот уже "удалён"
			return nil
		}
		return err
	}

	if slot.Status == model.SlotStatusPending || slot.Status == model.SlotStatusBooked {
		return fmt.Errorf("remove slot: %w", model.ErrSlotBooked)
	}

	retire := `
		UPDATE time_slots
		SET status = 'unavailable', updated_at = now()
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3
		  AND status NOT IN ('pending', 'booked')
		  AND EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.tutor_id = $1 AND b.slot_date = $2 AND b.slot_hour = $3
		  )
	`

	tag, err := r.pool.Exec(ctx, retire, tutorID, dateOf(date), hour)
	if err != nil {
		return fmt.Errorf("retire slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	del := `
		DELETE FROM time_slots
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3
		  AND status NOT IN ('pending', 'booked')
	`

	tag, err = r.pool.Exec(ctx, del, tutorID, dateOf(date), hour)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Ни retire, ни delete не сработали: между чтением и удалением слот
	// либо исчез (идемпотентный исход), либо его успел занять claim
	current, err := r.Get(ctx, tutorID, date, hour)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}
	if current.Status == model.SlotStatusPending || current.Status == model.SlotStatusBooked {
		return fmt.Errorf("remove slot: %w", model.ErrSlotBooked)
	}

	return nil
}

// Claim атомарно резервирует слот под бронирование.
// Условный UPDATE — единственная защита от двойного бронирования,
// никакой проверки статуса в коде приложения перед записью.
func (r *SlotRepository) Claim(ctx context.Context, tutorID int64, date time.Time, hour int, bookingID uuid.UUID) (*model.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET status = 'pending', booking_id = $4, updated_at = now()
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3 AND status = 'available'
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, tutorID, dateOf(date), hour, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("claim slot: %w", model.ErrSlotUnavailable)
		}
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	return slot, nil
}

// Release возвращает занятый слот в available
func (r *SlotRepository) Release(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET status = 'available', booking_id = NULL, updated_at = now()
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3
		  AND status IN ('pending', 'booked')
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, tutorID, dateOf(date), hour))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("release slot: %w", model.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("release slot: %w", err)
	}

	return slot, nil
}

// Confirm переводит pending -> booked
func (r *SlotRepository) Confirm(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET status = 'booked', updated_at = now()
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3 AND status = 'pending'
		RETURNING ` + slotColumns + `
	`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, tutorID, dateOf(date), hour))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("confirm slot: %w", model.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("confirm slot: %w", err)
	}

	return slot, nil
}

// ListByTutor получает слоты репетитора за период
func (r *SlotRepository) ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE tutor_id = $1 AND slot_date >= $2 AND slot_date < $3
		ORDER BY slot_date, slot_hour
	`

	rows, err := r.pool.Query(ctx, query, tutorID, dateOf(from), dateOf(to))
	if err != nil {
		return nil, fmt.Errorf("list slots by tutor: %w", err)
	}
	defer rows.Close()

	var slots []*model.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// AvailableHours возвращает свободные часы даты
func (r *SlotRepository) AvailableHours(ctx context.Context, tutorID int64, date time.Time) ([]int, error) {
	query := `
		SELECT slot_hour
		FROM time_slots
		WHERE tutor_id = $1 AND slot_date = $2 AND status = 'available'
		ORDER BY slot_hour
	`

	rows, err := r.pool.Query(ctx, query, tutorID, dateOf(date))
	if err != nil {
		return nil, fmt.Errorf("available hours: %w", err)
	}
	defer rows.Close()

	var hours []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hour: %w", err)
		}
		hours = append(hours, h)
	}

	return hours, rows.Err()
}

// ClearFutureAvailable закрывает все будущие свободные слоты репетитора.
// Слоты с историей бронирований остаются строками со статусом unavailable,
// остальные удаляются. Занятые слоты не трогаем и считаем отдельно.
func (r *SlotRepository) ClearFutureAvailable(ctx context.Context, tutorID int64, after time.Time) ([]*model.TimeSlot, int, error) {
	retire := `
		UPDATE time_slots
		SET status = 'unavailable', updated_at = now()
		WHERE tutor_id = $1 AND status = 'available'
		  AND (slot_date + make_interval(hours => slot_hour)) > $2
		  AND EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.tutor_id = time_slots.tutor_id
			  AND b.slot_date = time_slots.slot_date
			  AND b.slot_hour = time_slots.slot_hour
		  )
		RETURNING ` + slotColumns + `
	`

	var removed []*model.TimeSlot

	rows, err := r.pool.Query(ctx, retire, tutorID, after)
	if err != nil {
		return nil, 0, fmt.Errorf("retire future slots: %w", err)
	}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan slot: %w", err)
		}
		removed = append(removed, slot)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("retire future slots: %w", err)
	}

	del := `
		DELETE FROM time_slots
		WHERE tutor_id = $1 AND status = 'available'
		  AND (slot_date + make_interval(hours => slot_hour)) > $2
		RETURNING ` + slotColumns + `
	`

	rows, err = r.pool.Query(ctx, del, tutorID, after)
	if err != nil {
		return nil, 0, fmt.Errorf("delete future slots: %w", err)
	}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan slot: %w", err)
		}
		removed = append(removed, slot)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("delete future slots: %w", err)
	}

	skippedQuery := `
		SELECT COUNT(*)
		FROM time_slots
		WHERE tutor_id = $1 AND status IN ('pending', 'booked')
		  AND (slot_date + make_interval(hours => slot_hour)) > $2
	`

	var skipped int
	if err := r.pool.QueryRow(ctx, skippedQuery, tutorID, after).Scan(&skipped); err != nil {
		return nil, 0, fmt.Errorf("count skipped slots: %w", err)
	}

	return removed, skipped, nil
}

// ListOrphaned находит слоты, застрявшие в занятом статусе без живого
// бронирования. Две формы сироты:
//   - pending: claim прошёл, бронирование не закоммитилось,
//     компенсирующий release не добил;
//   - booked: бронирование отменено, release при отмене исчерпал попытки.
//
// Booked-слот с завершённым бронированием сиротой не считается —
// он остаётся занятым как история.
func (r *SlotRepository) ListOrphaned(ctx context.Context, grace time.Duration) ([]*model.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots s
		WHERE s.updated_at < now() - $1::interval
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b
			WHERE b.tutor_id = s.tutor_id
			  AND b.slot_date = s.slot_date
			  AND b.slot_hour = s.slot_hour
			  AND b.status IN ('pending', 'confirmed')
		  )
		  AND (
			s.status = 'pending'
			OR (
			  s.status = 'booked'
			  AND EXISTS (
				SELECT 1 FROM bookings c
				WHERE c.id = s.booking_id AND c.status = 'cancelled'
			  )
			)
		  )
	`

	rows, err := r.pool.Query(ctx, query, grace)
	if err != nil {
		return nil, fmt.Errorf("list orphaned slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.TimeSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// CountByStatus считает слоты репетитора по статусам в окне [from, to)
func (r *SlotRepository) CountByStatus(ctx context.Context, tutorID int64, from, to time.Time) (map[model.SlotStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM time_slots
		WHERE tutor_id = $1
		  AND (slot_date + make_interval(hours => slot_hour)) >= $2
		  AND (slot_date + make_interval(hours => slot_hour)) < $3
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query, tutorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count slots by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.SlotStatus]int)
	for rows.Next() {
		var status model.SlotStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}
