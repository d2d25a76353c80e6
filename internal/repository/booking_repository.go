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

const bookingColumns = `id, tutor_id, learner_id, session_id, slot_date, slot_hour, status, price,
		contact_name, contact_email, contact_phone, created_at, updated_at`

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.TutorID,
		&b.LearnerID,
		&b.SessionID,
		&b.Date,
		&b.Hour,
		&b.Status,
		&b.Price,
		&b.Contact.Name,
		&b.Contact.Email,
		&b.Contact.Phone,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create создаёт запись бронирования
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (id, tutor_id, learner_id, session_id, slot_date, slot_hour, status, price,
			contact_name, contact_email, contact_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		booking.ID,
		booking.TutorID,
		booking.LearnerID,
		booking.SessionID,
		dateOf(booking.Date),
		booking.Hour,
		booking.Status,
		booking.Price,
		booking.Contact.Name,
		booking.Contact.Email,
		booking.Contact.Phone,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE id = $1
	`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get booking: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}

	return booking, nil
}

// ActiveBySlot получает живое бронирование, удерживающее слот.
// Частичный уникальный индекс гарантирует не больше одного.
func (r *BookingRepository) ActiveBySlot(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE tutor_id = $1 AND slot_date = $2 AND slot_hour = $3
		  AND status IN ('pending', 'confirmed')
	`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, tutorID, dateOf(date), hour))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get active booking by slot: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get active booking by slot: %w", err)
	}

	return booking, nil
}

// UpdateStatus — условный переход статуса. Проверка текущего статуса
// в самом UPDATE: раз состязающиеся Confirm/Cancel проходят через одну
// и ту же условную запись, выигрывает ровно один.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update booking status: %w", model.ErrInvalidTransition)
	}

	return nil
}

// ListByTutor получает все бронирования репетитора
func (r *BookingRepository) ListByTutor(ctx context.Context, tutorID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE tutor_id = $1
		ORDER BY created_at DESC
	`

	return r.list(ctx, query, tutorID)
}

// ListByLearner получает все бронирования ученика
func (r *BookingRepository) ListByLearner(ctx context.Context, learnerID int64) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE learner_id = $1
		ORDER BY created_at DESC
	`

	return r.list(ctx, query, learnerID)
}

func (r *BookingRepository) list(ctx context.Context, query string, arg any) ([]*model.Booking, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// CountCompletedSince считает завершённые занятия с момента since
func (r *BookingRepository) CountCompletedSince(ctx context.Context, tutorID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE tutor_id = $1 AND status = 'completed' AND updated_at >= $2
	`

	var n int
	if err := r.pool.QueryRow(ctx, query, tutorID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed bookings: %w", err)
	}

	return n, nil
}
