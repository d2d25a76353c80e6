package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Ожидает подтверждения репетитора
	BookingStatusConfirmed BookingStatus = "confirmed" // Подтверждено
	BookingStatusCompleted BookingStatus = "completed" // Занятие прошло
	BookingStatusCancelled BookingStatus = "cancelled" // Отменено
)

// IsTerminal сообщает, является ли статус конечным.
// Из completed и cancelled переходов нет.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// IsActive — бронирование удерживает слот (pending или confirmed)
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// ContactInfo — контактные данные ученика, снимок на момент бронирования
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Booking struct {
	ID        uuid.UUID     `json:"id"`
	TutorID   int64         `json:"tutor_id"`
	LearnerID int64         `json:"learner_id"`
	SessionID int64         `json:"session_id"`
	Date      time.Time     `json:"date"` // ссылка на слот: дата + час
	Hour      int           `json:"hour"`
	Status    BookingStatus `json:"status"`
	Price     int           `json:"price"` // снимок цены из каталога на момент создания
	Contact   ContactInfo   `json:"contact"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Slot    *TimeSlot `json:"slot,omitempty"`
	Session *Session  `json:"session,omitempty"`
}
