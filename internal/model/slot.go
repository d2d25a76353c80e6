package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable   SlotStatus = "available"
	SlotStatusPending     SlotStatus = "pending"
	SlotStatusBooked      SlotStatus = "booked"
	SlotStatusUnavailable SlotStatus = "unavailable"
)

// SlotDuration — фиксированная длительность занятия, частичных часов нет.
const SlotDuration = time.Hour

// BookableHours — часы, в которые разрешено открывать слоты.
// 12:00 — обеденный час, слот на него не создаётся никогда.
var BookableHours = []int{8, 9, 10, 11, 13, 14, 15, 16, 17}

// IsBookableHour проверяет, входит ли час в разрешённый набор
func IsBookableHour(hour int) bool {
	for _, h := range BookableHours {
		if h == hour {
			return true
		}
	}
	return false
}

// TimeSlot — один бронируемый час репетитора.
// Идентичность задаётся тройкой (tutor_id, slot_date, slot_hour).
type TimeSlot struct {
	ID        int64      `json:"id"`
	TutorID   int64      `json:"tutor_id"`
	Date      time.Time  `json:"date"` // полночь дня слота
	Hour      int        `json:"hour"`
	Status    SlotStatus `json:"status"`
	BookingID *uuid.UUID `json:"booking_id"` // указатель - может быть nil
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StartTime возвращает момент начала слота
func (s *TimeSlot) StartTime() time.Time {
	return SlotStartTime(s.Date, s.Hour)
}

// SlotStartTime вычисляет момент начала слота для даты и часа
func SlotStartTime(date time.Time, hour int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, date.Location())
}
