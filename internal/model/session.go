package model

import "time"

// Session — позиция каталога занятий репетитора.
// Движок читает отсюда только цену и активность, содержимое каталога не валидирует.
type Session struct {
	ID          int64     `json:"id"`
	TutorID     int64     `json:"tutor_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
