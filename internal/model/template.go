package model

import "time"

// WeeklyTemplate — недельный шаблон доступности репетитора.
// Шаблон — только образец для генерации: бронирования проверяются
// по материализованным слотам, а не по шаблону.
type WeeklyTemplate struct {
	TutorID int64                  `json:"tutor_id"`
	Days    map[time.Weekday][]int `json:"days"` // weekday -> отсортированные часы
}

// HoursFor возвращает часы шаблона для дня недели
func (t *WeeklyTemplate) HoursFor(weekday time.Weekday) []int {
	if t == nil || t.Days == nil {
		return nil
	}
	return t.Days[weekday]
}
