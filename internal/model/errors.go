package model

import "errors"

// Ошибки движка расписания. Слои выше различают их через errors.Is.
var (
	// ErrInvalidHour — час вне разрешённого набора (см. BookableHours)
	ErrInvalidHour = errors.New("hour is not bookable")

	// ErrPastDate — попытка изменить слот, начало которого уже наступило.
	// Прошлое неизменяемо: граница считается как start <= now.
	ErrPastDate = errors.New("slot time is in the past")

	// ErrSlotUnavailable — слот не в статусе available; в частности,
	// проигранная гонка за claim. Ожидаемый исход под нагрузкой, не сбой.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrSlotBooked — попытка удалить занятый слот
	ErrSlotBooked = errors.New("slot has an active booking")

	// ErrTooEarly — завершение занятия до его начала
	ErrTooEarly = errors.New("slot has not started yet")

	// ErrSessionUnavailable — занятие нельзя забронировать: id не указан,
	// позиция не принадлежит репетитору или выключена
	ErrSessionUnavailable = errors.New("session is not available for booking")

	// ErrAccessDenied — актор не владеет бронированием или слотом
	ErrAccessDenied = errors.New("access denied")

	// ErrEmptySource — у дня-источника нет свободных часов для копирования
	ErrEmptySource = errors.New("source day has no available hours")

	// ErrNotFound — запрошенная запись отсутствует
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition — недопустимый переход статуса
	// (в том числе повторная отмена уже отменённого бронирования)
	ErrInvalidTransition = errors.New("invalid status transition")
)
