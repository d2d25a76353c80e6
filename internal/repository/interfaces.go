package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tutorlane/scheduler/internal/model"
)

// SlotStore — хранилище слотов, одна строка на (tutor_id, slot_date, slot_hour).
// Все мутации статуса выполняются условными UPDATE с проверкой числа
// затронутых строк, поэтому гонки разрешаются на уровне хранилища.
// Валидация времени (прошлое, разрешённые часы) — обязанность вызывающего
// сервиса: "now" фиксируется один раз на запрос на уровне сервиса.
type SlotStore interface {
	// Get возвращает слот или ErrNotFound
	Get(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error)

	// UpsertAvailable открывает слот. Идемпотентен: для уже открытого слота
	// возвращает его с created=false. Слот со статусом unavailable снова
	// становится available. Для pending/booked возвращает ErrSlotBooked.
	UpsertAvailable(ctx context.Context, tutorID int64, date time.Time, hour int) (slot *model.TimeSlot, created bool, err error)

	// Remove закрывает слот: строка без истории бронирований удаляется,
	// строка, на которую когда-либо ссылалось бронирование, переводится
	// в unavailable. Для pending/booked — ErrSlotBooked.
	// Отсутствующий слот — не ошибка.
	Remove(ctx context.Context, tutorID int64, date time.Time, hour int) error

	// Claim атомарно переводит available -> pending и записывает bookingID.
	// Единственная точка compare-and-swap, защищающая от двойного бронирования:
	// из двух одновременных вызовов ровно один получает слот, второй —
	// ErrSlotUnavailable.
	Claim(ctx context.Context, tutorID int64, date time.Time, hour int, bookingID uuid.UUID) (*model.TimeSlot, error)

	// Release переводит pending/booked -> available и очищает bookingID.
	// Для уже свободного слота — ErrInvalidTransition.
	Release(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error)

	// Confirm переводит pending -> booked (зеркало подтверждения бронирования)
	Confirm(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.TimeSlot, error)

	// ListByTutor возвращает слоты репетитора за период [from, to)
	ListByTutor(ctx context.Context, tutorID int64, from, to time.Time) ([]*model.TimeSlot, error)

	// AvailableHours возвращает отсортированные свободные часы даты
	AvailableHours(ctx context.Context, tutorID int64, date time.Time) ([]int, error)

	// ClearFutureAvailable закрывает все свободные слоты со стартом после after.
	// Возвращает закрытые слоты и число пропущенных занятых.
	ClearFutureAvailable(ctx context.Context, tutorID int64, after time.Time) (removed []*model.TimeSlot, skippedBooked int, err error)

	// ListOrphaned возвращает слоты, провисевшие в занятом статусе дольше
	// grace без живого бронирования: pending после неудавшегося Book
	// и booked после отмены с исчерпанным release. Путь фоновой выверки.
	ListOrphaned(ctx context.Context, grace time.Duration) ([]*model.TimeSlot, error)

	// CountByStatus считает слоты репетитора по статусам в окне [from, to)
	CountByStatus(ctx context.Context, tutorID int64, from, to time.Time) (map[model.SlotStatus]int, error)
}

// BookingLedger — журнал бронирований. Записи никогда не удаляются.
type BookingLedger interface {
	Create(ctx context.Context, booking *model.Booking) error

	// GetByID возвращает бронирование или ErrNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)

	// ActiveBySlot возвращает бронирование в статусе pending/confirmed,
	// удерживающее слот, либо ErrNotFound
	ActiveBySlot(ctx context.Context, tutorID int64, date time.Time, hour int) (*model.Booking, error)

	// UpdateStatus — условный переход from -> to. Если текущий статус
	// не совпадает с from (в том числе для терминальных статусов),
	// возвращает ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.BookingStatus) error

	ListByTutor(ctx context.Context, tutorID int64) ([]*model.Booking, error)
	ListByLearner(ctx context.Context, learnerID int64) ([]*model.Booking, error)

	// CountCompletedSince считает завершённые занятия репетитора с момента since
	CountCompletedSince(ctx context.Context, tutorID int64, since time.Time) (int, error)
}

// TemplateStore — хранилище недельных шаблонов, строка на (tutor, weekday, hour)
type TemplateStore interface {
	// ReplaceDay атомарно заменяет набор часов дня недели.
	// Частично отредактированное состояние снаружи не наблюдаемо.
	ReplaceDay(ctx context.Context, tutorID int64, weekday time.Weekday, hours []int) error

	// Pattern собирает полный шаблон репетитора
	Pattern(ctx context.Context, tutorID int64) (*model.WeeklyTemplate, error)

	// ListTutorIDs возвращает репетиторов, у которых есть шаблон
	ListTutorIDs(ctx context.Context) ([]int64, error)
}

// AuditStore — append-only журнал изменений слотов
type AuditStore interface {
	Append(ctx context.Context, entry *model.AuditEntry) error

	// History возвращает записи с момента since, новые первыми
	History(ctx context.Context, tutorID int64, since time.Time) ([]*model.AuditEntry, error)
}

// SessionCatalog — каталог занятий (внешний для движка справочник)
type SessionCatalog interface {
	Create(ctx context.Context, session *model.Session) error

	// GetByID возвращает позицию каталога или ErrNotFound
	GetByID(ctx context.Context, id int64) (*model.Session, error)

	// ListByTutor возвращает каталог репетитора
	ListByTutor(ctx context.Context, tutorID int64) ([]*model.Session, error)
}
