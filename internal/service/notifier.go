package service

import (
	"context"

	"github.com/tutorlane/scheduler/internal/model"
	"go.uber.org/zap"
)

// Notifier — наблюдатель переходов бронирования. Вызывается после
// коммита перехода, fire-and-forget: его отказ не откатывает операцию.
type Notifier interface {
	BookingConfirmed(ctx context.Context, booking *model.Booking)
	BookingCompleted(ctx context.Context, booking *model.Booking)
	BookingCancelled(ctx context.Context, booking *model.Booking)
}

// LogNotifier — реализация по умолчанию, пишет события в лог.
// Доставка реальных уведомлений — забота внешнего коллаборатора.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BookingConfirmed(_ context.Context, booking *model.Booking) {
	n.notify("booking confirmed", booking)
}

func (n *LogNotifier) BookingCompleted(_ context.Context, booking *model.Booking) {
	n.notify("booking completed", booking)
}

func (n *LogNotifier) BookingCancelled(_ context.Context, booking *model.Booking) {
	n.notify("booking cancelled", booking)
}

func (n *LogNotifier) notify(event string, booking *model.Booking) {
	n.logger.Info("Notification: "+event,
		zap.String("booking_id", booking.ID.String()),
		zap.Int64("tutor_id", booking.TutorID),
		zap.Int64("learner_id", booking.LearnerID),
		zap.Time("date", booking.Date),
		zap.Int("hour", booking.Hour),
	)
}
