package service

import (
	"context"
	"sync"
	"time"

	"github.com/tutorlane/scheduler/internal/model"
	"github.com/tutorlane/scheduler/internal/repository"
	"go.uber.org/zap"
)

// Recorder — боковой канал аудита, который видят сервисы
type Recorder interface {
	// Record никогда не блокирует и не возвращает ошибку
	Record(entry model.AuditEntry)
}

// AuditRecorder пишет журнал асинхронно через буферизованный канал.
// Отказ аудита никогда не доходит до вызывающей операции: переполнение
// буфера или ошибка записи — это Warn в логе, не ошибка пользователю.
type AuditRecorder struct {
	store  repository.AuditStore
	logger *zap.Logger
	ch     chan model.AuditEntry
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

const auditBufferSize = 256

func NewAuditRecorder(store repository.AuditStore, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{
		store:  store,
		logger: logger,
		ch:     make(chan model.AuditEntry, auditBufferSize),
		done:   make(chan struct{}),
	}
}

// Start запускает фоновую запись журнала
func (r *AuditRecorder) Start() {
	go r.run()
}

// Stop дописывает буфер и останавливает воркер. Повторный Stop безопасен.
func (r *AuditRecorder) Stop() {
	r.mu.Lock()
	alreadyStopped := r.stopped
	r.stopped = true
	if !alreadyStopped {
		close(r.ch)
	}
	r.mu.Unlock()

	<-r.done
}

// Record ставит запись в очередь. При полном буфере или после Stop
// запись теряется; отправка в закрытый канал исключена.
func (r *AuditRecorder) Record(entry model.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		r.logger.Warn("Audit recorder stopped, entry dropped",
			zap.Int64("tutor_id", entry.TutorID),
			zap.String("action", string(entry.Action)),
			zap.String("reason", entry.Reason),
		)
		return
	}

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("Audit buffer full, entry dropped",
			zap.Int64("tutor_id", entry.TutorID),
			zap.String("action", string(entry.Action)),
			zap.String("reason", entry.Reason),
		)
	}
}

func (r *AuditRecorder) run() {
	defer close(r.done)

	for entry := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.store.Append(ctx, &entry)
		cancel()

		if err != nil {
			r.logger.Warn("Failed to append audit entry",
				zap.Error(err),
				zap.Int64("tutor_id", entry.TutorID),
				zap.String("reason", entry.Reason),
			)
		}
	}
}
