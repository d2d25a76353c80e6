package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// slotReconciler освобождает осиротевшие занятые слоты
type slotReconciler interface {
	ReconcileOrphaned(ctx context.Context, grace time.Duration) (int, error)
}

// templateMaterializer разворачивает недельные шаблоны в слоты
type templateMaterializer interface {
	MaterializeAll(ctx context.Context, weeksAhead int) error
}

// Reconciler управляет фоновыми задачами движка:
//   - выверка осиротевших слотов (claim или отмена прошли,
//     а слот остался занятым без живого бронирования);
//   - периодическая материализация шаблонов, чтобы регулярная
//     доступность всегда была открыта на несколько недель вперёд.
type Reconciler struct {
	scheduling slotReconciler
	templates  templateMaterializer
	logger     *zap.Logger
	stopChan   chan struct{}
	wg         sync.WaitGroup
}

const (
	// orphanGrace — сколько слот может висеть занятым без
	// бронирования, прежде чем выверка его освободит
	orphanGrace = 5 * time.Minute

	sweepInterval       = time.Minute
	materializeInterval = 24 * time.Hour
	materializeWeeks    = 4
)

func NewReconciler(scheduling slotReconciler, templates templateMaterializer, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		scheduling: scheduling,
		templates:  templates,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("Starting background reconciler")

	r.wg.Add(2)
	go r.runSweep(ctx)
	go r.runMaterialize(ctx)
}

// Stop останавливает фоновые задачи и дожидается завершения начатых
// проходов: после возврата из Stop ни одна задача больше не пишет
// в аудит и не трогает хранилище.
func (r *Reconciler) Stop() {
	r.logger.Info("Stopping background reconciler")
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Reconciler) runSweep(ctx context.Context) {
	defer r.wg.Done()

	// Первый проход сразу при старте: сироты могли остаться
	// с прошлого запуска
	r.sweep(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.stopChan:
			r.logger.Info("Orphaned slot sweep stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	if _, err := r.scheduling.ReconcileOrphaned(ctx, orphanGrace); err != nil {
		r.logger.Error("Orphaned slot sweep failed", zap.Error(err))
	}
}

func (r *Reconciler) runMaterialize(ctx context.Context) {
	defer r.wg.Done()

	// Первый запуск сразу при старте
	r.materialize(ctx)

	ticker := time.NewTicker(materializeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.materialize(ctx)
		case <-r.stopChan:
			r.logger.Info("Template materialization task stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) materialize(ctx context.Context) {
	if err := r.templates.MaterializeAll(ctx, materializeWeeks); err != nil {
		r.logger.Error("Template materialization failed", zap.Error(err))
	}
}
