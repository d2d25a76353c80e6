package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlane/scheduler/internal/model"
)

// AuditRepository — append-only журнал изменений слотов
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append добавляет запись в журнал
func (r *AuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	query := `
		INSERT INTO audit_log (tutor_id, slot_date, slot_hour, action, reason, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		entry.TutorID,
		dateOf(entry.Date),
		entry.Hour,
		entry.Action,
		entry.Reason,
		entry.Actor,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}

// History возвращает записи журнала с момента since, новые первыми
func (r *AuditRepository) History(ctx context.Context, tutorID int64, since time.Time) ([]*model.AuditEntry, error) {
	query := `
		SELECT id, tutor_id, slot_date, slot_hour, action, reason, actor, created_at
		FROM audit_log
		WHERE tutor_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, tutorID, since)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		err := rows.Scan(
			&e.ID,
			&e.TutorID,
			&e.Date,
			&e.Hour,
			&e.Action,
			&e.Reason,
			&e.Actor,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
