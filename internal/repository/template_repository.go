package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlane/scheduler/internal/model"
)

// TemplateRepository хранит недельные шаблоны доступности,
// строка на (tutor_id, weekday, hour)
type TemplateRepository struct {
	pool *pgxpool.Pool
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// ReplaceDay атомарно заменяет часы одного дня недели.
// Удаление и вставка идут в одной транзакции, поэтому снаружи
// шаблон всегда виден целиком.
func (r *TemplateRepository) ReplaceDay(ctx context.Context, tutorID int64, weekday time.Weekday, hours []int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM weekly_templates WHERE tutor_id = $1 AND weekday = $2`,
		tutorID, int(weekday))
	if err != nil {
		return fmt.Errorf("clear template day: %w", err)
	}

	for _, hour := range hours {
		_, err = tx.Exec(ctx,
			`INSERT INTO weekly_templates (tutor_id, weekday, hour) VALUES ($1, $2, $3)`,
			tutorID, int(weekday), hour)
		if err != nil {
			return fmt.Errorf("insert template hour: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Pattern собирает полный шаблон репетитора
func (r *TemplateRepository) Pattern(ctx context.Context, tutorID int64) (*model.WeeklyTemplate, error) {
	query := `
		SELECT weekday, hour
		FROM weekly_templates
		WHERE tutor_id = $1
		ORDER BY weekday, hour
	`

	rows, err := r.pool.Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	defer rows.Close()

	template := &model.WeeklyTemplate{
		TutorID: tutorID,
		Days:    make(map[time.Weekday][]int),
	}

	for rows.Next() {
		var weekday, hour int
		if err := rows.Scan(&weekday, &hour); err != nil {
			return nil, fmt.Errorf("scan template row: %w", err)
		}
		wd := time.Weekday(weekday)
		template.Days[wd] = append(template.Days[wd], hour)
	}

	return template, rows.Err()
}

// ListTutorIDs возвращает всех репетиторов с непустым шаблоном
func (r *TemplateRepository) ListTutorIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tutor_id FROM weekly_templates ORDER BY tutor_id`)
	if err != nil {
		return nil, fmt.Errorf("list template tutors: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tutor id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
