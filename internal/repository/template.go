package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

// TemplateRepository handles draw templates.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository creates a new TemplateRepository instance.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Create inserts a template.
func (r *TemplateRepository) Create(ctx context.Context, t *model.DrawTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO draw_templates (id, game_id, name, days_of_week, draw_times, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, t.ID, t.GameID, t.Name, t.DaysOfWeek, t.DrawTimes, t.IsActive).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// FindActiveForDay returns active templates of active games that run on the ISO weekday.
func (r *TemplateRepository) FindActiveForDay(ctx context.Context, weekday int) ([]*model.DrawTemplate, error) {
	const query = `
		SELECT t.id, t.game_id, t.name, t.days_of_week, t.draw_times, t.is_active, t.created_at, t.updated_at
		FROM draw_templates t
		JOIN games g ON g.id = t.game_id
		WHERE t.is_active AND g.is_active AND $1 = ANY(t.days_of_week)
		ORDER BY t.game_id, t.created_at
	`

	rows, err := r.pool.Query(ctx, query, weekday)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.DrawTemplate
	for rows.Next() {
		var t model.DrawTemplate
		if err := rows.Scan(
			&t.ID, &t.GameID, &t.Name, &t.DaysOfWeek, &t.DrawTimes, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}
