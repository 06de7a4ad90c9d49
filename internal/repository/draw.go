package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

const drawColumns = `
	id, game_id, template_id, draw_date, draw_time, scheduled_at, status,
	preselected_item_id, preselection_source, winner_item_id, image_url,
	closed_at, drawn_at, published_at, notes, created_at, updated_at`

// DrawRepository handles draw persistence.
type DrawRepository struct {
	pool *pgxpool.Pool
}

// NewDrawRepository creates a new DrawRepository instance.
func NewDrawRepository(pool *pgxpool.Pool) *DrawRepository {
	return &DrawRepository{pool: pool}
}

func scanDraw(row pgx.Row) (*model.Draw, error) {
	var d model.Draw
	err := row.Scan(
		&d.ID,
		&d.GameID,
		&d.TemplateID,
		&d.DrawDate,
		&d.DrawTime,
		&d.ScheduledAt,
		&d.Status,
		&d.PreselectedItemID,
		&d.PreselectionSource,
		&d.WinnerItemID,
		&d.ImageURL,
		&d.ClosedAt,
		&d.DrawnAt,
		&d.PublishedAt,
		&d.Notes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Create inserts a new draw. The id is generated when empty.
// Returns ErrDuplicateDraw if the (game, date, time) slot is taken.
func (r *DrawRepository) Create(ctx context.Context, d *model.Draw) (*model.Draw, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = model.StatusScheduled
	}

	query := `
		INSERT INTO draws (id, game_id, template_id, draw_date, draw_time, scheduled_at, status,
			preselected_item_id, preselection_source, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (game_id, draw_date, draw_time) DO NOTHING
		RETURNING` + drawColumns

	created, err := scanDraw(r.pool.QueryRow(ctx, query,
		d.ID,
		d.GameID,
		d.TemplateID,
		d.DrawDate,
		d.DrawTime,
		d.ScheduledAt,
		d.Status,
		d.PreselectedItemID,
		d.PreselectionSource,
		d.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateDraw
		}
		return nil, fmt.Errorf("failed to create draw: %w", err)
	}

	return created, nil
}

// GetByID retrieves a draw by id.
// Returns ErrDrawNotFound if the draw does not exist.
func (r *DrawRepository) GetByID(ctx context.Context, id string) (*model.Draw, error) {
	query := `SELECT` + drawColumns + ` FROM draws WHERE id = $1`

	d, err := scanDraw(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDrawNotFound
		}
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}

	return d, nil
}

// FindMany returns draws matching the filter, ordered by scheduled time
// (or by drawn time when OrderByDrawnAt is set).
func (r *DrawRepository) FindMany(ctx context.Context, f model.DrawFilter) ([]*model.Draw, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.GameID != "" {
		add("game_id = $%d", f.GameID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.DrawDate != nil {
		add("draw_date = $%d", *f.DrawDate)
	}
	if f.DrawTime != "" {
		add("draw_time = $%d", f.DrawTime)
	}
	if f.ScheduledFrom != nil {
		add("scheduled_at >= $%d", *f.ScheduledFrom)
	}
	if f.ScheduledTo != nil {
		add("scheduled_at <= $%d", *f.ScheduledTo)
	}
	if f.DrawnSince != nil {
		add("drawn_at >= $%d", *f.DrawnSince)
	}
	if f.Unpublished {
		conds = append(conds, "published_at IS NULL")
	}

	var sb strings.Builder
	sb.WriteString(`SELECT` + drawColumns + ` FROM draws`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	if f.OrderByDrawnAt {
		sb.WriteString(" ORDER BY drawn_at ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY scheduled_at ASC, id ASC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query draws: %w", err)
	}
	defer rows.Close()

	var draws []*model.Draw
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw: %w", err)
		}
		draws = append(draws, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating draws: %w", err)
	}

	return draws, nil
}

// Update applies patch only if the draw is still in the expected status
// (and, with IfWinnerItemID, still has that winner).
// Returns ErrStaleStatus when the guard rejects the update and
// ErrDrawNotFound when the draw does not exist.
func (r *DrawRepository) Update(ctx context.Context, id string, expected model.DrawStatus, patch model.DrawPatch) (*model.Draw, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id, expected}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.PreselectedItemID != nil {
		set("preselected_item_id", *patch.PreselectedItemID)
	}
	if patch.PreselectionSource != nil {
		set("preselection_source", *patch.PreselectionSource)
	}
	if patch.WinnerItemID != nil {
		set("winner_item_id", *patch.WinnerItemID)
	}
	if patch.ImageURL != nil {
		set("image_url", *patch.ImageURL)
	}
	if patch.ClosedAt != nil {
		set("closed_at", *patch.ClosedAt)
	}
	if patch.DrawnAt != nil {
		set("drawn_at", *patch.DrawnAt)
	}
	if patch.PublishedAt != nil {
		set("published_at", *patch.PublishedAt)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}

	where := ` WHERE id = $1 AND status = $2`
	if patch.IfWinnerItemID != nil {
		args = append(args, *patch.IfWinnerItemID)
		where += fmt.Sprintf(" AND winner_item_id = $%d", len(args))
	}

	query := `UPDATE draws SET ` + strings.Join(sets, ", ") + where + ` RETURNING` + drawColumns

	d, err := scanDraw(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update draw: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM draws WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check draw: %w", err)
	}
	if !exists {
		return nil, ErrDrawNotFound
	}
	return nil, ErrStaleStatus
}

// UsedItemsOn returns the items already preselected on other live draws of
// the game on the given date.
func (r *DrawRepository) UsedItemsOn(ctx context.Context, gameID string, date time.Time, excludeDrawID string) ([]string, error) {
	const query = `
		SELECT DISTINCT preselected_item_id::text
		FROM draws
		WHERE game_id = $1
		  AND draw_date = $2
		  AND id <> $3
		  AND preselected_item_id IS NOT NULL
		  AND status <> 'CANCELLED'
	`

	rows, err := r.pool.Query(ctx, query, gameID, date, excludeDrawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query used items: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect used items: %w", err)
	}
	return ids, nil
}
