package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

// PublicationRepository handles the append-only publication log.
type PublicationRepository struct {
	pool *pgxpool.Pool
}

// NewPublicationRepository creates a new PublicationRepository instance.
func NewPublicationRepository(pool *pgxpool.Pool) *PublicationRepository {
	return &PublicationRepository{pool: pool}
}

// Append records one dispatch attempt. Rows are never updated.
func (r *PublicationRepository) Append(ctx context.Context, p *model.Publication) error {
	const query = `
		INSERT INTO publications (draw_id, channel_id, channel_type, channel_name, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		p.DrawID, p.ChannelID, p.ChannelType, p.ChannelName, p.Success, p.Error,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append publication: %w", err)
	}
	return nil
}

// ListByDraw returns every attempt for a draw in insertion order.
func (r *PublicationRepository) ListByDraw(ctx context.Context, drawID string) ([]*model.Publication, error) {
	const query = `
		SELECT id, draw_id, channel_id, channel_type, channel_name, success, error, created_at
		FROM publications
		WHERE draw_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query publications: %w", err)
	}
	defer rows.Close()

	var pubs []*model.Publication
	for rows.Next() {
		var p model.Publication
		if err := rows.Scan(
			&p.ID, &p.DrawID, &p.ChannelID, &p.ChannelType, &p.ChannelName, &p.Success, &p.Error, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan publication: %w", err)
		}
		pubs = append(pubs, &p)
	}
	return pubs, rows.Err()
}

// AttemptsByChannel summarizes the attempts per channel for a draw:
// how many there were and whether the latest one succeeded.
func (r *PublicationRepository) AttemptsByChannel(ctx context.Context, drawID string) ([]model.ChannelAttempts, error) {
	const query = `
		SELECT channel_id::text, COUNT(*), (ARRAY_AGG(success ORDER BY id DESC))[1]
		FROM publications
		WHERE draw_id = $1
		GROUP BY channel_id
	`

	rows, err := r.pool.Query(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []model.ChannelAttempts
	for rows.Next() {
		var a model.ChannelAttempts
		if err := rows.Scan(&a.ChannelID, &a.Attempts, &a.LastSuccess); err != nil {
			return nil, fmt.Errorf("failed to scan attempts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
