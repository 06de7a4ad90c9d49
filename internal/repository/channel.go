package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

const channelColumns = `id, game_id, channel_type, name, message_template, recipients, settings, is_active`

// ChannelRepository handles configured publication channels.
type ChannelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new ChannelRepository instance.
func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{pool: pool}
}

func scanChannel(row pgx.Row) (*model.Channel, error) {
	var c model.Channel
	err := row.Scan(&c.ID, &c.GameID, &c.Type, &c.Name, &c.MessageTemplate, &c.Recipients, &c.Settings, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a channel.
func (r *ChannelRepository) Create(ctx context.Context, c *model.Channel) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Recipients == nil {
		c.Recipients = []string{}
	}
	if c.Settings == nil {
		c.Settings = map[string]string{}
	}
	const query = `
		INSERT INTO channels (` + channelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		c.ID, c.GameID, c.Type, c.Name, c.MessageTemplate, c.Recipients, c.Settings, c.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by id.
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*model.Channel, error) {
	c, err := scanChannel(r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return c, nil
}

// FindActiveChannelsForGame returns the active channels of a game.
func (r *ChannelRepository) FindActiveChannelsForGame(ctx context.Context, gameID string) ([]*model.Channel, error) {
	const query = `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE game_id = $1 AND is_active
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}
