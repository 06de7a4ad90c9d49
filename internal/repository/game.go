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

// GameRepository handles games and their items. Both are reference data.
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

// CreateGame inserts a game.
func (r *GameRepository) CreateGame(ctx context.Context, g *model.Game) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO games (id, name, slug, type, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, g.ID, g.Name, g.Slug, g.Type, g.IsActive); err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// GetGame retrieves a game by id.
func (r *GameRepository) GetGame(ctx context.Context, id string) (*model.Game, error) {
	const query = `SELECT id, name, slug, type, is_active FROM games WHERE id = $1`

	var g model.Game
	err := r.pool.QueryRow(ctx, query, id).Scan(&g.ID, &g.Name, &g.Slug, &g.Type, &g.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}

// ListGames returns every game ordered by name.
func (r *GameRepository) ListGames(ctx context.Context) ([]*model.Game, error) {
	const query = `SELECT id, name, slug, type, is_active FROM games ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.Type, &g.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

// CreateItems inserts the items of a game in one batch.
func (r *GameRepository) CreateItems(ctx context.Context, items []*model.GameItem) error {
	const query = `
		INSERT INTO game_items (id, game_id, number, name, multiplier, display_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	batch := &pgx.Batch{}
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		batch.Queue(query, it.ID, it.GameID, it.Number, it.Name, it.Multiplier, it.DisplayOrder, it.IsActive)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to create items: %w", err)
	}
	return nil
}

// GetItem retrieves a game item by id.
func (r *GameRepository) GetItem(ctx context.Context, id string) (*model.GameItem, error) {
	const query = `
		SELECT id, game_id, number, name, multiplier, display_order, is_active
		FROM game_items
		WHERE id = $1
	`

	var it model.GameItem
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&it.ID, &it.GameID, &it.Number, &it.Name, &it.Multiplier, &it.DisplayOrder, &it.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &it, nil
}

// ListActiveItems returns the active items of a game in display order.
func (r *GameRepository) ListActiveItems(ctx context.Context, gameID string) ([]*model.GameItem, error) {
	const query = `
		SELECT id, game_id, number, name, multiplier, display_order, is_active
		FROM game_items
		WHERE game_id = $1 AND is_active
		ORDER BY display_order, number
	`

	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*model.GameItem
	for rows.Next() {
		var it model.GameItem
		if err := rows.Scan(
			&it.ID, &it.GameID, &it.Number, &it.Name, &it.Multiplier, &it.DisplayOrder, &it.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}
