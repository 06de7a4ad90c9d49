package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"draw-engine/internal/model"
)

// KeyEmergencyStop halts every automatic job while set to "true".
const KeyEmergencyStop = "emergency_stop"

// SystemRepository handles draw pauses and system-wide switches.
type SystemRepository struct {
	pool *pgxpool.Pool
}

// NewSystemRepository creates a new SystemRepository instance.
func NewSystemRepository(pool *pgxpool.Pool) *SystemRepository {
	return &SystemRepository{pool: pool}
}

// CreatePause inserts a draw pause.
func (r *SystemRepository) CreatePause(ctx context.Context, p *model.DrawPause) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO draw_pauses (id, game_id, start_date, end_date, reason, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query, p.ID, p.GameID, p.StartDate, p.EndDate, p.Reason, p.IsActive); err != nil {
		return fmt.Errorf("failed to create pause: %w", err)
	}
	return nil
}

// IsPaused reports whether an active pause covers the game on date.
func (r *SystemRepository) IsPaused(ctx context.Context, gameID string, date time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM draw_pauses
			WHERE game_id = $1 AND is_active AND start_date <= $2 AND end_date >= $2
		)
	`
	var paused bool
	if err := r.pool.QueryRow(ctx, query, gameID, date).Scan(&paused); err != nil {
		return false, fmt.Errorf("failed to check pause: %w", err)
	}
	return paused, nil
}

// Get returns a system config value. ok is false when the key is unset.
func (r *SystemRepository) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.pool.QueryRow(ctx, `SELECT value FROM system_config WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get system config: %w", err)
	}
	return value, true, nil
}

// Set upserts a system config value.
func (r *SystemRepository) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set system config: %w", err)
	}
	return nil
}

// EmergencyStop reports whether the emergency stop switch is on.
func (r *SystemRepository) EmergencyStop(ctx context.Context) (bool, error) {
	v, ok, err := r.Get(ctx, KeyEmergencyStop)
	if err != nil || !ok {
		return false, err
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return on, nil
}
