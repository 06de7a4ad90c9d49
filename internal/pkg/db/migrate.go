package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// schema is applied in order. Every statement is idempotent.
var schema = []struct {
	name string
	ddl  string
}{
	{"games", `
		CREATE TABLE IF NOT EXISTS games (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			type VARCHAR(32) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"game_items", `
		CREATE TABLE IF NOT EXISTS game_items (
			id UUID PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id),
			number VARCHAR(8) NOT NULL,
			name VARCHAR(255) NOT NULL,
			multiplier NUMERIC(10,2) NOT NULL DEFAULT 0,
			display_order INT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (game_id, number)
		)`},
	{"draw_templates", `
		CREATE TABLE IF NOT EXISTS draw_templates (
			id UUID PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id),
			name VARCHAR(255) NOT NULL,
			days_of_week INT[] NOT NULL,
			draw_times TEXT[] NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"draws", `
		CREATE TABLE IF NOT EXISTS draws (
			id UUID PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id),
			template_id UUID REFERENCES draw_templates(id),
			draw_date DATE NOT NULL,
			draw_time VARCHAR(8) NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'SCHEDULED',
			preselected_item_id UUID REFERENCES game_items(id),
			preselection_source VARCHAR(16),
			winner_item_id UUID REFERENCES game_items(id),
			image_url TEXT,
			closed_at TIMESTAMPTZ,
			drawn_at TIMESTAMPTZ,
			published_at TIMESTAMPTZ,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT draws_slot_unique UNIQUE (game_id, draw_date, draw_time)
		)`},
	{"idx_draws_status_scheduled", `CREATE INDEX IF NOT EXISTS idx_draws_status_scheduled ON draws(status, scheduled_at)`},
	{"idx_draws_drawn_at", `CREATE INDEX IF NOT EXISTS idx_draws_drawn_at ON draws(drawn_at) WHERE published_at IS NULL`},
	{"draw_pauses", `
		CREATE TABLE IF NOT EXISTS draw_pauses (
			id UUID PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id),
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			reason TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`},
	{"channels", `
		CREATE TABLE IF NOT EXISTS channels (
			id UUID PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id),
			channel_type VARCHAR(16) NOT NULL,
			name VARCHAR(255) NOT NULL,
			message_template TEXT NOT NULL DEFAULT '',
			recipients TEXT[] NOT NULL DEFAULT '{}',
			settings JSONB NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`},
	{"publications", `
		CREATE TABLE IF NOT EXISTS publications (
			id BIGSERIAL PRIMARY KEY,
			draw_id UUID NOT NULL REFERENCES draws(id),
			channel_id UUID NOT NULL REFERENCES channels(id),
			channel_type VARCHAR(16) NOT NULL,
			channel_name VARCHAR(255) NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"idx_publications_draw", `CREATE INDEX IF NOT EXISTS idx_publications_draw ON publications(draw_id, channel_id, id)`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			action VARCHAR(64) NOT NULL,
			entity VARCHAR(64) NOT NULL,
			entity_id VARCHAR(64) NOT NULL,
			changes JSONB,
			actor VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	{"system_config", `
		CREATE TABLE IF NOT EXISTS system_config (
			key VARCHAR(64) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
}

// Migrate creates the draw engine schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, step := range schema {
		if _, err := pool.Exec(ctx, step.ddl); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", step.name, err)
		}
	}
	log.Info().Int("steps", len(schema)).Msg("Database migrations completed")
	return nil
}
