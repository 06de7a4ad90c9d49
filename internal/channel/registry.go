package channel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
	"draw-engine/internal/service"
)

// Lister loads channel rows.
type Lister interface {
	FindActiveChannelsForGame(ctx context.Context, gameID string) ([]*model.Channel, error)
}

// Registry resolves a game's active channel rows into senders.
type Registry struct {
	lister    Lister
	endpoints Endpoints
	guard     *Guard
}

// NewRegistry creates a Registry. guard may be nil.
func NewRegistry(lister Lister, endpoints Endpoints, guard *Guard) *Registry {
	return &Registry{lister: lister, endpoints: endpoints, guard: guard}
}

// FindActiveChannelsForGame returns the game's sendable channels. A channel
// whose sender cannot be built still takes part and fails on send, so the
// misconfiguration is recorded as a failed publication.
func (r *Registry) FindActiveChannelsForGame(ctx context.Context, gameID string) ([]service.Channel, error) {
	rows, err := r.lister.FindActiveChannelsForGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channels: %w", err)
	}

	out := make([]service.Channel, 0, len(rows))
	for _, row := range rows {
		sender, err := NewSender(row, r.endpoints)
		if err != nil {
			log.Warn().Err(err).Str("channel_id", row.ID).Str("channel_type", string(row.Type)).Msg("Channel misconfigured")
			sender = broken{err: err}
		}
		out = append(out, NewConfigured(row, sender, r.guard))
	}
	return out, nil
}

type broken struct{ err error }

func (b broken) Send(context.Context, model.Content) error { return b.err }
