package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
)

// Notifier receives draw events.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

// Multi forwards every event to each of its notifiers in order.
type Multi []Notifier

// Notify implements service.Notifier.
func (m Multi) Notify(ctx context.Context, ev model.Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}

// Log writes every event to the debug log.
type Log struct{}

// Notify implements service.Notifier.
func (Log) Notify(_ context.Context, ev model.Event) {
	log.Debug().
		Str("type", ev.Type).
		Str("draw_id", ev.DrawID).
		Str("game_id", ev.GameID).
		Interface("payload", ev.Payload).
		Msg("Event")
}
