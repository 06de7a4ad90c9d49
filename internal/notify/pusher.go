package notify

import (
	"context"

	"github.com/pusher/pusher-http-go/v5"
	"github.com/rs/zerolog/log"

	"draw-engine/internal/model"
)

// Triggerer is the part of the Pusher client used here.
type Triggerer interface {
	Trigger(channel string, eventName string, data interface{}) error
}

// NewPusherClient builds a Pusher REST client.
func NewPusherClient(appID, key, secret, cluster string) *pusher.Client {
	return &pusher.Client{
		AppID:   appID,
		Key:     key,
		Secret:  secret,
		Cluster: cluster,
		Secure:  true,
	}
}

// Pusher forwards events to a Pusher channel. Triggers run on a background
// loop so a slow Pusher API never delays a lifecycle transition.
type Pusher struct {
	client  Triggerer
	channel string
	events  chan model.Event
}

// NewPusher creates a Pusher notifier. Run must be started to deliver events.
func NewPusher(client Triggerer, channel string) *Pusher {
	return &Pusher{client: client, channel: channel, events: make(chan model.Event, 256)}
}

// Notify queues ev; it drops the event when the queue is full.
func (p *Pusher) Notify(_ context.Context, ev model.Event) {
	select {
	case p.events <- ev:
	default:
		log.Warn().Str("type", ev.Type).Msg("Pusher queue full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			if err := p.client.Trigger(p.channel, ev.Type, ev); err != nil {
				log.Error().Err(err).Str("type", ev.Type).Str("draw_id", ev.DrawID).Msg("Failed to trigger pusher event")
			}
		}
	}
}
