package service

import (
	"context"
	"time"

	"draw-engine/internal/model"
)

// DrawStore is the transactional store of draws.
// Update applies the patch only while the draw is still in expected status.
type DrawStore interface {
	Create(ctx context.Context, d *model.Draw) (*model.Draw, error)
	GetByID(ctx context.Context, id string) (*model.Draw, error)
	FindMany(ctx context.Context, f model.DrawFilter) ([]*model.Draw, error)
	Update(ctx context.Context, id string, expected model.DrawStatus, patch model.DrawPatch) (*model.Draw, error)
	UsedItemsOn(ctx context.Context, gameID string, date time.Time, excludeDrawID string) ([]string, error)
}

// TemplateStore yields the recurring rules draws are generated from.
type TemplateStore interface {
	FindActiveForDay(ctx context.Context, weekday int) ([]*model.DrawTemplate, error)
}

// Catalog serves games and their items.
type Catalog interface {
	Game(ctx context.Context, id string) (*model.Game, error)
	Item(ctx context.Context, id string) (*model.GameItem, error)
	ActiveItems(ctx context.Context, gameID string) ([]*model.GameItem, error)
}

// SystemState exposes pauses and the emergency stop switch.
type SystemState interface {
	IsPaused(ctx context.Context, gameID string, date time.Time) (bool, error)
	EmergencyStop(ctx context.Context) (bool, error)
}

// AuditLogger records critical operations.
type AuditLogger interface {
	Record(ctx context.Context, entry *model.AuditLog) error
}

// Notifier broadcasts state changes to UI clients.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event)
}

// Channel is a configured publication destination with an opaque send capability.
type Channel interface {
	ID() string
	Type() model.ChannelType
	Name() string
	MessageTemplate() string
	Send(ctx context.Context, content model.Content) error
}

// ChannelRegistry lists the active channels of a game.
type ChannelRegistry interface {
	FindActiveChannelsForGame(ctx context.Context, gameID string) ([]Channel, error)
}

// PublicationStore is the append-only log of dispatch attempts.
type PublicationStore interface {
	Append(ctx context.Context, p *model.Publication) error
	ListByDraw(ctx context.Context, drawID string) ([]*model.Publication, error)
	AttemptsByChannel(ctx context.Context, drawID string) ([]model.ChannelAttempts, error)
}

// MessageRenderer fills a channel's message template for a result.
type MessageRenderer interface {
	Message(tmpl string, card *model.ResultCard, channelName string) (string, error)
}

// ImageRenderer produces the result image of a draw and returns its local
// path and public URL. Rendering the same draw twice reuses the file.
type ImageRenderer interface {
	Image(ctx context.Context, card *model.ResultCard) (path, url string, err error)
}

// Handoff receives draws that just reached DRAWN.
type Handoff interface {
	Enqueue(drawID string) bool
}
