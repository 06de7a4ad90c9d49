// Package channel implements the publication destinations: WhatsApp, Telegram,
// Facebook, Instagram and TikTok senders behind a rate limit and circuit breaker.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"draw-engine/internal/model"
	"draw-engine/internal/render"
)

var (
	ErrMissingSetting  = errors.New("channel setting missing")
	ErrNoRecipients    = errors.New("channel has no recipients")
	ErrUnsupportedType = errors.New("unsupported channel type")
	ErrImageRequired   = errors.New("image url required")
)

// Sender delivers rendered content to one platform account.
type Sender interface {
	Send(ctx context.Context, content model.Content) error
}

// Endpoints holds the platform base URLs and shared credentials.
type Endpoints struct {
	WhatsAppURL    string
	WhatsAppAPIKey string
	FacebookURL    string
	InstagramURL   string
	TikTokURL      string
	// TelegramURL overrides the Bot API server; empty uses the public one.
	TelegramURL string
	Client      *http.Client
	// Timeout caps a single platform request. Set it to the channel timeout.
	Timeout time.Duration
}

func (e Endpoints) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

// NewSender builds the sender of a configured channel.
func NewSender(ch *model.Channel, ep Endpoints) (Sender, error) {
	switch ch.Type {
	case model.ChannelWhatsApp:
		return newWhatsApp(ch, ep)
	case model.ChannelTelegram:
		return newTelegram(ch, ep)
	case model.ChannelFacebook:
		return newFacebook(ch, ep)
	case model.ChannelInstagram:
		return newInstagram(ch, ep)
	case model.ChannelTikTok:
		return newTikTok(ch, ep)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ch.Type)
	}
}

// Configured is a channel row bound to its sender and guard.
type Configured struct {
	channel *model.Channel
	sender  Sender
	guard   *Guard
}

// NewConfigured binds ch to sender. A nil guard sends unguarded.
func NewConfigured(ch *model.Channel, sender Sender, guard *Guard) *Configured {
	return &Configured{channel: ch, sender: sender, guard: guard}
}

func (c *Configured) ID() string              { return c.channel.ID }
func (c *Configured) Type() model.ChannelType { return c.channel.Type }
func (c *Configured) Name() string            { return c.channel.Name }

// MessageTemplate returns the channel's template or the stock one of its type.
func (c *Configured) MessageTemplate() string {
	if c.channel.MessageTemplate != "" {
		return c.channel.MessageTemplate
	}
	return render.DefaultTemplate(c.channel.Type)
}

// Send delivers content through the guard.
func (c *Configured) Send(ctx context.Context, content model.Content) error {
	if c.guard == nil {
		return c.sender.Send(ctx, content)
	}
	return c.guard.Do(ctx, c.channel, func(ctx context.Context) error {
		return c.sender.Send(ctx, content)
	})
}

// eachRecipient sends to every recipient and joins the failures. The
// channel succeeds only if every recipient did.
func eachRecipient(ctx context.Context, recipients []string, send func(ctx context.Context, to string) error) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	var errs []error
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := send(ctx, to); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func requireSetting(ch *model.Channel, key string) (string, error) {
	v := ch.Setting(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s needs %q", ErrMissingSetting, ch.Type, key)
	}
	return v, nil
}
