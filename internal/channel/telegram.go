package channel

import (
	"context"
	"fmt"
	"net/http"
	"os"

	tele "gopkg.in/telebot.v3"

	"draw-engine/internal/model"
)

// chatRef addresses a chat by numeric id or @username.
type chatRef string

func (c chatRef) Recipient() string { return string(c) }

// telegram posts to chats with a publishing bot.
type telegram struct {
	bot        *tele.Bot
	recipients []string
}

func newTelegram(ch *model.Channel, ep Endpoints) (*telegram, error) {
	token, err := requireSetting(ch, "bot_token")
	if err != nil {
		return nil, err
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     ep.TelegramURL,
		Client:  boundedClient(ep),
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &telegram{bot: bot, recipients: ch.Recipients}, nil
}

// boundedClient returns the shared client with its timeout capped at
// ep.Timeout. telebot calls cannot be cancelled, so the client timeout is
// what ends an abandoned request.
func boundedClient(ep Endpoints) *http.Client {
	client := ep.client()
	if ep.Timeout <= 0 || (client.Timeout > 0 && client.Timeout <= ep.Timeout) {
		return client
	}
	bounded := *client
	bounded.Timeout = ep.Timeout
	return &bounded
}

// Send posts a photo with caption when an image exists, otherwise text.
// telebot has no context support, so the call runs in a goroutine and is
// abandoned when ctx ends. A late success of an abandoned call is still
// reported as a failure.
func (t *telegram) Send(ctx context.Context, content model.Content) error {
	return eachRecipient(ctx, t.recipients, func(ctx context.Context, to string) error {
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("telegram: %v", r)
				}
			}()
			_, err := t.bot.Send(chatRef(to), t.payload(content), tele.ModeHTML)
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (t *telegram) payload(content model.Content) any {
	switch {
	case content.ImagePath != "" && fileExists(content.ImagePath):
		return &tele.Photo{File: tele.FromDisk(content.ImagePath), Caption: content.Text}
	case content.ImageURL != "":
		return &tele.Photo{File: tele.FromURL(content.ImageURL), Caption: content.Text}
	default:
		return content.Text
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
