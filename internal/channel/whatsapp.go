package channel

import (
	"context"
	"fmt"
	"net/http"

	"draw-engine/internal/model"
)

// whatsApp posts through the WhatsApp gateway service.
type whatsApp struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	recipients []string
}

func newWhatsApp(ch *model.Channel, ep Endpoints) (*whatsApp, error) {
	if ep.WhatsAppURL == "" {
		return nil, fmt.Errorf("%w: whatsapp base url", ErrMissingSetting)
	}
	return &whatsApp{
		baseURL:    ep.WhatsAppURL,
		apiKey:     ep.WhatsAppAPIKey,
		client:     ep.client(),
		recipients: ch.Recipients,
	}, nil
}

type whatsAppText struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type whatsAppImage struct {
	ChatID   string `json:"chatId"`
	Caption  string `json:"caption"`
	ImageURL string `json:"imageUrl"`
}

func (w *whatsApp) Send(ctx context.Context, content model.Content) error {
	headers := map[string]string{"x-api-key": w.apiKey}
	return eachRecipient(ctx, w.recipients, func(ctx context.Context, to string) error {
		if content.ImageURL != "" {
			return postJSON(ctx, w.client, joinURL(w.baseURL, "api/whatsapp/send/image"), headers,
				whatsAppImage{ChatID: to, Caption: content.Text, ImageURL: content.ImageURL}, nil)
		}
		return postJSON(ctx, w.client, joinURL(w.baseURL, "api/whatsapp/send/text"), headers,
			whatsAppText{ChatID: to, Message: content.Text}, nil)
	})
}
