package channel

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"draw-engine/internal/model"
)

// instagram publishes a photo in two steps: create a media container, then publish it.
type instagram struct {
	baseURL string
	userID  string
	token   string
	client  *http.Client
}

func newInstagram(ch *model.Channel, ep Endpoints) (*instagram, error) {
	userID, err := requireSetting(ch, "user_id")
	if err != nil {
		return nil, err
	}
	token, err := requireSetting(ch, "access_token")
	if err != nil {
		return nil, err
	}
	return &instagram{baseURL: ep.InstagramURL, userID: userID, token: token, client: ep.client()}, nil
}

func (i *instagram) Send(ctx context.Context, content model.Content) error {
	if content.ImageURL == "" {
		return ErrImageRequired
	}

	var container graphID
	err := postForm(ctx, i.client, joinURL(i.baseURL, i.userID, "media"), url.Values{
		"image_url":    {content.ImageURL},
		"caption":      {content.Text},
		"access_token": {i.token},
	}, &container)
	if err != nil {
		return err
	}
	if container.ID == "" {
		return errors.New("instagram returned no media container id")
	}

	var published graphID
	return postForm(ctx, i.client, joinURL(i.baseURL, i.userID, "media_publish"), url.Values{
		"creation_id":  {container.ID},
		"access_token": {i.token},
	}, &published)
}
