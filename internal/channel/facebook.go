package channel

import (
	"context"
	"net/http"
	"net/url"

	"draw-engine/internal/model"
)

// facebook publishes to a page through the Graph API.
type facebook struct {
	baseURL string
	pageID  string
	token   string
	client  *http.Client
}

func newFacebook(ch *model.Channel, ep Endpoints) (*facebook, error) {
	pageID, err := requireSetting(ch, "page_id")
	if err != nil {
		return nil, err
	}
	token, err := requireSetting(ch, "access_token")
	if err != nil {
		return nil, err
	}
	return &facebook{baseURL: ep.FacebookURL, pageID: pageID, token: token, client: ep.client()}, nil
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (f *facebook) Send(ctx context.Context, content model.Content) error {
	var out graphID
	if content.ImageURL != "" {
		return postForm(ctx, f.client, joinURL(f.baseURL, f.pageID, "photos"), url.Values{
			"url":          {content.ImageURL},
			"caption":      {content.Text},
			"access_token": {f.token},
		}, &out)
	}
	return postForm(ctx, f.client, joinURL(f.baseURL, f.pageID, "feed"), url.Values{
		"message":      {content.Text},
		"access_token": {f.token},
	}, &out)
}
