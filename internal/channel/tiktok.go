package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"draw-engine/internal/model"
)

const tiktokPhotoInit = "/v2/post/publish/content/init/"

// tiktok posts a photo through the content posting API.
type tiktok struct {
	baseURL string
	token   string
	client  *http.Client
}

func newTikTok(ch *model.Channel, ep Endpoints) (*tiktok, error) {
	token, err := requireSetting(ch, "access_token")
	if err != nil {
		return nil, err
	}
	return &tiktok{baseURL: strings.TrimRight(ep.TikTokURL, "/"), token: token, client: ep.client()}, nil
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	PrivacyLevel string `json:"privacy_level"`
}

type tiktokSourceInfo struct {
	Source          string   `json:"source"`
	PhotoImages     []string `json:"photo_images"`
	PhotoCoverIndex int      `json:"photo_cover_index"`
}

type tiktokInit struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
	PostMode   string           `json:"post_mode"`
	MediaType  string           `json:"media_type"`
}

type tiktokResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *tiktok) Send(ctx context.Context, content model.Content) error {
	if content.ImageURL == "" {
		return ErrImageRequired
	}

	title, _, _ := strings.Cut(content.Text, "\n")
	req := tiktokInit{
		PostInfo: tiktokPostInfo{
			Title:        title,
			Description:  content.Text,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: tiktokSourceInfo{
			Source:      "PULL_FROM_URL",
			PhotoImages: []string{content.ImageURL},
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	var out tiktokResponse
	headers := map[string]string{"Authorization": "Bearer " + t.token}
	if err := postJSON(ctx, t.client, t.baseURL+tiktokPhotoInit, headers, req, &out); err != nil {
		return err
	}
	if out.Error.Code != "" && out.Error.Code != "ok" {
		return fmt.Errorf("tiktok: %s: %s", out.Error.Code, out.Error.Message)
	}
	return nil
}
