package model

import "time"

// ChannelType identifies the external platform a channel publishes to.
type ChannelType string

// Channel types.
const (
	ChannelWhatsApp  ChannelType = "WHATSAPP"
	ChannelTelegram  ChannelType = "TELEGRAM"
	ChannelFacebook  ChannelType = "FACEBOOK"
	ChannelInstagram ChannelType = "INSTAGRAM"
	ChannelTikTok    ChannelType = "TIKTOK"
)

// RequiresImage reports whether the platform refuses text-only posts.
func (t ChannelType) RequiresImage() bool {
	return t == ChannelInstagram || t == ChannelTikTok
}

// Channel is a configured publication destination for one game.
// Settings holds platform credentials and ids (page_id, user_id, bot_token, access_token).
type Channel struct {
	ID              string            `db:"id"`
	GameID          string            `db:"game_id"`
	Type            ChannelType       `db:"channel_type"`
	Name            string            `db:"name"`
	MessageTemplate string            `db:"message_template"`
	Recipients      []string          `db:"recipients"`
	Settings        map[string]string `db:"settings"`
	IsActive        bool              `db:"is_active"`
}

// Setting returns a settings value or "".
func (c *Channel) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return c.Settings[key]
}

// Publication is an append-only record of one dispatch attempt of a draw to a channel.
type Publication struct {
	ID          int64       `db:"id"`
	DrawID      string      `db:"draw_id"`
	ChannelID   string      `db:"channel_id"`
	ChannelType ChannelType `db:"channel_type"`
	ChannelName string      `db:"channel_name"`
	Success     bool        `db:"success"`
	Error       *string     `db:"error"`
	CreatedAt   time.Time   `db:"created_at"`
}

// ChannelAttempts summarizes the dispatch history of one draw on one channel.
type ChannelAttempts struct {
	ChannelID   string
	Attempts    int
	LastSuccess bool
}

// Content is what a channel sends: rendered text and an optional image.
type Content struct {
	Text      string
	ImagePath string
	ImageURL  string
}

// HasImage reports whether an image accompanies the text.
func (c Content) HasImage() bool {
	return c.ImagePath != "" || c.ImageURL != ""
}
