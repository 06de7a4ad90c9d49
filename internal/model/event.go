package model

import "time"

// Event types pushed to the notifier.
const (
	EventDrawsGenerated     = "draws.generated"
	EventDrawClosed         = "draw.closed"
	EventWinnerSelected     = "draw.winnerSelected"
	EventDrawPublished      = "draw.published"
	EventDrawCancelled      = "draw.cancelled"
	EventPublicationSuccess = "publication.success"
	EventPublicationFailed  = "publication.failed"
)

// Event is a state-change notification for UI clients.
type Event struct {
	Type    string         `json:"type"`
	DrawID  string         `json:"drawId,omitempty"`
	GameID  string         `json:"gameId,omitempty"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ItemRef is the public view of a game item inside event payloads.
type ItemRef struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name"`
}

// RefOf builds an ItemRef from an item.
func RefOf(item *GameItem) ItemRef {
	if item == nil {
		return ItemRef{}
	}
	return ItemRef{ID: item.ID, Number: item.Number, Name: item.Name}
}
