package httpapi

import (
	"time"

	"draw-engine/internal/model"
)

type gameView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Type     model.GameType `json:"type"`
	IsActive bool           `json:"isActive"`
}

type drawView struct {
	ID                 string               `json:"id"`
	GameID             string               `json:"gameId"`
	TemplateID         *string              `json:"templateId,omitempty"`
	DrawDate           string               `json:"drawDate"`
	DrawTime           string               `json:"drawTime"`
	ScheduledAt        time.Time            `json:"scheduledAt"`
	Status             model.DrawStatus     `json:"status"`
	PreselectedItemID  *string              `json:"preselectedItemId,omitempty"`
	PreselectionSource *model.OutcomeSource `json:"preselectionSource,omitempty"`
	WinnerItemID       *string              `json:"winnerItemId,omitempty"`
	ImageURL           *string              `json:"imageUrl,omitempty"`
	ClosedAt           *time.Time           `json:"closedAt,omitempty"`
	DrawnAt            *time.Time           `json:"drawnAt,omitempty"`
	PublishedAt        *time.Time           `json:"publishedAt,omitempty"`
	Notes              *string              `json:"notes,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func viewDraw(d *model.Draw) drawView {
	return drawView{
		ID:                 d.ID,
		GameID:             d.GameID,
		TemplateID:         d.TemplateID,
		DrawDate:           d.DrawDateString(),
		DrawTime:           d.DrawTime,
		ScheduledAt:        d.ScheduledAt,
		Status:             d.Status,
		PreselectedItemID:  d.PreselectedItemID,
		PreselectionSource: d.PreselectionSource,
		WinnerItemID:       d.WinnerItemID,
		ImageURL:           d.ImageURL,
		ClosedAt:           d.ClosedAt,
		DrawnAt:            d.DrawnAt,
		PublishedAt:        d.PublishedAt,
		Notes:              d.Notes,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func viewDraws(draws []*model.Draw) []drawView {
	out := make([]drawView, 0, len(draws))
	for _, d := range draws {
		out = append(out, viewDraw(d))
	}
	return out
}

type publicationView struct {
	ID          int64             `json:"id"`
	ChannelID   string            `json:"channelId"`
	ChannelType model.ChannelType `json:"channelType"`
	ChannelName string            `json:"channelName"`
	Success     bool              `json:"success"`
	Error       *string           `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func viewPublications(pubs []*model.Publication) []publicationView {
	out := make([]publicationView, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, publicationView{
			ID:          p.ID,
			ChannelID:   p.ChannelID,
			ChannelType: p.ChannelType,
			ChannelName: p.ChannelName,
			Success:     p.Success,
			Error:       p.Error,
			CreatedAt:   p.CreatedAt,
		})
	}
	return out
}

type auditView struct {
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Changes   map[string]any `json:"changes,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func viewAudit(logs []*model.AuditLog) []auditView {
	out := make([]auditView, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditView{Action: l.Action, Actor: l.Actor, Changes: l.Changes, CreatedAt: l.CreatedAt})
	}
	return out
}
