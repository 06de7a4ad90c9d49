// Package render turns a drawn result into channel messages and result images.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cbroglie/mustache"

	"draw-engine/internal/model"
)

var monthsES = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

var weekdaysES = [...]string{
	"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado",
}

var emoji = map[string]string{
	"game":     "🎰",
	"time":     "⏰",
	"result":   "🎯",
	"winner":   "🏆",
	"star":     "✨",
	"fire":     "🔥",
	"trophy":   "🏆",
	"money":    "💰",
	"calendar": "📅",
	"clock":    "🕐",
}

var defaultTemplates = map[model.ChannelType]string{
	model.ChannelWhatsApp: "{{emoji.game}} *{{gameName}}*\n\n" +
		"{{emoji.time}} Hora: {{time}}\n" +
		"{{emoji.result}} Resultado: *{{winnerNumberPadded}}*\n" +
		"{{emoji.winner}} {{winnerName}}\n\n" +
		"{{emoji.star}} ¡Buena suerte en el próximo sorteo!",
	model.ChannelTelegram: "🎰 <b>{{gameName}}</b>\n\n" +
		"⏰ Hora: {{time}}\n" +
		"🎯 Resultado: <b>{{winnerNumberPadded}}</b>\n" +
		"🏆 {{winnerName}}\n\n" +
		"✨ ¡Buena suerte en el próximo sorteo!",
	model.ChannelFacebook: "🎰 {{gameName}}\n\n" +
		"⏰ Hora: {{time}}\n" +
		"🎯 Resultado: {{winnerNumberPadded}}\n" +
		"🏆 {{winnerName}}\n\n" +
		"✨ ¡Buena suerte en el próximo sorteo!",
	model.ChannelInstagram: "{{emoji.game}} {{gameName}}\n" +
		"{{emoji.time}} {{time}}\n" +
		"{{emoji.result}} {{winnerNumberPadded}}\n" +
		"{{emoji.winner}} {{winnerName}}",
	model.ChannelTikTok: "🎰 {{gameName}} - {{time}}\n" +
		"🎯 Ganador: {{winnerNumberPadded}} - {{winnerName}}\n" +
		"✨ #loteria #sorteo",
}

// DefaultTemplate returns the stock message of a channel type.
func DefaultTemplate(t model.ChannelType) string {
	if tmpl, ok := defaultTemplates[t]; ok {
		return tmpl
	}
	return defaultTemplates[model.ChannelWhatsApp]
}

// Messages renders mustache message templates. Parsed templates are cached.
type Messages struct {
	mu     sync.RWMutex
	parsed map[string]*mustache.Template
}

// NewMessages creates a message renderer.
func NewMessages() *Messages {
	return &Messages{parsed: make(map[string]*mustache.Template)}
}

// Message renders tmpl for the result on card. An empty template renders
// the WhatsApp default.
func (m *Messages) Message(tmpl string, card *model.ResultCard, channelName string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate(model.ChannelWhatsApp)
	}
	t, err := m.template(tmpl)
	if err != nil {
		return "", err
	}
	out, err := t.Render(Data(card, channelName))
	if err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return out, nil
}

func (m *Messages) template(tmpl string) (*mustache.Template, error) {
	m.mu.RLock()
	t, ok := m.parsed[tmpl]
	m.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := mustache.ParseString(tmpl)
	if err != nil {
		return nil, fmt.Errorf("invalid message template: %w", err)
	}
	m.mu.Lock()
	m.parsed[tmpl] = t
	m.mu.Unlock()
	return t, nil
}

// Validate reports whether tmpl parses and renders against a sample result.
func Validate(tmpl string) error {
	t, err := mustache.ParseString(tmpl)
	if err != nil {
		return fmt.Errorf("invalid message template: %w", err)
	}
	sample := &model.ResultCard{
		Game:   &model.Game{Name: "TEST GAME", Slug: "test-game", Type: model.GameTypeAnimalitos},
		Draw:   &model.Draw{ID: "test-id", DrawDate: time.Now().UTC(), DrawTime: "08:00:00", Status: model.StatusDrawn},
		Winner: &model.GameItem{Number: "1", Name: "TEST WINNER"},
	}
	if _, err := t.Render(Data(sample, "test")); err != nil {
		return fmt.Errorf("invalid message template: %w", err)
	}
	return nil
}

// Data builds the placeholder values of a result.
func Data(card *model.ResultCard, channelName string) map[string]any {
	d := card.Draw
	date := d.DrawDate

	hours, mins := "00", "00"
	if parts := strings.Split(d.DrawTime, ":"); len(parts) >= 2 {
		hours, mins = parts[0], parts[1]
	}
	hourNum, _ := strconv.Atoi(hours)
	ampm := "AM"
	if hourNum >= 12 {
		ampm = "PM"
	}
	displayHour := hourNum % 12
	if displayHour == 0 {
		displayHour = 12
	}

	gameName, gameSlug, gameType := "Sorteo", "", ""
	if card.Game != nil {
		gameName, gameSlug, gameType = card.Game.Name, card.Game.Slug, string(card.Game.Type)
	}
	winnerNumber, winnerName := "N/A", "N/A"
	if card.Winner != nil {
		winnerNumber, winnerName = card.Winner.Number, card.Winner.Name
	}
	winnerNumberPadded := winnerNumber
	if card.Winner != nil {
		winnerNumberPadded = card.WinnerNumberPadded()
	}

	imageURL := ""
	if d.ImageURL != nil {
		imageURL = *d.ImageURL
	}

	weekday := weekdaysES[date.Weekday()]
	dateES := fmt.Sprintf("%d de %s de %d", date.Day(), monthsES[date.Month()-1], date.Year())

	return map[string]any{
		"gameName": gameName,
		"gameSlug": gameSlug,
		"gameType": gameType,

		"drawId":   d.ID,
		"drawDate": d.DrawDateString(),
		"drawTime": d.DrawTime,
		"status":   string(d.Status),

		"date":           dateES,
		"dateShort":      date.Format("02/01/2006"),
		"dateLong":       capitalize(weekday) + ", " + dateES,
		"dayOfWeek":      capitalize(weekday),
		"dayOfWeekShort": capitalize(string([]rune(weekday)[:3])),

		"time":      hours + ":" + mins,
		"time12":    fmt.Sprintf("%02d:%s %s", displayHour, mins, ampm),
		"timeShort": hours + "h",
		"hour":      hours,
		"minute":    mins,

		"winnerNumber":       winnerNumber,
		"winnerName":         winnerName,
		"winnerNumberPadded": winnerNumberPadded,

		"imageUrl":    imageURL,
		"hasImage":    imageURL != "",
		"channelName": channelName,
		"emoji":       emoji,
	}
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
