// Package handler provides the Telegram operator command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"draw-engine/internal/model"
	"draw-engine/internal/repository"
	"draw-engine/internal/service"
)

// Lifecycle is the part of the lifecycle manager operators drive from chat.
type Lifecycle interface {
	CloseDue(ctx context.Context, now time.Time) (*service.SweepResult, error)
	ProcessElapsed(ctx context.Context, now time.Time) (*service.SweepResult, error)
	Preselect(ctx context.Context, drawID string, itemID *string) (*model.Draw, error)
	ChangeWinner(ctx context.Context, drawID, itemID string) (*model.Draw, error)
}

// Publisher publishes a drawn result.
type Publisher interface {
	Publish(ctx context.Context, drawID string, channelFilter []string) (*service.PublishResult, error)
}

// Draws reads draws.
type Draws interface {
	GetByID(ctx context.Context, id string) (*model.Draw, error)
	FindMany(ctx context.Context, f model.DrawFilter) ([]*model.Draw, error)
}

// Catalog serves games and items.
type Catalog interface {
	Game(ctx context.Context, id string) (*model.Game, error)
	Item(ctx context.Context, id string) (*model.GameItem, error)
	ActiveItems(ctx context.Context, gameID string) ([]*model.GameItem, error)
}

// Switches reads and flips system switches.
type Switches interface {
	Set(ctx context.Context, key, value string) error
	EmergencyStop(ctx context.Context) (bool, error)
}

// DrawHandler handles the operator commands.
type DrawHandler struct {
	lifecycle Lifecycle
	publisher Publisher
	draws     Draws
	catalog   Catalog
	switches  Switches
	location  *time.Location
	now       func() time.Time
}

// NewDrawHandler creates a new DrawHandler.
func NewDrawHandler(lifecycle Lifecycle, publisher Publisher, draws Draws, catalog Catalog, switches Switches, loc *time.Location) *DrawHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DrawHandler{
		lifecycle: lifecycle,
		publisher: publisher,
		draws:     draws,
		catalog:   catalog,
		switches:  switches,
		location:  loc,
		now:       time.Now,
	}
}

// HandleDraws handles /draws [YYYY-MM-DD].
func (h *DrawHandler) HandleDraws(c tele.Context) error {
	ctx := context.Background()

	date := model.LocalDate(h.now(), h.location)
	if args := c.Args(); len(args) > 0 {
		d, err := model.ParseDate(args[0])
		if err != nil {
			return c.Reply("❌ Fecha inválida, use AAAA-MM-DD")
		}
		date = d
	}

	draws, err := h.draws.FindMany(ctx, model.DrawFilter{DrawDate: &date})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list draws")
		return c.Reply("❌ No se pudieron consultar los sorteos")
	}
	if len(draws) == 0 {
		return c.Reply(fmt.Sprintf("📭 No hay sorteos para %s", date.Format(model.DateLayout)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>Sorteos %s</b>\n", date.Format(model.DateLayout))
	games := map[string]*model.Game{}
	for _, d := range draws {
		g, ok := games[d.GameID]
		if !ok {
			g, _ = h.catalog.Game(ctx, d.GameID)
			games[d.GameID] = g
		}
		name := d.GameID
		if g != nil {
			name = g.Name
		}
		fmt.Fprintf(&sb, "\n%s %s <b>%s</b> %s", statusIcon(d.Status), d.DrawTime[:5], html.EscapeString(name), d.Status)
		if line := h.itemLine(ctx, g, d); line != "" {
			sb.WriteString(" · " + line)
		}
		fmt.Fprintf(&sb, "\n<code>%s</code>", d.ID)
	}
	return c.Reply(sb.String(), tele.ModeHTML)
}

// HandlePreselect handles /preselect <draw_id> [number|random].
func (h *DrawHandler) HandlePreselect(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Uso: /preselect <id_sorteo> [número|random]")
	}

	var itemID *string
	if len(args) > 1 && !strings.EqualFold(args[1], "random") {
		item, err := h.itemForDraw(ctx, args[0], args[1])
		if err != nil {
			return c.Reply(replyFor(err))
		}
		itemID = &item.ID
	}

	d, err := h.lifecycle.Preselect(ctx, args[0], itemID)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	h.logOperation(c, "preselect", d.ID)

	g, _ := h.catalog.Game(ctx, d.GameID)
	return c.Reply("✅ Preselección guardada: "+h.itemLine(ctx, g, d), tele.ModeHTML)
}

// HandleWinner handles /winner <draw_id> <number>.
func (h *DrawHandler) HandleWinner(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Uso: /winner <id_sorteo> <número>")
	}

	item, err := h.itemForDraw(ctx, args[0], args[1])
	if err != nil {
		return c.Reply(replyFor(err))
	}
	d, err := h.lifecycle.ChangeWinner(ctx, args[0], item.ID)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	h.logOperation(c, "change_winner", d.ID)

	return c.Reply(fmt.Sprintf("✅ Ganador: %s %s", item.Number, html.EscapeString(item.Name)), tele.ModeHTML)
}

// HandlePublish handles /publish <draw_id>.
func (h *DrawHandler) HandlePublish(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Uso: /publish <id_sorteo>")
	}

	res, err := h.publisher.Publish(ctx, args[0], nil)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	h.logOperation(c, "publish", res.DrawID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📣 Publicado (%s)\n", res.Status)
	for _, ch := range res.PerChannel {
		if ch.Success {
			fmt.Fprintf(&sb, "\n✅ %s", html.EscapeString(ch.ChannelName))
		} else {
			fmt.Fprintf(&sb, "\n❌ %s: %s", html.EscapeString(ch.ChannelName), html.EscapeString(ch.Error))
		}
	}
	return c.Reply(sb.String(), tele.ModeHTML)
}

// HandleSweep handles /sweep.
func (h *DrawHandler) HandleSweep(c tele.Context) error {
	ctx := context.Background()
	now := h.now()

	closed, err := h.lifecycle.CloseDue(ctx, now)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	drawn, err := h.lifecycle.ProcessElapsed(ctx, now)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	h.logOperation(c, "sweep", "")

	return c.Reply(fmt.Sprintf(
		"🔄 Barrido completado\n\n"+
			"🔒 Cerrados: %d\n"+
			"🎯 Sorteados: %d\n"+
			"⚠️ Errores: %d",
		closed.Closed+drawn.Closed, drawn.Drawn, len(closed.Errors)+len(drawn.Errors),
	))
}

// HandleEmergency handles /emergency [on|off].
func (h *DrawHandler) HandleEmergency(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()

	if len(args) == 0 {
		on, err := h.switches.EmergencyStop(ctx)
		if err != nil {
			return c.Reply(replyFor(err))
		}
		return c.Reply(fmt.Sprintf("🛑 Parada de emergencia: %s", onOff(on)))
	}

	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return c.Reply("❌ Uso: /emergency [on|off]")
	}
	if err := h.switches.Set(ctx, repository.KeyEmergencyStop, strconv.FormatBool(on)); err != nil {
		log.Error().Err(err).Msg("Failed to set emergency stop")
		return c.Reply("❌ No se pudo cambiar la parada de emergencia")
	}
	h.logOperation(c, "emergency_"+strings.ToLower(args[0]), "")
	return c.Reply(fmt.Sprintf("🛑 Parada de emergencia: %s", onOff(on)))
}

// itemForDraw finds the active item of the draw's game carrying number.
// "0" and "00" are different animals, so an exact match wins over padding.
func (h *DrawHandler) itemForDraw(ctx context.Context, drawID, number string) (*model.GameItem, error) {
	d, err := h.draws.GetByID(ctx, drawID)
	if err != nil {
		return nil, err
	}
	g, err := h.catalog.Game(ctx, d.GameID)
	if err != nil {
		return nil, err
	}
	items, err := h.catalog.ActiveItems(ctx, d.GameID)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		if it.Number == number {
			return it, nil
		}
	}
	padded := model.PadNumber(number, g.Type.DigitWidth())
	for _, it := range items {
		if it.Number == padded {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", service.ErrItemNotInGame, number)
}

func (h *DrawHandler) itemLine(ctx context.Context, g *model.Game, d *model.Draw) string {
	id := d.WinnerItemID
	if id == nil {
		id = d.PreselectedItemID
	}
	if id == nil {
		return ""
	}
	item, err := h.catalog.Item(ctx, *id)
	if err != nil {
		return ""
	}
	number := item.Number
	if g != nil {
		number = model.PadNumber(item.Number, g.Type.DigitWidth())
	}
	return fmt.Sprintf("%s %s", number, html.EscapeString(item.Name))
}

func (h *DrawHandler) logOperation(c tele.Context, op, drawID string) {
	ev := log.Info().Str("operation", op).Str("draw_id", drawID)
	if sender := c.Sender(); sender != nil {
		ev = ev.Int64("admin_id", sender.ID)
	}
	ev.Msg("Admin operation executed")
}

func replyFor(err error) string {
	switch {
	case errors.Is(err, service.ErrDrawNotFound), errors.Is(err, repository.ErrDrawNotFound):
		return "❌ Sorteo no encontrado"
	case errors.Is(err, service.ErrItemNotInGame), errors.Is(err, service.ErrItemNotFound):
		return "❌ Ese número no pertenece al juego"
	case errors.Is(err, service.ErrInvalidStateTransition):
		return "❌ El sorteo no admite esa operación en su estado actual"
	case errors.Is(err, service.ErrConcurrentModification), errors.Is(err, service.ErrDrawBusy):
		return "⏳ El sorteo está siendo procesado, intente de nuevo"
	case errors.Is(err, service.ErrEmergencyStop):
		return "🛑 Parada de emergencia activa"
	case errors.Is(err, service.ErrConfigurationMissing):
		return "❌ El juego no tiene canales activos"
	default:
		log.Error().Err(err).Msg("Operator command failed")
		return "❌ Error interno, intente más tarde"
	}
}

func statusIcon(s model.DrawStatus) string {
	switch s {
	case model.StatusScheduled:
		return "🕒"
	case model.StatusClosed:
		return "🔒"
	case model.StatusDrawn:
		return "🎯"
	case model.StatusPublished:
		return "📣"
	default:
		return "✖️"
	}
}

func onOff(on bool) string {
	if on {
		return "ACTIVADA"
	}
	return "desactivada"
}
