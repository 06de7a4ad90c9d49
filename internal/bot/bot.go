// Package bot provides the Telegram operator bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"draw-engine/internal/config"
	"draw-engine/internal/handler"
)

// Bot wraps the telebot instance with the operator handlers.
type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	drawHandler *handler.DrawHandler
}

// Commands lists the operator commands shown in the Telegram menu.
var Commands = []tele.Command{
	{Text: "draws", Description: "Sorteos del día [AAAA-MM-DD]"},
	{Text: "preselect", Description: "Preseleccionar ganador <id> [número|random]"},
	{Text: "winner", Description: "Cambiar ganador <id> <número>"},
	{Text: "publish", Description: "Publicar resultado <id>"},
	{Text: "sweep", Description: "Cerrar y sortear vencidos"},
	{Text: "emergency", Description: "Parada de emergencia [on|off]"},
}

// New creates a new Bot. The token comes from telegram_admin.token.
func New(cfg *config.Config, drawHandler *handler.DrawHandler) (*Bot, error) {
	if cfg.TelegramAdmin.Token == "" {
		return nil, fmt.Errorf("telegram admin token is required")
	}

	teleBot, err := tele.NewBot(tele.Settings{
		Token:  cfg.TelegramAdmin.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{bot: teleBot, cfg: cfg, drawHandler: drawHandler}
	b.registerMiddleware()
	b.registerHandlers()
	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(AdminMiddleware(b.cfg))
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/draws", b.drawHandler.HandleDraws)
	b.bot.Handle("/preselect", b.drawHandler.HandlePreselect)
	b.bot.Handle("/winner", b.drawHandler.HandleWinner)
	b.bot.Handle("/publish", b.drawHandler.HandlePublish)
	b.bot.Handle("/sweep", b.drawHandler.HandleSweep)
	b.bot.Handle("/emergency", b.drawHandler.HandleEmergency)
}

func (b *Bot) handleStart(c tele.Context) error {
	msg := "🎰 Panel de sorteos\n"
	for _, cmd := range Commands {
		msg += fmt.Sprintf("\n/%s - %s", cmd.Text, cmd.Description)
	}
	return c.Reply(msg)
}

// Start registers the command menu and starts polling. It blocks until Stop.
func (b *Bot) Start() {
	if err := b.bot.SetCommands(Commands); err != nil {
		log.Warn().Err(err).Msg("Failed to set bot commands")
	}
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting operator bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping operator bot...")
	b.bot.Stop()
}
