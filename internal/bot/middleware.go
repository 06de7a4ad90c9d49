package bot

import (
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"draw-engine/internal/config"
)

// AdminMiddleware drops every update whose sender is not a configured admin.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return c.Reply("❌ Permiso denegado")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware logs every command with its outcome and duration.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)

			ev := log.Debug()
			if err != nil {
				ev = log.Error().Err(err)
			}
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID)
			}
			ev.Str("text", c.Text()).
				Dur("elapsed", time.Since(start)).
				Msg("Command handled")
			return err
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					err = c.Reply("❌ Error interno, intente más tarde")
				}
			}()
			return next(c)
		}
	}
}
